package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// ErrAlreadyRunning is returned by the trigger methods when a cycle is in
// flight. Triggers never queue; callers retry after the current run ends.
var ErrAlreadyRunning = errors.New("a processing cycle is already running")

// ErrUnknownChannel is returned when a channel name does not resolve.
var ErrUnknownChannel = errors.New("unknown channel")

// JobStatus reports whether a run is in flight, which job it is, and when the
// last one ended.
type JobStatus struct {
	Running    bool       `json:"running"`
	Job        string     `json:"job,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CycleResult summarizes one full pass over the channel roster.
type CycleResult struct {
	Processed int `json:"processed"`
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
	Idle      int `json:"idle"`
	Failed    int `json:"failed"`
}

// Runner walks the channel roster and hands each channel to the processor.
// One channel's panic or error never stops the rest of the cycle. runMu is
// held for the duration of a cycle so manual triggers cannot overlap the
// scheduler loop; stateMu guards the status fields only.
type Runner struct {
	Registry  Registry
	Processor *Processor

	runMu sync.Mutex

	stateMu    sync.Mutex
	running    bool
	job        string
	startedAt  time.Time
	finishedAt time.Time
}

func NewRunner(registry Registry, processor *Processor) *Runner {
	return &Runner{Registry: registry, Processor: processor}
}

// RunCycle processes every configured channel once, blocking until a held
// lock is released. The scheduler loop uses this entry point.
func (r *Runner) RunCycle(ctx context.Context) (CycleResult, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	r.markStarted("cycle")
	defer r.markFinished()

	return r.run(ctx, "")
}

// TriggerCycle starts a full cycle in the background only if none is in
// flight; otherwise it returns ErrAlreadyRunning immediately. Publishing can
// block for many minutes per channel, so the cycle must not run in the
// caller: the HTTP handler and the bot only acknowledge the start, and
// Status reports progress.
func (r *Runner) TriggerCycle(ctx context.Context) error {
	if !r.runMu.TryLock() {
		return ErrAlreadyRunning
	}
	r.markStarted("cycle")
	go r.runDetached(ctx, "")
	return nil
}

// TriggerChannel starts a background run of exactly one channel, subject to
// the same no-overlap lock as full cycles. The channel is resolved before
// the run starts so callers still get ErrUnknownChannel synchronously.
func (r *Runner) TriggerChannel(ctx context.Context, name string) error {
	ch, err := r.Registry.GetChannel(ctx, name)
	if err != nil {
		return err
	}
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	if !r.runMu.TryLock() {
		return ErrAlreadyRunning
	}
	r.markStarted("channel:" + name)
	go r.runDetached(ctx, name)
	return nil
}

// runDetached owns an already-held run lock. The caller's context is
// detached so an HTTP request finishing does not cancel the run it started.
func (r *Runner) runDetached(ctx context.Context, name string) {
	defer r.runMu.Unlock()
	defer r.markFinished()

	if _, err := r.run(context.WithoutCancel(ctx), name); err != nil {
		log.Printf("Triggered run failed: %v", err)
		sentry.CaptureException(err)
	}
}

// RunSingle processes one channel by name and reports whether a video was
// published. One-shot CLI invocations use it.
func (r *Runner) RunSingle(ctx context.Context, name string) (bool, error) {
	ch, err := r.Registry.GetChannel(ctx, name)
	if err != nil {
		return false, err
	}
	if ch == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	outcome := r.processOne(ctx, *ch)
	return outcome == OutcomePublished, nil
}

// Status is safe to call concurrently with a running cycle.
func (r *Runner) Status() JobStatus {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	status := JobStatus{Running: r.running, Job: r.job}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		status.StartedAt = &t
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		status.FinishedAt = &t
	}
	return status
}

func (r *Runner) markStarted(job string) {
	r.stateMu.Lock()
	r.running = true
	r.job = job
	r.startedAt = time.Now().UTC()
	r.stateMu.Unlock()
}

func (r *Runner) markFinished() {
	r.stateMu.Lock()
	r.running = false
	r.job = ""
	r.finishedAt = time.Now().UTC()
	r.stateMu.Unlock()
}

// run is the shared cycle body. An empty name means the whole roster.
func (r *Runner) run(ctx context.Context, name string) (CycleResult, error) {
	var channels []Channel
	if name == "" {
		list, err := r.Registry.ListChannels(ctx)
		if err != nil {
			return CycleResult{}, fmt.Errorf("list channels: %w", err)
		}
		channels = list
	} else {
		ch, err := r.Registry.GetChannel(ctx, name)
		if err != nil {
			return CycleResult{}, err
		}
		if ch == nil {
			return CycleResult{}, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
		}
		channels = []Channel{*ch}
	}

	if len(channels) == 0 {
		log.Printf("No channels configured, nothing to do")
		return CycleResult{}, nil
	}

	log.Printf("Starting cycle over %d channel(s)", len(channels))
	var result CycleResult
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++
		switch r.processOne(ctx, ch) {
		case OutcomePublished:
			result.Published++
		case OutcomeSkipped:
			result.Skipped++
		case OutcomeIdle:
			result.Idle++
		default:
			result.Failed++
		}
	}
	log.Printf("Cycle done: %d published, %d skipped, %d idle, %d failed",
		result.Published, result.Skipped, result.Idle, result.Failed)
	return result, nil
}

// processOne isolates a single channel: errors and panics are logged and
// reported, then the cycle moves on.
func (r *Runner) processOne(ctx context.Context, ch Channel) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("PANIC while processing channel %s: %v", ch.ChannelName, rec)
			sentry.CurrentHub().Recover(rec)
			outcome = OutcomeFailed
		}
	}()

	outcome, err := r.Processor.Process(ctx, ch)
	if err != nil {
		log.Printf("Processing channel %s failed: %v", ch.ChannelName, err)
		sentry.CaptureException(fmt.Errorf("channel %s: %w", ch.ChannelName, err))
		return OutcomeFailed
	}
	return outcome
}
