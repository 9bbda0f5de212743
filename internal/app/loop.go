package app

import (
	"context"
	"log"
	"time"
)

const (
	// DefaultCycleInterval is the pause between successful cycles.
	DefaultCycleInterval = 600 * time.Second
	// DefaultErrorBackoff is the shorter pause after a failed cycle.
	DefaultErrorBackoff = 60 * time.Second
)

// Loop repeatedly runs full cycles until the context is canceled. A cycle
// error shortens the next pause instead of stopping the daemon.
type Loop struct {
	Runner   *Runner
	Interval time.Duration
	Backoff  time.Duration
}

func NewLoop(runner *Runner) *Loop {
	return &Loop{
		Runner:   runner,
		Interval: DefaultCycleInterval,
		Backoff:  DefaultErrorBackoff,
	}
}

func (l *Loop) interval() time.Duration {
	if l.Interval > 0 {
		return l.Interval
	}
	return DefaultCycleInterval
}

func (l *Loop) backoff() time.Duration {
	if l.Backoff > 0 {
		return l.Backoff
	}
	return DefaultErrorBackoff
}

// Run blocks until ctx is canceled. The first cycle starts immediately.
func (l *Loop) Run(ctx context.Context) {
	for {
		pause := l.interval()
		if _, err := l.Runner.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				log.Printf("Scheduler stopped")
				return
			}
			log.Printf("Cycle failed: %v; retrying in %s", err, l.backoff())
			pause = l.backoff()
		}

		select {
		case <-ctx.Done():
			log.Printf("Scheduler stopped")
			return
		case <-time.After(pause):
		}
	}
}
