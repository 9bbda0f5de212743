package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// Outcome classifies one invocation of Processor.Process.
type Outcome string

const (
	// OutcomeSkipped means the rate-limit gate rejected the attempt.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIdle means no eligible candidate remained (all done).
	OutcomeIdle Outcome = "idle"
	// OutcomeFailed means acquisition, authentication or publish failed.
	OutcomeFailed Outcome = "failed"
	// OutcomePublished means exactly one item was published and recorded.
	OutcomePublished Outcome = "published"
)

const defaultFetchLimit = 5

// Processor runs the per-channel pipeline: gate, fetch candidates, select the
// first not-yet-done item, acquire media, verify the session, publish, and
// record the result in the ledger. At most one item is processed per
// invocation so the channel's delay policy holds even under fast retriggering.
type Processor struct {
	Ledger    Ledger
	Limiter   *RateLimiter
	Dedup     *Deduplicator
	Source    Source
	Generator Generator
	Publisher Publisher
	Notifier  Notifier

	// DownloadDir is the root for per-channel watch folders.
	DownloadDir string
	// FetchLimit bounds the per-source candidate listing.
	FetchLimit int

	// Now and Shuffle are injectable for tests; nil means real clock and
	// math/rand.
	Now     func() time.Time
	Shuffle func(n int, swap func(i, j int))
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Processor) shuffle(n int, swap func(i, j int)) {
	if p.Shuffle != nil {
		p.Shuffle(n, swap)
		return
	}
	rand.Shuffle(n, swap)
}

func (p *Processor) fetchLimit() int {
	if p.FetchLimit > 0 {
		return p.FetchLimit
	}
	return defaultFetchLimit
}

// Process handles one channel for one cycle.
func (p *Processor) Process(ctx context.Context, ch Channel) (Outcome, error) {
	ok, reason, err := p.Limiter.CanProceed(ctx, ch, p.now())
	if err != nil {
		return OutcomeFailed, err
	}
	if !ok {
		log.Printf("Skipping %s: %s", ch.ChannelName, reason)
		return OutcomeSkipped, nil
	}

	switch ch.Mode {
	case ModeGenerated:
		return p.processGenerated(ctx, ch)
	case ModeSource:
		return p.processSource(ctx, ch)
	default:
		return OutcomeFailed, fmt.Errorf("channel %s has unknown mode %q", ch.ChannelName, ch.Mode)
	}
}

// processSource relays the first not-yet-published video from the channel's
// source accounts, scanned in configured order.
func (p *Processor) processSource(ctx context.Context, ch Channel) (Outcome, error) {
	type candidate struct {
		item   SourceItem
		source string
	}
	var selected *candidate

scan:
	for _, source := range ch.Sources {
		items, err := p.Source.ListRecentItems(ctx, source, p.fetchLimit())
		if err != nil {
			// A broken source must not block the channel's remaining sources.
			log.Printf("listing @%s for %s failed: %v", source, ch.ChannelName, err)
			continue
		}
		for _, item := range items {
			if item.ID == "" {
				continue
			}
			done, err := p.Dedup.AlreadyDone(ctx, ch.ChannelName, item.ID)
			if err != nil {
				return OutcomeFailed, err
			}
			if done {
				continue
			}
			selected = &candidate{item: item, source: source}
			break scan
		}
	}

	if selected == nil {
		log.Printf("%s: no new source videos", ch.ChannelName)
		return OutcomeIdle, nil
	}

	log.Printf("%s: new video %s from @%s", ch.ChannelName, selected.item.ID, selected.source)

	folder := ch.WatchFolder
	if folder == "" {
		folder = filepath.Join(p.DownloadDir, ch.ChannelName)
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return OutcomeFailed, fmt.Errorf("create watch folder: %w", err)
	}
	dest := filepath.Join(folder, fmt.Sprintf("%s_%s.mp4", selected.source, selected.item.ID))

	// A failed acquisition still consumes this channel's slot for the cycle;
	// the next candidate is not tried until the next cycle.
	videoPath, err := p.Source.Fetch(ctx, selected.item, dest)
	if err != nil {
		log.Printf("%s: download of %s failed: %v", ch.ChannelName, selected.item.ID, err)
		return OutcomeFailed, nil
	}

	meta := PublishMetadata{
		Title:       BuildTitle(selected.item.Title, " #shorts #tiktok"),
		Description: fmt.Sprintf("Original video by @%s. %s", selected.source, ch.Description),
	}
	return p.publishAndRecord(ctx, ch, videoPath, selected.item.ID, meta)
}

// processGenerated picks a not-yet-published topic (uniformly, via a full
// shuffle of the topic list) and runs the generation pipeline for it.
func (p *Processor) processGenerated(ctx context.Context, ch Channel) (Outcome, error) {
	if p.Generator == nil {
		return OutcomeFailed, fmt.Errorf("channel %s needs a generation pipeline but none is configured", ch.ChannelName)
	}
	topics := append([]string(nil), ch.Topics...)
	p.shuffle(len(topics), func(i, j int) {
		topics[i], topics[j] = topics[j], topics[i]
	})

	var topic, itemID string
	for _, t := range topics {
		id := GeneratedItemID(t, ch.Lang)
		done, err := p.Dedup.AlreadyDone(ctx, ch.ChannelName, id)
		if err != nil {
			return OutcomeFailed, err
		}
		if !done {
			topic, itemID = t, id
			break
		}
	}
	if topic == "" {
		// Every configured topic has been published for this language.
		log.Printf("%s: all topics exhausted", ch.ChannelName)
		return OutcomeIdle, nil
	}

	log.Printf("%s: generating video for topic %q (%s)", ch.ChannelName, topic, ch.Lang)
	videoPath, err := p.Generator.Generate(ctx, topic, ch.Lang, ch.Quality, ch.Voice)
	if err != nil {
		log.Printf("%s: generation for %q failed: %v", ch.ChannelName, topic, err)
		return OutcomeFailed, nil
	}

	meta := PublishMetadata{
		Title:       BuildTitle(topic, " #shorts"),
		Description: fmt.Sprintf("Interesting facts about %s. %s", topic, ch.Description),
	}
	return p.publishAndRecord(ctx, ch, videoPath, itemID, meta)
}

// publishAndRecord runs the spend-side of the pipeline: session check,
// publish, then the single durable ledger append on confirmed success.
func (p *Processor) publishAndRecord(ctx context.Context, ch Channel, videoPath, itemID string, meta PublishMetadata) (Outcome, error) {
	ok, err := p.Publisher.VerifySession(ctx, ch)
	if err != nil || !ok {
		detail := "session invalid"
		if err != nil {
			detail = err.Error()
		}
		log.Printf("%s: session verification failed: %s", ch.ChannelName, detail)
		p.Notifier.Notify(ctx, fmt.Sprintf("❌ Login check failed for channel %s: %s", ch.ChannelName, detail))
		return OutcomeFailed, nil
	}

	if err := p.Publisher.Publish(ctx, videoPath, meta, ch); err != nil {
		log.Printf("%s: publish of %s failed: %v", ch.ChannelName, itemID, err)
		p.Notifier.Notify(ctx, fmt.Sprintf("❌ Upload failed for channel %s\nItem: %s\nError: %v", ch.ChannelName, itemID, err))
		return OutcomeFailed, nil
	}

	// Known gap: a crash between the publish above and this append causes a
	// duplicate publish on the next cycle. The publisher offers no
	// idempotency token to close it.
	if err := p.Ledger.Record(ctx, ch.ChannelName, itemID, p.now()); err != nil {
		return OutcomeFailed, fmt.Errorf("published %s but failed to record it: %w", itemID, err)
	}

	log.Printf("%s: published %s", ch.ChannelName, itemID)
	p.Notifier.NotifyVideo(ctx, videoPath,
		fmt.Sprintf("✅ Published on %s\nItem: %s\nTitle: %s", ch.ChannelName, itemID, meta.Title))
	return OutcomePublished, nil
}
