package app

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter decides whether a channel may publish right now, based purely
// on its policy and ledger history. It holds no state of its own, so replaying
// or resetting the ledger cannot leave it inconsistent.
type RateLimiter struct {
	Ledger Ledger
}

// CanProceed reports whether a new publish attempt is allowed at now.
// When it is not, reason explains the rejection for logging.
func (r *RateLimiter) CanProceed(ctx context.Context, ch Channel, now time.Time) (bool, string, error) {
	perDay := ch.UploadsPerDay
	if perDay <= 0 {
		perDay = 1
	}

	recent, err := r.Ledger.Recent(ctx, ch.ChannelName, now.Add(-24*time.Hour))
	if err != nil {
		return false, "", fmt.Errorf("rate limit check for %s: %w", ch.ChannelName, err)
	}
	if len(recent) >= perDay {
		return false, fmt.Sprintf("daily limit reached (%d/%d)", len(recent), perDay), nil
	}

	// The cooldown considers the most recent entry regardless of age: a huge
	// min_delay_seconds must still block even when the last upload fell out
	// of the 24h window.
	last, err := r.Ledger.Latest(ctx, ch.ChannelName)
	if err != nil {
		return false, "", fmt.Errorf("rate limit check for %s: %w", ch.ChannelName, err)
	}
	if last != nil {
		if elapsed := now.Sub(*last); elapsed < ch.MinDelay() {
			remaining := (ch.MinDelay() - elapsed).Round(time.Second)
			return false, fmt.Sprintf("minimum delay active, wait %s", remaining), nil
		}
	}

	return true, "", nil
}
