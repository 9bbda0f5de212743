package app

import (
	"context"
	"fmt"
	"strings"
)

// Deduplicator answers "was this item already published on this channel?"
// by a pure existence check against the ledger.
type Deduplicator struct {
	Ledger Ledger
}

func (d *Deduplicator) AlreadyDone(ctx context.Context, channelName, itemID string) (bool, error) {
	done, err := d.Ledger.Exists(ctx, channelName, itemID)
	if err != nil {
		return false, fmt.Errorf("dedup check for %s/%s: %w", channelName, itemID, err)
	}
	return done, nil
}

// GeneratedItemID derives the ledger identity for a generated video. The
// derivation is deterministic so that re-running with the same topic dedups
// even after a full loss of process state.
func GeneratedItemID(topic, lang string) string {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(topic)), " ", "_")
	return fmt.Sprintf("generated_%s_%s", slug, lang)
}
