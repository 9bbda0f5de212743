package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicatorAlreadyDone(t *testing.T) {
	ledger := &memLedger{}
	dedup := &Deduplicator{Ledger: ledger}
	ctx := context.Background()

	done, err := dedup.AlreadyDone(ctx, "c", "v1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, ledger.Record(ctx, "c", "v1", time.Now()))
	done, err = dedup.AlreadyDone(ctx, "c", "v1")
	require.NoError(t, err)
	assert.True(t, done)

	// Same item on a different channel is independent.
	done, err = dedup.AlreadyDone(ctx, "other", "v1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestGeneratedItemID(t *testing.T) {
	assert.Equal(t, "generated_space_travel_en", GeneratedItemID("Space Travel", "en"))
	assert.Equal(t, "generated_space_travel_de", GeneratedItemID("  Space Travel  ", "de"))
	assert.Equal(t, "generated_deep_ocean_life_en", GeneratedItemID("deep ocean life", "en"))

	// Determinism is what makes generated videos dedup across restarts.
	assert.Equal(t, GeneratedItemID("Volcanoes", "en"), GeneratedItemID("volcanoes", "en"))
}
