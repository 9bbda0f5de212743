package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterDailyCap(t *testing.T) {
	ledger := &memLedger{}
	limiter := &RateLimiter{Ledger: ledger}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ch := Channel{ChannelName: "c", UploadsPerDay: 2, MinDelaySeconds: 0}
	ctx := context.Background()

	ok, _, err := limiter.CanProceed(ctx, ch, now)
	require.NoError(t, err)
	assert.True(t, ok, "empty history allows")

	require.NoError(t, ledger.Record(ctx, "c", "a", now.Add(-10*time.Hour)))
	ok, _, err = limiter.CanProceed(ctx, ch, now)
	require.NoError(t, err)
	assert.True(t, ok, "one of two used")

	require.NoError(t, ledger.Record(ctx, "c", "b", now.Add(-2*time.Hour)))
	ok, reason, err := limiter.CanProceed(ctx, ch, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily limit reached (2/2)")

	// Entries older than 24h fall out of the window.
	ok, _, err = limiter.CanProceed(ctx, ch, now.Add(23*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok, "oldest entry aged out")
}

func TestRateLimiterCooldownScenario(t *testing.T) {
	ledger := &memLedger{}
	limiter := &RateLimiter{Ledger: ledger}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ch := Channel{ChannelName: "c", UploadsPerDay: 5, MinDelaySeconds: 3600}
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, "c", "x", base))

	ok, reason, err := limiter.CanProceed(ctx, ch, base.Add(1800*time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "inside the minimum delay")
	assert.Contains(t, reason, "minimum delay active")

	ok, _, err = limiter.CanProceed(ctx, ch, base.Add(3601*time.Second))
	require.NoError(t, err)
	assert.True(t, ok, "delay elapsed")
}

func TestRateLimiterSingleDailySlot(t *testing.T) {
	// uploads_per_day=1, min_delay_seconds=3600: after a publish at T the
	// channel is blocked by the cooldown at T+1800, still blocked by the
	// daily cap at T+3601, and free again only once the entry ages out of
	// the 24h window.
	ledger := &memLedger{}
	limiter := &RateLimiter{Ledger: ledger}
	T := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ch := Channel{ChannelName: "ch1", UploadsPerDay: 1, MinDelaySeconds: 3600}
	ctx := context.Background()

	ok, _, err := limiter.CanProceed(ctx, ch, T)
	require.NoError(t, err)
	assert.True(t, ok, "empty ledger allows at T")

	require.NoError(t, ledger.Record(ctx, "ch1", "x", T))

	ok, reason, err := limiter.CanProceed(ctx, ch, T.Add(1800*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "minimum delay active")

	ok, reason, err = limiter.CanProceed(ctx, ch, T.Add(3601*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily limit reached")

	ok, _, err = limiter.CanProceed(ctx, ch, T.Add(86401*time.Second))
	require.NoError(t, err)
	assert.True(t, ok, "entry aged out of the 24h window")
}

func TestRateLimiterCooldownOutlivesDailyWindow(t *testing.T) {
	// A min delay longer than 24h must still block even though the last
	// upload no longer counts against the daily cap.
	ledger := &memLedger{}
	limiter := &RateLimiter{Ledger: ledger}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ch := Channel{ChannelName: "c", UploadsPerDay: 1, MinDelaySeconds: 48 * 3600}
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, "c", "x", base))

	ok, reason, err := limiter.CanProceed(ctx, ch, base.Add(30*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "minimum delay active")

	ok, _, err = limiter.CanProceed(ctx, ch, base.Add(49*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterDefaultsToOnePerDay(t *testing.T) {
	ledger := &memLedger{}
	limiter := &RateLimiter{Ledger: ledger}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ch := Channel{ChannelName: "c"} // UploadsPerDay unset
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, "c", "a", now.Add(-time.Hour)))
	ok, reason, err := limiter.CanProceed(ctx, ch, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily limit reached (1/1)")
}

func TestRateLimiterResetUnblocks(t *testing.T) {
	ledger := &memLedger{}
	limiter := &RateLimiter{Ledger: ledger}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ch := Channel{ChannelName: "c", UploadsPerDay: 1, MinDelaySeconds: 3600}
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, "c", "a", now.Add(-time.Minute)))
	ok, _, err := limiter.CanProceed(ctx, ch, now)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, ledger.Reset(ctx, "c"))
	ok, _, err = limiter.CanProceed(ctx, ch, now)
	require.NoError(t, err)
	assert.True(t, ok, "history reset reopens the gate")
}
