package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopStopsOnCancel(t *testing.T) {
	runner, _, _ := newTestRunner(t, &memRegistry{}, &fakeSource{})
	loop := &Loop{Runner: runner, Interval: 5 * time.Millisecond, Backoff: 5 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}

type downRegistry struct {
	calls atomic.Int32
}

func (d *downRegistry) ListChannels(ctx context.Context) ([]Channel, error) {
	d.calls.Add(1)
	return nil, fmt.Errorf("registry unavailable")
}

func (d *downRegistry) GetChannel(ctx context.Context, name string) (*Channel, error) {
	return nil, fmt.Errorf("registry unavailable")
}

// A failed cycle is retried after the short backoff, not the full interval.
func TestLoopBacksOffAfterCycleError(t *testing.T) {
	registry := &downRegistry{}
	runner, _, _ := newTestRunner(t, registry, &fakeSource{})
	loop := &Loop{
		Runner:   runner,
		Interval: time.Hour, // a single retry within the test proves backoff
		Backoff:  5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for registry.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d cycle attempts; loop is not backing off", registry.calls.Load())
		case <-time.After(2 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}

func TestLoopDefaults(t *testing.T) {
	loop := NewLoop(nil)
	if loop.Interval != DefaultCycleInterval {
		t.Fatalf("interval = %v", loop.Interval)
	}
	if loop.Backoff != DefaultErrorBackoff {
		t.Fatalf("backoff = %v", loop.Backoff)
	}

	zero := &Loop{}
	if zero.interval() != DefaultCycleInterval || zero.backoff() != DefaultErrorBackoff {
		t.Fatal("zero-value loop should fall back to defaults")
	}
}
