package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFileLedgerBasics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	ledger, err := NewFileLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := ledger.Record(ctx, "c1", "v1", base.Add(-30*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Record(ctx, "c1", "v2", base.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	exists, err := ledger.Exists(ctx, "c1", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("v1 should exist")
	}
	exists, err = ledger.Exists(ctx, "c2", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("channels must be independent")
	}

	recent, err := ledger.Recent(ctx, "c1", base.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ItemID != "v2" {
		t.Fatalf("recent = %v, want only v2", recent)
	}

	latest, err := ledger.Latest(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || !latest.Equal(base.Add(-time.Hour)) {
		t.Fatalf("latest = %v", latest)
	}

	latest, err = ledger.Latest(ctx, "empty")
	if err != nil {
		t.Fatal(err)
	}
	if latest != nil {
		t.Fatal("Latest for unknown channel should be nil")
	}
}

func TestFileLedgerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := NewFileLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Record(ctx, "c1", "v1", ts); err != nil {
		t.Fatal(err)
	}

	second, err := NewFileLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	exists, err := second.Exists(ctx, "c1", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("history lost across reopen")
	}
	latest, err := second.Latest(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || !latest.Equal(ts) {
		t.Fatalf("latest after reopen = %v, want %v", latest, ts)
	}
}

func TestFileLedgerReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	ledger, err := NewFileLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	ts := time.Now().UTC()

	if err := ledger.Record(ctx, "c1", "v1", ts); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Record(ctx, "c2", "v1", ts); err != nil {
		t.Fatal(err)
	}

	if err := ledger.Reset(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	exists, _ := ledger.Exists(ctx, "c1", "v1")
	if exists {
		t.Fatal("c1 should be cleared")
	}
	exists, _ = ledger.Exists(ctx, "c2", "v1")
	if !exists {
		t.Fatal("c2 should survive a c1 reset")
	}

	if err := ledger.Reset(ctx, ""); err != nil {
		t.Fatal(err)
	}
	exists, _ = ledger.Exists(ctx, "c2", "v1")
	if exists {
		t.Fatal("global reset should clear everything")
	}

	// The reset must be durable, not just in-memory.
	reopened, err := NewFileLedger(path)
	if err != nil {
		t.Fatal(err)
	}
	exists, _ = reopened.Exists(ctx, "c2", "v1")
	if exists {
		t.Fatal("reset not persisted")
	}
}
