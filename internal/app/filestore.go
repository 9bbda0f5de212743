package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLedger is a flat-file Ledger backend: one JSON document mapping channel
// names to their upload entries. It predates the relational backend and is
// kept as an interchangeable fallback for deployments without SQLite.
type FileLedger struct {
	path    string
	mu      sync.Mutex
	entries map[string][]fileEntry
}

type fileEntry struct {
	ID         string    `json:"id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func NewFileLedger(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	l := &FileLedger{
		path:    path,
		entries: make(map[string][]fileEntry),
	}
	if err := l.load(); err != nil {
		return nil, fmt.Errorf("load ledger file: %w", err)
	}
	return l, nil
}

func (l *FileLedger) Record(ctx context.Context, channelName, itemID string, ts time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[channelName] = append(l.entries[channelName], fileEntry{
		ID:         itemID,
		UploadedAt: ts.UTC(),
	})
	return l.save()
}

func (l *FileLedger) Recent(ctx context.Context, channelName string, since time.Time) ([]UploadRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var records []UploadRecord
	for _, e := range l.entries[channelName] {
		if e.UploadedAt.After(since) {
			records = append(records, UploadRecord{ChannelName: channelName, ItemID: e.ID, UploadedAt: e.UploadedAt})
		}
	}
	return records, nil
}

func (l *FileLedger) Latest(ctx context.Context, channelName string) (*time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var latest *time.Time
	for _, e := range l.entries[channelName] {
		if latest == nil || e.UploadedAt.After(*latest) {
			ts := e.UploadedAt
			latest = &ts
		}
	}
	return latest, nil
}

func (l *FileLedger) Exists(ctx context.Context, channelName, itemID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries[channelName] {
		if e.ID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (l *FileLedger) History(ctx context.Context, channelName string) ([]UploadRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries[channelName]
	records := make([]UploadRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, UploadRecord{ChannelName: channelName, ItemID: e.ID, UploadedAt: e.UploadedAt})
	}
	return records, nil
}

func (l *FileLedger) Reset(ctx context.Context, channelName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if channelName == "" {
		l.entries = make(map[string][]fileEntry)
	} else {
		delete(l.entries, channelName)
	}
	return l.save()
}

func (l *FileLedger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &l.entries)
}

// save writes atomically: marshal to a temp file, then rename over the old
// one, so a crash mid-write cannot truncate the ledger.
func (l *FileLedger) save() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
