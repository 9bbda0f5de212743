package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Required for the upload_history cascade on channel delete.
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_name TEXT DEFAULT '',
			channel_name TEXT NOT NULL UNIQUE,
			mode TEXT NOT NULL DEFAULT 'source',
			email TEXT DEFAULT '',
			password TEXT DEFAULT '',
			cookies_path TEXT DEFAULT '',
			watch_folder TEXT DEFAULT '',
			proxy TEXT DEFAULT '',
			uploads_per_day INTEGER DEFAULT 1,
			min_delay_seconds INTEGER DEFAULT 3600,
			quality TEXT DEFAULT 'easy',
			lang TEXT DEFAULT 'en',
			voice TEXT DEFAULT '',
			description TEXT DEFAULT '#shorts',
			sources TEXT,
			topics TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS upload_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
			item_id TEXT NOT NULL,
			uploaded_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_channel ON upload_history(channel_id);`,
		`CREATE INDEX IF NOT EXISTS idx_history_item ON upload_history(channel_id, item_id);`,
		`CREATE INDEX IF NOT EXISTS idx_history_uploaded ON upload_history(uploaded_at);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertChannel inserts a channel or updates an existing one by name.
func (s *SQLiteStore) UpsertChannel(ctx context.Context, ch Channel) error {
	if ch.ChannelName == "" {
		return fmt.Errorf("channel name is required")
	}
	if ch.UploadsPerDay <= 0 {
		ch.UploadsPerDay = 1
	}
	if ch.MinDelaySeconds < 0 {
		ch.MinDelaySeconds = 0
	}
	sourcesJSON, _ := json.Marshal(ch.Sources)
	topicsJSON, _ := json.Marshal(ch.Topics)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO channels (account_name, channel_name, mode, email, password, cookies_path, watch_folder, proxy, uploads_per_day, min_delay_seconds, quality, lang, voice, description, sources, topics, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(channel_name) DO UPDATE SET
	account_name = excluded.account_name,
	mode = excluded.mode,
	email = excluded.email,
	password = excluded.password,
	cookies_path = excluded.cookies_path,
	watch_folder = excluded.watch_folder,
	proxy = excluded.proxy,
	uploads_per_day = excluded.uploads_per_day,
	min_delay_seconds = excluded.min_delay_seconds,
	quality = excluded.quality,
	lang = excluded.lang,
	voice = excluded.voice,
	description = excluded.description,
	sources = excluded.sources,
	topics = excluded.topics;`,
		ch.AccountName, ch.ChannelName, string(ch.Mode), ch.Email, ch.Password,
		ch.CookiesPath, ch.WatchFolder, ch.Proxy, ch.UploadsPerDay, ch.MinDelaySeconds,
		ch.Quality, ch.Lang, ch.Voice, ch.Description,
		string(sourcesJSON), string(topicsJSON), time.Now().UTC())
	return err
}

const channelColumns = `id, account_name, channel_name, mode, email, password, cookies_path, watch_folder, proxy, uploads_per_day, min_delay_seconds, quality, lang, voice, description, sources, topics, created_at`

// GetChannel retrieves a channel by name. Returns nil when not found.
func (s *SQLiteStore) GetChannel(ctx context.Context, name string) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+channelColumns+` FROM channels WHERE channel_name = ?`, name)
	ch, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// ListChannels returns all channels ordered by creation time.
func (s *SQLiteStore) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+channelColumns+` FROM channels ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// DeleteChannel removes a channel and, via cascade, its ledger entries.
func (s *SQLiteStore) DeleteChannel(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE channel_name = ?`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChannel(row rowScanner) (*Channel, error) {
	var ch Channel
	var account, email, password, cookies, folder, proxy sql.NullString
	var quality, lang, voice, desc, sourcesJSON, topicsJSON sql.NullString
	var mode string
	var perDay, minDelay sql.NullInt64
	err := row.Scan(&ch.ID, &account, &ch.ChannelName, &mode, &email, &password,
		&cookies, &folder, &proxy, &perDay, &minDelay,
		&quality, &lang, &voice, &desc, &sourcesJSON, &topicsJSON, &ch.CreatedAt)
	if err != nil {
		return nil, err
	}
	ch.AccountName = account.String
	ch.Mode = ChannelMode(mode)
	ch.Email = email.String
	ch.Password = password.String
	ch.CookiesPath = cookies.String
	ch.WatchFolder = folder.String
	ch.Proxy = proxy.String
	ch.UploadsPerDay = int(perDay.Int64)
	if ch.UploadsPerDay == 0 {
		ch.UploadsPerDay = 1
	}
	ch.MinDelaySeconds = int(minDelay.Int64)
	ch.Quality = quality.String
	ch.Lang = lang.String
	ch.Voice = voice.String
	ch.Description = desc.String
	if sourcesJSON.String != "" {
		_ = json.Unmarshal([]byte(sourcesJSON.String), &ch.Sources)
	}
	if topicsJSON.String != "" {
		_ = json.Unmarshal([]byte(topicsJSON.String), &ch.Topics)
	}
	return &ch, nil
}

// Ledger implementation. All timestamps are stored and compared in UTC.

func (s *SQLiteStore) Record(ctx context.Context, channelName, itemID string, ts time.Time) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO upload_history (channel_id, item_id, uploaded_at)
SELECT id, ?, ? FROM channels WHERE channel_name = ?`,
		itemID, ts.UTC(), channelName)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record upload: unknown channel %q", channelName)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, channelName string, since time.Time) ([]UploadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT h.item_id, h.uploaded_at
FROM upload_history h
JOIN channels c ON c.id = h.channel_id
WHERE c.channel_name = ? AND h.uploaded_at > ?
ORDER BY h.uploaded_at`, channelName, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, channelName)
}

func (s *SQLiteStore) Latest(ctx context.Context, channelName string) (*time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT h.uploaded_at
FROM upload_history h
JOIN channels c ON c.id = h.channel_id
WHERE c.channel_name = ?
ORDER BY h.uploaded_at DESC
LIMIT 1`, channelName)

	var ts time.Time
	err := row.Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return &ts, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, channelName, itemID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM upload_history h
JOIN channels c ON c.id = h.channel_id
WHERE c.channel_name = ? AND h.item_id = ?`, channelName, itemID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteStore) History(ctx context.Context, channelName string) ([]UploadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT h.item_id, h.uploaded_at
FROM upload_history h
JOIN channels c ON c.id = h.channel_id
WHERE c.channel_name = ?
ORDER BY h.uploaded_at`, channelName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows, channelName)
}

func (s *SQLiteStore) Reset(ctx context.Context, channelName string) error {
	if channelName == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM upload_history`)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
DELETE FROM upload_history
WHERE channel_id IN (SELECT id FROM channels WHERE channel_name = ?)`, channelName)
	return err
}

func scanRecords(rows *sql.Rows, channelName string) ([]UploadRecord, error) {
	var records []UploadRecord
	for rows.Next() {
		rec := UploadRecord{ChannelName: channelName}
		if err := rows.Scan(&rec.ItemID, &rec.UploadedAt); err != nil {
			return nil, err
		}
		rec.UploadedAt = rec.UploadedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
