package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LedgerBackend selects where upload history lives.
type LedgerBackend string

const (
	BackendSQLite LedgerBackend = "sqlite"
	BackendFile   LedgerBackend = "file"
)

// Config carries every runtime setting. Values come from the environment,
// with a .env file loaded first when present.
type Config struct {
	DatabasePath   string
	LedgerBackend  LedgerBackend
	LedgerFilePath string

	DownloadDir  string
	OutputDir    string
	ChannelsFile string

	HTTPAddr string

	TelegramToken string
	AdminChatID   int64

	SentryDSN string

	YtDlpBinary      string
	GeneratorCommand string
	UploaderScript   string
	Headless         bool

	CycleInterval time.Duration
	ErrorBackoff  time.Duration
	FetchLimit    int
	CleanupMaxAge time.Duration

	Debug bool
}

// LoadConfig reads the environment (after godotenv) and validates it.
// Malformed numeric values are hard errors; missing optional keys only warn.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	cfg := Config{
		DatabasePath:     getEnv("DATABASE_PATH", "clipcast.db"),
		LedgerBackend:    LedgerBackend(getEnv("LEDGER_BACKEND", string(BackendSQLite))),
		LedgerFilePath:   getEnv("LEDGER_FILE", "upload_history.json"),
		DownloadDir:      getEnv("DOWNLOAD_DIR", "downloads"),
		OutputDir:        getEnv("OUTPUT_DIR", "generated"),
		ChannelsFile:     getEnv("CHANNELS_FILE", ""),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		TelegramToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		SentryDSN:        getEnv("SENTRY_DSN", ""),
		YtDlpBinary:      getEnv("YTDLP_BINARY", "yt-dlp"),
		GeneratorCommand: getEnv("GENERATOR_COMMAND", ""),
		UploaderScript:   getEnv("UPLOADER_SCRIPT", ""),
		Headless:         getEnvBool("HEADLESS", true),
		Debug:            getEnvBool("DEBUG", false),
	}

	if cfg.LedgerBackend != BackendSQLite && cfg.LedgerBackend != BackendFile {
		return Config{}, fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q",
			BackendSQLite, BackendFile, cfg.LedgerBackend)
	}

	var err error
	if cfg.AdminChatID, err = getEnvInt64("ADMIN_CHAT_ID", 0); err != nil {
		return Config{}, err
	}
	if cfg.FetchLimit, err = getEnvInt("FETCH_LIMIT", defaultFetchLimit); err != nil {
		return Config{}, err
	}

	intervalSec, err := getEnvInt("CYCLE_INTERVAL_SECONDS", int(DefaultCycleInterval.Seconds()))
	if err != nil {
		return Config{}, err
	}
	cfg.CycleInterval = time.Duration(intervalSec) * time.Second

	backoffSec, err := getEnvInt("ERROR_BACKOFF_SECONDS", int(DefaultErrorBackoff.Seconds()))
	if err != nil {
		return Config{}, err
	}
	cfg.ErrorBackoff = time.Duration(backoffSec) * time.Second

	maxAgeHours, err := getEnvInt("CLEANUP_MAX_AGE_HOURS", 72)
	if err != nil {
		return Config{}, err
	}
	cfg.CleanupMaxAge = time.Duration(maxAgeHours) * time.Hour

	if cfg.TelegramToken == "" {
		log.Printf("TELEGRAM_BOT_TOKEN not set, notifications and the admin bot are disabled")
	}
	if cfg.TelegramToken != "" && cfg.AdminChatID == 0 {
		return Config{}, fmt.Errorf("ADMIN_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if cfg.UploaderScript == "" {
		log.Printf("UPLOADER_SCRIPT not set, publishing will fail until it is configured")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Invalid boolean for %s: %q, using %v", key, value, fallback)
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", key, value)
	}
	return parsed, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %q", key, value)
	}
	return parsed, nil
}

// channelsFile is the YAML seed document: a list of channel definitions.
type channelsFile struct {
	Channels []Channel `yaml:"channels"`
}

// LoadChannelsFile parses a YAML channel seed file.
func LoadChannelsFile(path string) ([]Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	var doc channelsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse channels file %s: %w", path, err)
	}
	for i, ch := range doc.Channels {
		if ch.ChannelName == "" {
			return nil, fmt.Errorf("channels file %s: entry %d has no channel_name", path, i)
		}
		if ch.Mode != ModeSource && ch.Mode != ModeGenerated {
			return nil, fmt.Errorf("channels file %s: channel %s has invalid mode %q",
				path, ch.ChannelName, ch.Mode)
		}
	}
	return doc.Channels, nil
}

// ImportChannels upserts every channel from a seed file. Re-running the
// import with the same file is a no-op for unchanged entries.
func ImportChannels(ctx context.Context, store ChannelStore, path string) (int, error) {
	channels, err := LoadChannelsFile(path)
	if err != nil {
		return 0, err
	}
	for _, ch := range channels {
		if err := store.UpsertChannel(ctx, ch); err != nil {
			return 0, fmt.Errorf("import channel %s: %w", ch.ChannelName, err)
		}
		log.Printf("Imported channel %s (%s)", ch.ChannelName, ch.Mode)
	}
	return len(channels), nil
}
