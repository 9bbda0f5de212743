package app

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Source lists and fetches candidate videos from an external short-video
// platform account.
type Source interface {
	ListRecentItems(ctx context.Context, sourceID string, count int) ([]SourceItem, error)
	Fetch(ctx context.Context, item SourceItem, destPath string) (string, error)
}

// YtDlpSource discovers and downloads TikTok videos via the yt-dlp CLI.
type YtDlpSource struct {
	Binary string
	Sleep  time.Duration
}

func NewYtDlpSource(binary string, sleep time.Duration) *YtDlpSource {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDlpSource{Binary: binary, Sleep: sleep}
}

// ListRecentItems fetches flat-playlist metadata for the latest count videos
// of a TikTok account.
func (s *YtDlpSource) ListRecentItems(ctx context.Context, sourceID string, count int) ([]SourceItem, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be > 0")
	}
	args := []string{
		"--quiet",
		"--no-warnings",
		"--flat-playlist",
		"--print", "%(id)s\t%(title)s\t%(url)s",
		"--playlist-items", fmt.Sprintf("1:%d", count),
		profileURL(sourceID),
	}
	lines, err := s.runLines(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("list videos for @%s: %w", sourceID, err)
	}
	items := make([]SourceItem, 0, len(lines))
	for _, line := range lines {
		item := parseItemLine(line)
		if item.ID == "" {
			continue
		}
		if item.URL == "" {
			item.URL = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", sourceID, item.ID)
		}
		items = append(items, item)
	}
	return items, nil
}

// Fetch downloads one item to destPath and returns the local path.
func (s *YtDlpSource) Fetch(ctx context.Context, item SourceItem, destPath string) (string, error) {
	args := []string{
		"--quiet",
		"--no-warnings",
		"--no-simulate",
		"--format", "best",
		"-o", destPath,
	}
	if s.Sleep > 0 {
		args = append(args,
			fmt.Sprintf("--sleep-interval=%d", int(s.Sleep.Seconds())),
			fmt.Sprintf("--max-sleep-interval=%d", int(s.Sleep.Seconds())+1),
		)
	}
	args = append(args, item.URL)

	cmd := exec.CommandContext(ctx, s.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp download failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	if _, err := os.Stat(destPath); err != nil {
		return "", fmt.Errorf("yt-dlp reported success but %s is missing", destPath)
	}
	return destPath, nil
}

func (s *YtDlpSource) runLines(ctx context.Context, args []string) ([]string, error) {
	cmd := exec.CommandContext(ctx, s.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	var lines []string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return lines, err
	}
	if err := cmd.Wait(); err != nil {
		return lines, fmt.Errorf("yt-dlp failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return lines, nil
}

func parseItemLine(line string) SourceItem {
	parts := strings.SplitN(line, "\t", 3)
	item := SourceItem{ID: strings.TrimSpace(parts[0])}
	if item.ID == "NA" {
		item.ID = ""
	}
	if len(parts) > 1 {
		item.Title = strings.TrimSpace(parts[1])
		if item.Title == "NA" {
			item.Title = ""
		}
	}
	if len(parts) > 2 {
		item.URL = strings.TrimSpace(parts[2])
		if item.URL == "NA" {
			item.URL = ""
		}
	}
	return item
}

func profileURL(sourceID string) string {
	if strings.HasPrefix(sourceID, "http://") || strings.HasPrefix(sourceID, "https://") {
		return sourceID
	}
	return "https://www.tiktok.com/@" + strings.TrimPrefix(sourceID, "@")
}
