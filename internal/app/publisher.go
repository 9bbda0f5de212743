package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// PublishMetadata carries the derived upload metadata.
type PublishMetadata struct {
	Title       string
	Description string
}

// Publisher pushes a finished video to the target platform using the
// channel's credentials.
type Publisher interface {
	VerifySession(ctx context.Context, ch Channel) (bool, error)
	Publish(ctx context.Context, videoPath string, meta PublishMetadata, ch Channel) error
}

// BrowserPublisher drives the operator-provided browser-automation uploader
// script. The script owns all platform mechanics; this wrapper only passes
// credentials and metadata and interprets the exit status.
type BrowserPublisher struct {
	Script   string
	Headless bool
}

func NewBrowserPublisher(script string, headless bool) *BrowserPublisher {
	return &BrowserPublisher{Script: script, Headless: headless}
}

var loginOKPattern = regexp.MustCompile(`(?m)^LOGIN[_ ]?OK\b`)

// VerifySession checks that the stored session cookies are still valid for
// this channel before an upload attempt is spent.
func (p *BrowserPublisher) VerifySession(ctx context.Context, ch Channel) (bool, error) {
	if err := ensureCookiesExist(ch.CookiesPath); err != nil {
		return false, err
	}

	args := []string{"--check-login", "--cookies", ch.CookiesPath}
	if ch.Proxy != "" {
		args = append(args, "--proxy", ch.Proxy)
	}
	if p.Headless {
		args = append(args, "--headless")
	}

	cmd := exec.CommandContext(ctx, p.Script, args...)
	var stdout bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, newPrefixedLogger("uploader"))
	cmd.Stderr = newPrefixedLogger("uploader")

	if err := cmd.Run(); err != nil {
		return false, fmt.Errorf("session check failed: %w", err)
	}
	return parseLoginStatus(stdout.String()), nil
}

// Publish uploads the video. A non-zero exit from the uploader script is a
// publish failure; nothing is retried here.
func (p *BrowserPublisher) Publish(ctx context.Context, videoPath string, meta PublishMetadata, ch Channel) error {
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("video file missing: %w", err)
	}
	if err := ensureCookiesExist(ch.CookiesPath); err != nil {
		return err
	}

	args := []string{
		"--video", videoPath,
		"--title", meta.Title,
		"--description", meta.Description,
		"--cookies", ch.CookiesPath,
	}
	if ch.Proxy != "" {
		args = append(args, "--proxy", ch.Proxy)
	}
	if p.Headless {
		args = append(args, "--headless")
	}

	log.Printf("Uploading %s to channel %s", videoPath, ch.ChannelName)
	cmd := exec.CommandContext(ctx, p.Script, args...)
	cmd.Stdout = newPrefixedLogger("uploader")
	cmd.Stderr = newPrefixedLogger("uploader")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("browser upload failed: %w", err)
	}
	return nil
}

func parseLoginStatus(output string) bool {
	return loginOKPattern.MatchString(output)
}

func ensureCookiesExist(path string) error {
	if path == "" {
		return fmt.Errorf("cookies path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("cookies not found at %s; run the login helper to create them", path)
		}
		return fmt.Errorf("checking cookies: %w", err)
	}
	return nil
}

type prefixedLogger struct {
	prefix string
}

func newPrefixedLogger(prefix string) io.Writer {
	return &prefixedLogger{prefix: prefix}
}

func (p *prefixedLogger) Write(data []byte) (int, error) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			log.Printf("[%s] %s", p.prefix, line)
		}
	}
	return len(data), nil
}
