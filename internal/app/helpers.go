package app

import (
	"os/exec"
	"strings"
)

// maxTitleLen is the platform-safe title length before hashtag suffixes.
const maxTitleLen = 70

// TruncateTitle trims a raw title to the platform-safe length without
// splitting a multi-byte character.
func TruncateTitle(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}

// BuildTitle assembles the final upload title: truncated raw title plus the
// standard hashtag suffix.
func BuildTitle(raw, suffix string) string {
	title := TruncateTitle(raw, maxTitleLen)
	if title == "" {
		title = "Untitled"
	}
	return title + suffix
}

var LookPath = exec.LookPath

// HasExecutable reports whether the named binary is resolvable in PATH.
func HasExecutable(name string) bool {
	if name == "" {
		return false
	}
	_, err := LookPath(name)
	return err == nil
}
