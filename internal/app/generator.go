package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Generator produces a finished vertical video for a topic. An empty path
// with a nil error is never returned: generation either yields a playable
// file or an error.
type Generator interface {
	Generate(ctx context.Context, topic, lang, quality, voice string) (string, error)
}

// PipelineGenerator shells out to the operator-configured generation pipeline
// (script, voiceover, subtitles, stock visuals, render). The command must
// print the produced file path as its last stdout line.
type PipelineGenerator struct {
	Command   string
	Args      []string
	OutputDir string
}

func NewPipelineGenerator(command, outputDir string) (*PipelineGenerator, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("generator command is empty")
	}
	return &PipelineGenerator{
		Command:   fields[0],
		Args:      fields[1:],
		OutputDir: outputDir,
	}, nil
}

func (g *PipelineGenerator) Generate(ctx context.Context, topic, lang, quality, voice string) (string, error) {
	args := append([]string{}, g.Args...)
	args = append(args,
		"--topic", topic,
		"--lang", lang,
		"--quality", quality,
		"--output-dir", g.OutputDir,
	)
	if voice != "" {
		args = append(args, "--voice", voice)
	}

	cmd := exec.CommandContext(ctx, g.Command, args...)
	var stdout bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, newPrefixedLogger("generator"))
	cmd.Stderr = newPrefixedLogger("generator")

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("generation pipeline failed: %w", err)
	}

	path := lastNonEmptyLine(stdout.String())
	if path == "" {
		return "", fmt.Errorf("generation pipeline produced no output path")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("generated file %s is missing: %w", path, err)
	}
	return path, nil
}

func lastNonEmptyLine(output string) string {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
