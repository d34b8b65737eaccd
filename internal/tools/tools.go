// Package tools locates the extractor and transcoder executables.
package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/config"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/process"
)

// Default executable names looked up on PATH.
const (
	DefaultExtractor  = "yt-dlp"
	DefaultTranscoder = "ffmpeg"
)

// ErrNotFound is returned when a tool cannot be located.
var ErrNotFound = errors.New("tool not found")

// Binaries holds absolute paths to both tools.
type Binaries struct {
	Extractor  string
	Transcoder string
}

// Resolve returns absolute paths for the configured tools. Empty paths fall
// back to the default names on PATH.
func Resolve(cfg config.ToolsConfig) (Binaries, error) {
	extractor, err := ResolvePath(cfg.ExtractorPath, DefaultExtractor)
	if err != nil {
		return Binaries{}, err
	}
	transcoder, err := ResolvePath(cfg.TranscoderPath, DefaultTranscoder)
	if err != nil {
		return Binaries{}, err
	}
	return Binaries{Extractor: extractor, Transcoder: transcoder}, nil
}

// ResolvePath resolves path, or fallback when path is empty, to an absolute
// executable path.
func ResolvePath(path, fallback string) (string, error) {
	name := path
	if name == "" {
		name = fallback
	}

	found, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
	}
	abs, err := filepath.Abs(found)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
	}
	return abs, nil
}

// Checker reports tool versions for readiness probes.
type Checker struct {
	bins    Binaries
	timeout time.Duration
	run     process.Runner
}

// NewChecker creates a Checker for bins. A nil run uses process.Output.
func NewChecker(bins Binaries, timeout time.Duration, run process.Runner) *Checker {
	if run == nil {
		run = process.Output
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{bins: bins, timeout: timeout, run: run}
}

// Versions returns the version line of each tool keyed by role.
func (c *Checker) Versions(ctx context.Context) (map[string]string, error) {
	extractor, err := c.version(ctx, c.bins.Extractor, "--version")
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}
	transcoder, err := c.version(ctx, c.bins.Transcoder, "-version")
	if err != nil {
		return nil, fmt.Errorf("transcoder: %w", err)
	}
	return map[string]string{
		"extractor":  extractor,
		"transcoder": transcoder,
	}, nil
}

func (c *Checker) version(ctx context.Context, path, flag string) (string, error) {
	if path == "" {
		return "", ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.run(ctx, path, flag)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if line == "" {
		return "unknown", nil
	}
	return strings.TrimSpace(line), nil
}
