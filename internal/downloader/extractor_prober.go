package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/config"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/pipeline"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/process"
)

// ExtractorProber asks the extractor for the size of the format it would
// select, without downloading anything.
type ExtractorProber struct {
	path   string
	run    process.Runner
	retry  RetryConfig
	logger *slog.Logger
}

// NewExtractorProber creates a prober that runs the extractor at path.
// A nil run uses process.Output.
func NewExtractorProber(path string, cfg config.StreamConfig, run process.Runner, logger *slog.Logger) *ExtractorProber {
	if run == nil {
		run = process.Output
	}
	retry := DefaultRetryConfig()
	if cfg.ProbeAttempts > 0 {
		retry.MaxAttempts = cfg.ProbeAttempts
	}
	return &ExtractorProber{
		path:   path,
		run:    run,
		retry:  retry,
		logger: logger,
	}
}

// Args returns the argument vector used to query the size of url.
func (p *ExtractorProber) Args(url string, opts domain.Options) []string {
	return []string{
		"--no-playlist",
		"--no-warnings",
		"--skip-download",
		"-f", pipeline.FormatSelector(opts.Format),
		"--print", "%(filesize,filesize_approx)s",
		"--", url,
	}
}

// ProbeSize returns the reported size of the selected format, or 0 when the
// extractor cannot tell.
func (p *ExtractorProber) ProbeSize(ctx context.Context, url string, opts domain.Options) (int64, error) {
	if opts.AudioOnly {
		return 0, nil
	}

	out, err := Retry(ctx, p.retry, func() ([]byte, error) {
		return p.run(ctx, p.path, p.Args(url, opts)...)
	})
	if err != nil {
		p.logger.Debug("extractor probe failed", "url", url, "error", err)
		return 0, fmt.Errorf("extractor probe: %w", err)
	}
	return parseSize(out), nil
}

// parseSize reads the last non-empty line of out as a byte count. The
// extractor prints NA when neither size field is known.
func parseSize(out []byte) int64 {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	v, err := strconv.ParseFloat(last, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return int64(v)
}
