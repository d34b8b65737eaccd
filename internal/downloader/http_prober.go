package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/config"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

var errRetryableStatus = errors.New("retryable status")

// HTTPProber sizes direct media URLs with a HEAD request.
type HTTPProber struct {
	client    *http.Client
	userAgent string
	retry     RetryConfig
	logger    *slog.Logger
}

// NewHTTPProber creates a new HEAD-based prober.
func NewHTTPProber(cfg config.StreamConfig, logger *slog.Logger) *HTTPProber {
	retry := DefaultRetryConfig()
	if cfg.ProbeAttempts > 0 {
		retry.MaxAttempts = cfg.ProbeAttempts
	}
	return &HTTPProber{
		client: &http.Client{
			Timeout: cfg.ProbeTimeout,
		},
		userAgent: cfg.ProbeUserAgent,
		retry:     retry,
		logger:    logger,
	}
}

// Probe checks URL accessibility without downloading content. Transport and
// status failures are reported in the result, not as an error.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &ProbeResult{
			Accessible: false,
			Error:      err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	result := &ProbeResult{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		StatusCode:    resp.StatusCode,
		Accessible:    resp.StatusCode == http.StatusOK,
	}
	if !result.Accessible {
		result.Error = fmt.Sprintf("status code %d", resp.StatusCode)
	}
	return result, nil
}

// ProbeSize returns the Content-Length of an http(s) URL. Audio-only sessions
// are re-encoded by the extractor, so their size is never known up front.
func (p *HTTPProber) ProbeSize(ctx context.Context, rawURL string, opts domain.Options) (int64, error) {
	if opts.AudioOnly || !isHTTP(rawURL) {
		return 0, nil
	}

	result, err := RetryWithCheck(ctx, p.retry, func() (*ProbeResult, error) {
		res, err := p.Probe(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !res.Accessible {
			if retryableStatus(res.StatusCode) {
				return nil, fmt.Errorf("%w: %s", errRetryableStatus, res.Error)
			}
			return nil, errors.New(res.Error)
		}
		return res, nil
	}, isRetryableProbe)
	if err != nil {
		p.logger.Debug("http probe failed", "url", rawURL, "error", err)
		return 0, err
	}

	if result.ContentLength <= 0 {
		return 0, nil
	}
	return result.ContentLength, nil
}

func isRetryableProbe(err error) bool {
	return errors.Is(err, errRetryableStatus)
}

// retryableStatus reports whether a probe outcome may succeed on retry.
// StatusCode 0 means the request never got a response.
func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
