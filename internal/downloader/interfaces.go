package downloader

import (
	"context"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

// Prober estimates the byte size of the media a session would produce.
// A size of 0 means unknown.
type Prober interface {
	ProbeSize(ctx context.Context, url string, opts domain.Options) (int64, error)
}

// ProbeResult contains information about a media URL.
type ProbeResult struct {
	ContentType   string
	ContentLength int64
	StatusCode    int
	Accessible    bool
	Error         string
}
