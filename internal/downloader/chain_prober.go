package downloader

import (
	"context"
	"errors"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

// ChainProber asks each prober in turn and returns the first known size.
type ChainProber struct {
	probers []Prober
}

// NewChainProber creates a prober over probers, tried in order.
func NewChainProber(probers ...Prober) *ChainProber {
	return &ChainProber{probers: probers}
}

// ProbeSize returns the first positive size. Errors are returned only when
// no prober produced a size.
func (c *ChainProber) ProbeSize(ctx context.Context, url string, opts domain.Options) (int64, error) {
	var errs []error
	for _, p := range c.probers {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		size, err := p.ProbeSize(ctx, url, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if size > 0 {
			return size, nil
		}
	}
	return 0, errors.Join(errs...)
}
