package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrShutdownTimeout is returned when the janitor doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("janitor shutdown timed out")

// Pruner drops expired entries and reports how many it removed.
type Pruner interface {
	PruneFinished(now time.Time) int
}

// Janitor periodically prunes finished stream sessions.
type Janitor struct {
	interval time.Duration
	pruner   Pruner
	logger   *slog.Logger
	now      func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewJanitor creates a new janitor. Intervals <= 0 default to 30s.
func NewJanitor(interval time.Duration, pruner Pruner, logger *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Janitor{
		interval: interval,
		pruner:   pruner,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the prune loop.
func (j *Janitor) Start() {
	j.logger.Info("starting janitor", "interval", j.interval)

	j.wg.Add(1)
	go j.run()
}

// Stop stops the prune loop.
func (j *Janitor) Stop(timeout time.Duration) error {
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.logger.Info("janitor stopped")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			if n := j.pruner.PruneFinished(j.now()); n > 0 {
				j.logger.Debug("pruned finished sessions", "count", n)
			}
		}
	}
}
