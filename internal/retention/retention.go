// Package retention purges bills that have aged out of the retention window.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/billagent/internal/metrics"
)

const (
	DefaultWindow       = 24 * time.Hour
	DefaultInterval     = time.Hour
	DefaultSweepTimeout = time.Minute
)

// Deleter is the part of the store the scheduler uses.
type Deleter interface {
	DeleteBillsBefore(ctx context.Context, cutoff int64) (int64, error)
}

// Config configures a Scheduler. Zero values take the defaults above.
type Config struct {
	Window       time.Duration
	Interval     time.Duration
	SweepTimeout time.Duration

	// SweepOnStart runs one sweep as soon as Run is called instead of
	// waiting a full interval.
	SweepOnStart bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Scheduler deletes bills older than the window on a fixed interval.
// It shares nothing with request handlers except the store.
type Scheduler struct {
	store        Deleter
	window       time.Duration
	interval     time.Duration
	sweepTimeout time.Duration
	sweepOnStart bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// New creates a Scheduler over store.
func New(store Deleter, cfg Config) *Scheduler {
	s := &Scheduler{
		store:        store,
		window:       cfg.Window,
		interval:     cfg.Interval,
		sweepTimeout: cfg.SweepTimeout,
		sweepOnStart: cfg.SweepOnStart,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          time.Now,
	}
	if s.window <= 0 {
		s.window = DefaultWindow
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.sweepTimeout <= 0 {
		s.sweepTimeout = DefaultSweepTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Cutoff returns the creation time, in Unix milliseconds, before which
// bills are deleted by a sweep started now.
func (s *Scheduler) Cutoff() int64 {
	return s.now().Add(-s.window).UnixMilli()
}

// Sweep deletes every bill created before Cutoff and returns how many
// were removed. A panic inside the store is returned as an error.
func (s *Scheduler) Sweep(ctx context.Context) (deleted int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retention sweep panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.sweepTimeout)
	defer cancel()

	return s.store.DeleteBillsBefore(ctx, s.Cutoff())
}

// Run sweeps every interval until ctx is cancelled. A failed sweep is
// logged and the next tick proceeds as normal. Run always returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Retention scheduler started", "window", s.window, "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.sweepOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	deleted, err := s.Sweep(ctx)
	s.metrics.Sweep(deleted, err)
	if err != nil {
		s.logger.Error("Retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("Deleted old bills",
			"count", deleted,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		s.logger.Debug("Retention sweep found nothing to delete")
	}
}
