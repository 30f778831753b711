// Package report computes the per-user sales summary served by the agent.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/mmynk/billagent/internal/models"
)

// DefaultWindow is how far back the report looks.
const DefaultWindow = 24 * time.Hour

// Source is the part of the store the aggregator reads.
type Source interface {
	AggregateSince(ctx context.Context, since int64) ([]models.UserTotal, error)
}

// Aggregator summarises bills created within a trailing window.
// Every call reads the store; nothing is cached.
type Aggregator struct {
	source Source
	window time.Duration
	now    func() time.Time
}

// New returns an Aggregator over source. A non-positive window means DefaultWindow.
func New(source Source, window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{source: source, window: window, now: time.Now}
}

// Window returns the trailing window the report covers.
func (a *Aggregator) Window() time.Duration { return a.window }

// Since returns the start of the current window in Unix milliseconds.
func (a *Aggregator) Since() int64 {
	return a.now().Add(-a.window).UnixMilli()
}

// Report returns one row per user with their bill count and total over
// the window, ordered by user.
func (a *Aggregator) Report(ctx context.Context) ([]models.UserTotal, error) {
	rows, err := a.source.AggregateSince(ctx, a.Since())
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}
	if rows == nil {
		rows = []models.UserTotal{}
	}
	return rows, nil
}
