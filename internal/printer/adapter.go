package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mmynk/billagent/internal/models"
)

// DefaultTimeout bounds a single probe or print when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

var (
	// ErrUnavailable is returned by Print when the last probe failed.
	ErrUnavailable = errors.New("printer unavailable")

	// ErrNotConfigured is returned by the driver used when no printer
	// target is configured.
	ErrNotConfigured = errors.New("printer not configured")

	errBusy = errors.New("waiting for printer")
)

// ExecutionError is returned by Print when the printer was available but
// the job did not complete, including when it timed out.
type ExecutionError struct {
	BillID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("print bill %s: %v", e.BillID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Driver is the hardware capability behind the adapter.
// Implementations should honour ctx where the underlying I/O allows it;
// the adapter enforces its timeout either way.
type Driver interface {
	// Probe reports whether the printer can currently be reached.
	Probe(ctx context.Context) error

	// Execute sends a rendered receipt to the printer.
	Execute(ctx context.Context, receipt []byte) error
}

// Options configures an Adapter.
type Options struct {
	Renderer *Renderer
	Timeout  time.Duration
	Logger   *slog.Logger

	// OnProbe, when set, is called with the result of every probe.
	OnProbe func(available bool)
}

// Adapter is the capability-gated wrapper around a Driver.
// It is safe for concurrent use.
type Adapter struct {
	driver   Driver
	renderer *Renderer
	timeout  time.Duration
	logger   *slog.Logger
	onProbe  func(bool)

	available atomic.Bool
	// slot admits one driver call at a time.
	slot chan struct{}
}

// NewAdapter wraps driver and probes it once. A failed probe leaves the
// adapter unavailable; it never fails construction.
func NewAdapter(ctx context.Context, driver Driver, opts Options) *Adapter {
	a := &Adapter{
		driver:   driver,
		renderer: opts.Renderer,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		onProbe:  opts.OnProbe,
		slot:     make(chan struct{}, 1),
	}
	if a.renderer == nil {
		a.renderer = DefaultRenderer()
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	if a.Probe(ctx) {
		a.logger.Info("Printer available")
	} else {
		a.logger.Warn("Printer unavailable, receipts will not be printed")
	}
	return a
}

// IsAvailable returns the cached result of the last probe.
func (a *Adapter) IsAvailable() bool {
	return a.available.Load()
}

// Probe asks the driver whether the printer is reachable, updates the
// cached availability and returns it. When a print job holds the printer
// for the whole timeout the probe is skipped and the cached value stands.
func (a *Adapter) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	err := a.run(ctx, a.driver.Probe)
	if errors.Is(err, errBusy) {
		a.logger.Debug("Printer busy, keeping last probe result", "error", err)
		return a.available.Load()
	}
	available := err == nil
	previous := a.available.Swap(available)

	if err != nil && previous {
		a.logger.Warn("Printer probe failed", "error", err)
	} else if err != nil {
		a.logger.Debug("Printer probe failed", "error", err)
	} else if !previous {
		a.logger.Debug("Printer probe succeeded")
	}
	if a.onProbe != nil {
		a.onProbe(available)
	}
	return available
}

// RunProbeLoop re-probes the printer every interval until ctx is done.
// It returns immediately when interval is not positive.
func (a *Adapter) RunProbeLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			before := a.IsAvailable()
			if after := a.Probe(ctx); after != before {
				a.logger.Info("Printer availability changed", "available", after)
			}
		}
	}
}

// Print renders the bill and sends it to the printer.
// It returns ErrUnavailable without touching the driver when the last probe
// failed, and an *ExecutionError when the driver fails or times out.
func (a *Adapter) Print(ctx context.Context, bill *models.Bill) error {
	if !a.IsAvailable() {
		return ErrUnavailable
	}

	receipt := []byte(a.renderer.Render(bill))

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	err := a.run(ctx, func(ctx context.Context) error {
		return a.driver.Execute(ctx, receipt)
	})
	if err != nil {
		return &ExecutionError{BillID: bill.ID, Err: err}
	}
	return nil
}

// run calls fn on its own goroutine once the printer slot is free and
// returns when fn does or ctx is done, whichever comes first. The slot is
// released only when fn actually returns, so a hung driver keeps later
// calls waiting (and timing out) instead of piling onto the device.
func (a *Adapter) run(ctx context.Context, fn func(context.Context) error) error {
	select {
	case a.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errBusy, ctx.Err())
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-a.slot }()
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("printer driver panicked: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
