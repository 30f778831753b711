package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/billagent/internal/config"
	"github.com/mmynk/billagent/internal/metrics"
	"github.com/mmynk/billagent/internal/middleware"
	"github.com/mmynk/billagent/internal/printer"
	"github.com/mmynk/billagent/internal/report"
	"github.com/mmynk/billagent/internal/retention"
	"github.com/mmynk/billagent/internal/service"
	"github.com/mmynk/billagent/internal/storage/sqlite"
	"github.com/mmynk/billagent/pkg/logging"
)

var (
	envFile     = pflag.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	migrateOnly = pflag.Bool("migrate-only", false, "create or update the database schema and exit")
)

func main() {
	pflag.Parse()

	// Load .env first so LOG_LEVEL and friends can come from it.
	envErr := godotenv.Load(*envFile)
	logging.Setup()
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		slog.Warn("Failed to load env file", "path", *envFile, "error", envErr)
	}

	if err := run(); err != nil {
		slog.Error("Agent failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	store, err := sqlite.NewContext(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	if *migrateOnly {
		slog.Info("Migrations completed, exiting as requested")
		return nil
	}

	m := metrics.New()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	adapter := printer.NewAdapter(ctx, printer.OpenDriver(cfg.PrinterTarget, nil), printer.Options{
		Renderer: &printer.Renderer{
			Title:    cfg.PrinterTitle,
			Currency: cfg.PrinterCurrency,
			Width:    cfg.PrinterWidth,
			Location: loc,
		},
		Timeout: cfg.PrintTimeout,
		OnProbe: m.PrinterAvailable,
	})

	reports := report.New(store, cfg.ReportWindow)
	slog.Info("Report window configured", "window", reports.Window())

	svc := service.NewAgentService(store, adapter, reports, service.Options{
		StoreTimeout:  cfg.StoreTimeout,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		HistoryWindow: cfg.RetentionWindow,
		Metrics:       m,
	})

	scheduler := retention.New(store, retention.Config{
		Window:       cfg.RetentionWindow,
		Interval:     cfg.SweepInterval,
		SweepOnStart: true,
		Metrics:      m,
	})

	mux := http.NewServeMux()
	svc.Register(mux)
	mux.Handle("GET /metrics", m.Handler())

	srv := &http.Server{
		Addr: cfg.Addr(),
		// h2c lets local clients use HTTP/2 without TLS.
		Handler:           h2c.NewHandler(middleware.Chain(mux, m), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Print agent starting",
			"address", srv.Addr,
			"url", fmt.Sprintf("http://localhost%s", srv.Addr),
			"printer", cfg.PrinterTarget,
			"printer_available", adapter.IsAvailable(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	g.Go(func() error {
		return adapter.RunProbeLoop(gctx, cfg.PrinterReprobeInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		slog.Info("Server gracefully stopped")
		return nil
	})

	return g.Wait()
}
