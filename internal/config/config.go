// Package config loads the agent configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port   string
	DBPath string

	// PrinterTarget is a device path, "tcp://host:port", or empty for no printer.
	PrinterTarget          string
	PrinterTitle           string
	PrinterCurrency        string
	PrinterWidth           int
	PrintTimeout           time.Duration
	PrinterReprobeInterval time.Duration

	RetentionWindow time.Duration
	SweepInterval   time.Duration
	ReportWindow    time.Duration

	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Timezone is an IANA zone name used for receipt timestamps; empty means local time.
	Timezone string
}

// Load loads configuration from environment with sensible defaults.
// Precedence: explicit env var > .env file (if loaded by the caller) > default.
func Load() Config {
	cfg := Config{}
	cfg.Port = getEnv("PORT", "3000")
	cfg.DBPath = getEnv("DB_PATH", "./data/bills.db")

	// PRINTER_TARGET="" disables printing, so presence matters, not just value.
	cfg.PrinterTarget = "/dev/usb/lp0"
	if v, ok := os.LookupEnv("PRINTER_TARGET"); ok {
		cfg.PrinterTarget = v
	}
	cfg.PrinterTitle = getEnv("PRINTER_TITLE", "General Billing")
	cfg.PrinterCurrency = getEnv("PRINTER_CURRENCY", "₹")
	cfg.PrinterWidth = ParseInt("PRINTER_WIDTH", 48)
	cfg.PrintTimeout = ParseDuration("PRINT_TIMEOUT", 5*time.Second)
	cfg.PrinterReprobeInterval = ParseDuration("PRINTER_REPROBE_INTERVAL", 0)

	cfg.RetentionWindow = ParseDuration("RETENTION_WINDOW", 24*time.Hour)
	cfg.SweepInterval = ParseDuration("SWEEP_INTERVAL", time.Hour)
	cfg.ReportWindow = ParseDuration("REPORT_WINDOW", 24*time.Hour)

	cfg.StoreTimeout = ParseDuration("STORE_TIMEOUT", 5*time.Second)
	cfg.ShutdownTimeout = ParseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.MaxBodyBytes = int64(ParseInt("MAX_BODY_BYTES", 1<<20))

	cfg.Timezone = os.Getenv("TIMEZONE")
	return cfg
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ParseDuration reads an env var as a time.Duration with default.
// Negative values are rejected.
func ParseDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			slog.Warn("Invalid duration, using default", "key", key, "value", v, "default", def)
			return def
		}
		return d
	}
	return def
}

// ParseInt reads an env var as a positive int with default.
func ParseInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			slog.Warn("Invalid integer, using default", "key", key, "value", v, "default", def)
			return def
		}
		return n
	}
	return def
}
