// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/billagent/internal/models"
)

// ErrNotFound is returned when a bill does not exist.
var ErrNotFound = errors.New("bill not found")

// Store defines the interface for bill storage operations.
// This abstraction allows swapping storage backends without changing the
// service layer, and lets tests substitute a failing store.
//
// All timestamps are Unix milliseconds, matching Bill.CreatedAt.
type Store interface {
	// UpsertBill inserts the bill or fully replaces the stored bill with the
	// same ID. Applying the same bill twice leaves the same state as once.
	UpsertBill(ctx context.Context, bill *models.Bill) error

	// GetBill retrieves a bill by its ID.
	// Returns ErrNotFound if the bill does not exist.
	GetBill(ctx context.Context, billID string) (*models.Bill, error)

	// ListBillsSince returns every bill created at or after since, newest first.
	ListBillsSince(ctx context.Context, since int64) ([]*models.Bill, error)

	// AggregateSince returns per-user bill counts and totals for bills
	// created at or after since, ordered by user.
	AggregateSince(ctx context.Context, since int64) ([]models.UserTotal, error)

	// DeleteBillsBefore removes every bill created before cutoff and
	// returns how many were removed.
	DeleteBillsBefore(ctx context.Context, cutoff int64) (int64, error)

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
