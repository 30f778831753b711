// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/billagent/internal/models"
	"github.com/mmynk/billagent/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// pragmas are applied by the driver to every new connection.
// Bills are the commercial record, so commits are fsynced (synchronous=FULL)
// rather than relying on WAL's crash-only guarantee.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(FULL)",
	"foreign_keys(ON)",
}

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	return NewContext(context.Background(), dbPath)
}

// NewContext is New with a context bounding the initial migrations.
func NewContext(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func dsn(dbPath string) string {
	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return "file:" + dbPath + sep + strings.Join(params, "&")
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// UpsertBill inserts the bill or replaces every column of the existing row
// with the same ID, created_at included. It is a single statement, so a
// concurrent retention sweep sees either the old row or the new one.
func (s *SQLiteStore) UpsertBill(ctx context.Context, bill *models.Bill) error {
	if err := bill.Validate(); err != nil {
		return err
	}

	payload, err := bill.EncodedPayload()
	if err != nil {
		return fmt.Errorf("failed to encode bill: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bills (id, user, total, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     user = excluded.user,
		     total = excluded.total,
		     payload = excluded.payload,
		     created_at = excluded.created_at`,
		bill.ID, bill.User, bill.Total, string(payload), bill.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert bill: %w", err)
	}

	return nil
}

// GetBill retrieves a bill by ID, decoded from its stored payload.
func (s *SQLiteStore) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM bills WHERE id = ?",
		billID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, billID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}

	bill, err := models.DecodeBill([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode bill %s: %w", billID, err)
	}
	return bill, nil
}

// ListBillsSince retrieves all bills created at or after since, newest first.
func (s *SQLiteStore) ListBillsSince(ctx context.Context, since int64) ([]*models.Bill, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload FROM bills WHERE created_at >= ? ORDER BY created_at DESC, id",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	bills := []*models.Bill{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bill, err := models.DecodeBill([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to decode bill %s: %w", id, err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bills: %w", err)
	}

	return bills, nil
}

// AggregateSince groups bills created at or after since by user.
func (s *SQLiteStore) AggregateSince(ctx context.Context, since int64) ([]models.UserTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user, COUNT(*), COALESCE(SUM(total), 0)
		 FROM bills WHERE created_at >= ?
		 GROUP BY user ORDER BY user`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate bills: %w", err)
	}
	defer rows.Close()

	totals := []models.UserTotal{}
	for rows.Next() {
		var row models.UserTotal
		if err := rows.Scan(&row.User, &row.Count, &row.Sum); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		totals = append(totals, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aggregates: %w", err)
	}

	return totals, nil
}

// DeleteBillsBefore removes bills created strictly before cutoff.
func (s *SQLiteStore) DeleteBillsBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bills WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bills: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted bills: %w", err)
	}
	return n, nil
}
