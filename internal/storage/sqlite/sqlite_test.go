package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/billagent/internal/models"
	"github.com/mmynk/billagent/internal/storage"
)

const hour = int64(time.Hour / time.Millisecond)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "bills.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dbPath
}

func testBill(id, user string, total float64, createdAt int64) *models.Bill {
	return &models.Bill{
		ID:        id,
		User:      user,
		Lines:     []models.LineItem{{Desc: "General Item", Qty: 1, Price: total, Total: total}},
		Total:     total,
		CreatedAt: createdAt,
	}
}

func TestSQLiteStore(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	t.Run("UpsertBill then GetBill returns the bill", func(t *testing.T) {
		bill := &models.Bill{
			ID:   "bill-1",
			User: "Alice",
			Lines: []models.LineItem{
				{Desc: "Tea", Qty: 2, Price: 10, Total: 20},
				{Desc: "Samosa", Qty: 3, Price: 15, Total: 45},
			},
			Total:     65,
			CreatedAt: now,
		}
		if err := store.UpsertBill(ctx, bill); err != nil {
			t.Fatalf("UpsertBill failed: %v", err)
		}

		got, err := store.GetBill(ctx, "bill-1")
		if err != nil {
			t.Fatalf("GetBill failed: %v", err)
		}
		if got.User != "Alice" || got.Total != 65 || got.CreatedAt != now {
			t.Errorf("unexpected bill: %+v", got)
		}
		if len(got.Lines) != 2 {
			t.Fatalf("Lines count mismatch: got %d, want 2", len(got.Lines))
		}
		if got.Lines[1].Desc != "Samosa" || got.Lines[1].Qty != 3 {
			t.Errorf("line order or content lost: %+v", got.Lines)
		}
	})

	t.Run("upserting the same id replaces the record in full", func(t *testing.T) {
		first := testBill("bill-2", "Bob", 10, now-2*hour)
		second := testBill("bill-2", "Carol", 99, now-hour)

		if err := store.UpsertBill(ctx, first); err != nil {
			t.Fatalf("first upsert failed: %v", err)
		}
		if err := store.UpsertBill(ctx, second); err != nil {
			t.Fatalf("second upsert failed: %v", err)
		}
		// Retrying the same payload must not change anything.
		if err := store.UpsertBill(ctx, second); err != nil {
			t.Fatalf("retried upsert failed: %v", err)
		}

		got, err := store.GetBill(ctx, "bill-2")
		if err != nil {
			t.Fatalf("GetBill failed: %v", err)
		}
		if got.User != "Carol" || got.Total != 99 || got.CreatedAt != now-hour {
			t.Errorf("expected second payload only, got %+v", got)
		}

		bills, err := store.ListBillsSince(ctx, 0)
		if err != nil {
			t.Fatalf("ListBillsSince failed: %v", err)
		}
		count := 0
		for _, b := range bills {
			if b.ID == "bill-2" {
				count++
			}
		}
		if count != 1 {
			t.Errorf("expected exactly one bill-2, found %d", count)
		}
	})

	t.Run("GetBill returns ErrNotFound for nonexistent bill", func(t *testing.T) {
		_, err := store.GetBill(ctx, "nonexistent-id")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpsertBill rejects a bill without id", func(t *testing.T) {
		err := store.UpsertBill(ctx, &models.Bill{User: "Nobody"})
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("Expected ValidationError, got %v", err)
		}
	})
}

func TestUpsertBill_KeepsOriginalPayload(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	raw := `{"id":"p1","user":"Alice","lines":[{"id":"line-9","desc":"Tea","qty":1,"price":10,"total":10}],"total":10,"createdAt":1700000000000,"terminal":"till-2"}`
	bill, err := models.DecodeBill([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeBill failed: %v", err)
	}
	if err := store.UpsertBill(ctx, bill); err != nil {
		t.Fatalf("UpsertBill failed: %v", err)
	}

	got, err := store.GetBill(ctx, "p1")
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	if string(got.Payload) != raw {
		t.Errorf("payload changed:\n got %s\nwant %s", got.Payload, raw)
	}
	if !strings.Contains(string(got.Payload), `"terminal":"till-2"`) {
		t.Error("unknown fields were dropped from payload")
	}
}

func TestDeleteBillsBefore_RetentionBoundary(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	for _, b := range []*models.Bill{
		testBill("old", "Alice", 10, now-25*hour),
		testBill("recent", "Alice", 10, now-23*hour),
		testBill("edge", "Bob", 10, now-24*hour),
	} {
		if err := store.UpsertBill(ctx, b); err != nil {
			t.Fatalf("UpsertBill(%s) failed: %v", b.ID, err)
		}
	}

	removed, err := store.DeleteBillsBefore(ctx, now-24*hour)
	if err != nil {
		t.Fatalf("DeleteBillsBefore failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := store.GetBill(ctx, "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected old bill to be deleted, got %v", err)
	}
	for _, id := range []string{"recent", "edge"} {
		if _, err := store.GetBill(ctx, id); err != nil {
			t.Errorf("expected %s to survive: %v", id, err)
		}
	}

	removed, err = store.DeleteBillsBefore(ctx, now-24*hour)
	if err != nil {
		t.Fatalf("second DeleteBillsBefore failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("second sweep removed %d, want 0", removed)
	}
}

func TestUpsertBill_ResetsRetentionClock(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	if err := store.UpsertBill(ctx, testBill("stale", "Alice", 10, now-30*hour)); err != nil {
		t.Fatalf("UpsertBill failed: %v", err)
	}
	// Resent with a fresh timestamp before the sweep runs.
	if err := store.UpsertBill(ctx, testBill("stale", "Alice", 10, now)); err != nil {
		t.Fatalf("UpsertBill failed: %v", err)
	}

	removed, err := store.DeleteBillsBefore(ctx, now-24*hour)
	if err != nil {
		t.Fatalf("DeleteBillsBefore failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("refreshed bill was deleted")
	}
}

func TestUpsertBill_RefreshSurvivesRacingSweep(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		now := time.Now().UnixMilli()
		if err := store.UpsertBill(ctx, testBill("resent", "Alice", 10, now-30*hour)); err != nil {
			t.Fatalf("UpsertBill failed: %v", err)
		}

		var wg sync.WaitGroup
		var upsertErr, sweepErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			upsertErr = store.UpsertBill(ctx, testBill("resent", "Alice", 10, now))
		}()
		go func() {
			defer wg.Done()
			_, sweepErr = store.DeleteBillsBefore(ctx, now-24*hour)
		}()
		wg.Wait()

		if upsertErr != nil {
			t.Fatalf("iteration %d: UpsertBill failed: %v", i, upsertErr)
		}
		if sweepErr != nil {
			t.Fatalf("iteration %d: DeleteBillsBefore failed: %v", i, sweepErr)
		}

		got, err := store.GetBill(ctx, "resent")
		if err != nil {
			t.Fatalf("iteration %d: refreshed bill lost: %v", i, err)
		}
		if got.CreatedAt != now {
			t.Fatalf("iteration %d: createdAt = %d, want %d", i, got.CreatedAt, now)
		}
	}
}

func TestAggregateSince(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	for _, b := range []*models.Bill{
		testBill("a1", "userA", 10, now-hour),
		testBill("a2", "userA", 5, now-30*hour),
		testBill("b1", "userB", 7, now-2*hour),
	} {
		if err := store.UpsertBill(ctx, b); err != nil {
			t.Fatalf("UpsertBill(%s) failed: %v", b.ID, err)
		}
	}

	rows, err := store.AggregateSince(ctx, now-24*hour)
	if err != nil {
		t.Fatalf("AggregateSince failed: %v", err)
	}

	want := []models.UserTotal{
		{User: "userA", Count: 1, Sum: 10},
		{User: "userB", Count: 1, Sum: 7},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}

	empty, err := store.AggregateSince(ctx, now+hour)
	if err != nil {
		t.Fatalf("AggregateSince failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestListBillsSince(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	for _, b := range []*models.Bill{
		testBill("older", "Alice", 1, now-3*hour),
		testBill("newest", "Alice", 2, now-hour),
		testBill("outside", "Alice", 3, now-48*hour),
	} {
		if err := store.UpsertBill(ctx, b); err != nil {
			t.Fatalf("UpsertBill(%s) failed: %v", b.ID, err)
		}
	}

	bills, err := store.ListBillsSince(ctx, now-24*hour)
	if err != nil {
		t.Fatalf("ListBillsSince failed: %v", err)
	}
	if len(bills) != 2 {
		t.Fatalf("got %d bills, want 2", len(bills))
	}
	if bills[0].ID != "newest" || bills[1].ID != "older" {
		t.Errorf("unexpected order: %s, %s", bills[0].ID, bills[1].ID)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "bills.db")
	ctx := context.Background()

	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := store.UpsertBill(ctx, testBill("durable", "Alice", 42, time.Now().UnixMilli())); err != nil {
		t.Fatalf("UpsertBill failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetBill(ctx, "durable")
	if err != nil {
		t.Fatalf("GetBill after reopen failed: %v", err)
	}
	if got.Total != 42 {
		t.Errorf("Total = %v, want 42", got.Total)
	}
}

func TestConcurrentUpserts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if err := store.UpsertBill(ctx, testBill(id, fmt.Sprintf("user%d", w), 1, now)); err != nil {
					errs <- err
				}
			}
		}(w)
	}

	// A sweep racing the writers must not touch fresh bills.
	if _, err := store.DeleteBillsBefore(ctx, now-24*hour); err != nil {
		t.Errorf("concurrent sweep failed: %v", err)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent upsert failed: %v", err)
	}

	bills, err := store.ListBillsSince(ctx, 0)
	if err != nil {
		t.Fatalf("ListBillsSince failed: %v", err)
	}
	if len(bills) != writers*perWriter {
		t.Errorf("got %d bills, want %d", len(bills), writers*perWriter)
	}
}

func TestDSN(t *testing.T) {
	got := dsn("/var/lib/billagent/bills.db")
	if !strings.HasPrefix(got, "file:/var/lib/billagent/bills.db?_pragma=busy_timeout(5000)") {
		t.Errorf("unexpected dsn: %s", got)
	}
	if !strings.Contains(got, "&_pragma=journal_mode(WAL)") {
		t.Errorf("dsn missing WAL pragma: %s", got)
	}
}
