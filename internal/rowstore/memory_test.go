package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/ucprov/internal/faults"
)

func TestMemoryStoreSaveAndLoad(t *testing.T) {
	store := NewMemoryStore(Config{TTL: 4 * time.Hour})
	jobID := uuid.New()
	ctx := context.Background()

	rows := map[int]json.RawMessage{
		2: json.RawMessage(`{"action":"CREATE"}`),
		3: json.RawMessage(`{"action":"IGNORE"}`),
	}
	if err := store.SaveSheet(ctx, jobID, "numbers", rows); err != nil {
		t.Fatalf("SaveSheet() error: %v", err)
	}

	sheet, err := store.Sheet(ctx, jobID, "numbers")
	if err != nil {
		t.Fatalf("Sheet() error: %v", err)
	}
	if len(sheet) != 2 {
		t.Fatalf("sheet has %d rows, want 2", len(sheet))
	}

	row, err := store.Row(ctx, jobID, "numbers", 3)
	if err != nil {
		t.Fatalf("Row() error: %v", err)
	}
	if string(row) != `{"action":"IGNORE"}` {
		t.Fatalf("row = %s", row)
	}
}

func TestMemoryStoreMissingRow(t *testing.T) {
	store := NewMemoryStore(Config{TTL: time.Hour})
	ctx := context.Background()

	_, err := store.Row(ctx, uuid.New(), "numbers", 2)
	if !errors.Is(err, faults.ErrRowNotFound) {
		t.Fatalf("error = %v, want ErrRowNotFound", err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStore(Config{TTL: 4 * time.Hour})
	jobID := uuid.New()
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	rows := map[int]json.RawMessage{2: json.RawMessage(`{}`)}
	if err := store.SaveSheet(ctx, jobID, "numbers", rows); err != nil {
		t.Fatalf("SaveSheet() error: %v", err)
	}

	// Just inside the TTL the row is still readable.
	store.now = func() time.Time { return base.Add(4*time.Hour - time.Second) }
	if _, err := store.Row(ctx, jobID, "numbers", 2); err != nil {
		t.Fatalf("row expired early: %v", err)
	}

	// Past the TTL the row behaves exactly like one that never existed.
	store.now = func() time.Time { return base.Add(4*time.Hour + time.Second) }
	if _, err := store.Row(ctx, jobID, "numbers", 2); !errors.Is(err, faults.ErrRowNotFound) {
		t.Fatalf("error = %v, want ErrRowNotFound after expiry", err)
	}
	sheet, err := store.Sheet(ctx, jobID, "numbers")
	if err != nil {
		t.Fatalf("Sheet() error: %v", err)
	}
	if len(sheet) != 0 {
		t.Fatalf("expired sheet still returned %d rows", len(sheet))
	}
}

func TestMemoryStoreReplaceResetsTTL(t *testing.T) {
	store := NewMemoryStore(Config{TTL: time.Hour})
	jobID := uuid.New()
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }
	if err := store.SaveSheet(ctx, jobID, "numbers",
		map[int]json.RawMessage{2: json.RawMessage(`{"v":1}`)}); err != nil {
		t.Fatalf("SaveSheet() error: %v", err)
	}

	// Re-upload 50 minutes later restarts the clock.
	store.now = func() time.Time { return base.Add(50 * time.Minute) }
	if err := store.SaveSheet(ctx, jobID, "numbers",
		map[int]json.RawMessage{2: json.RawMessage(`{"v":2}`)}); err != nil {
		t.Fatalf("SaveSheet() error: %v", err)
	}

	store.now = func() time.Time { return base.Add(100 * time.Minute) }
	row, err := store.Row(ctx, jobID, "numbers", 2)
	if err != nil {
		t.Fatalf("Row() error: %v", err)
	}
	if string(row) != `{"v":2}` {
		t.Fatalf("row = %s, want replacement", row)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(Config{TTL: time.Hour})
	jobID := uuid.New()
	ctx := context.Background()

	if err := store.SaveSheet(ctx, jobID, "numbers",
		map[int]json.RawMessage{2: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("SaveSheet() error: %v", err)
	}
	if err := store.Delete(ctx, jobID, "numbers"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Row(ctx, jobID, "numbers", 2); !errors.Is(err, faults.ErrRowNotFound) {
		t.Fatalf("error = %v, want ErrRowNotFound after delete", err)
	}
}
