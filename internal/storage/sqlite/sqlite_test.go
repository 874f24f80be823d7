package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/georgeshao/discord-relay/internal/storage"
	"github.com/georgeshao/discord-relay/pkg/types"
)

func setupTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	// Create temp directory
	tempDir, err := os.MkdirTemp("", "sqlite_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")
	store, err := New(dbPath)
	if err != nil {
		if removeErr := os.RemoveAll(tempDir); removeErr != nil {
			t.Logf("Failed to remove temp dir: %v", removeErr)
		}
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Logf("Failed to close store: %v", closeErr)
		}
		if removeErr := os.RemoveAll(tempDir); removeErr != nil {
			t.Logf("Failed to remove temp dir: %v", removeErr)
		}
	}

	return store, cleanup
}

func newRecord(id string, kind types.DestinationKind, status types.DispatchStatus, createdAt time.Time) *storage.DispatchRecord {
	completed := createdAt.Add(50 * time.Millisecond)
	return &storage.DispatchRecord{
		ID:              id,
		Kind:            kind,
		DestinationID:   "dest-" + id,
		Status:          status,
		TextLength:      2,
		AttachmentCount: 1,
		AttachmentBytes: 9,
		CreatedAt:       createdAt,
		CompletedAt:     &completed,
	}
}

func TestDispatchCreateAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	rec := newRecord("disp_1", types.KindChannel, types.StatusSent, now)
	if err := store.CreateDispatch(ctx, rec); err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}

	retrieved, err := store.GetDispatch(ctx, "disp_1")
	if err != nil {
		t.Fatalf("GetDispatch failed: %v", err)
	}
	if retrieved == nil {
		t.Fatal("GetDispatch returned nil")
	}
	if retrieved.Kind != types.KindChannel {
		t.Errorf("Kind mismatch: got %s", retrieved.Kind)
	}
	if retrieved.Status != types.StatusSent {
		t.Errorf("Status mismatch: got %s", retrieved.Status)
	}
	if retrieved.DestinationID != "dest-disp_1" {
		t.Errorf("DestinationID mismatch: got %s", retrieved.DestinationID)
	}
	if retrieved.AttachmentCount != 1 || retrieved.AttachmentBytes != 9 {
		t.Errorf("Attachment metadata mismatch: got %d/%d", retrieved.AttachmentCount, retrieved.AttachmentBytes)
	}
	if !retrieved.CreatedAt.Equal(time.Unix(0, now.UnixNano())) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", retrieved.CreatedAt, now)
	}
	if retrieved.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if retrieved.Error != nil {
		t.Errorf("Error should be nil, got %s", *retrieved.Error)
	}
}

func TestDispatchNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	rec, err := store.GetDispatch(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetDispatch failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestDispatchWithError(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	rec := newRecord("disp_err", types.KindUser, types.StatusFailed, time.Now())
	msg := "send to user 999: Cannot send messages to this user"
	rec.Error = &msg

	if err := store.CreateDispatch(ctx, rec); err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}

	retrieved, err := store.GetDispatch(ctx, "disp_err")
	if err != nil {
		t.Fatalf("GetDispatch failed: %v", err)
	}
	if retrieved.Error == nil || *retrieved.Error != msg {
		t.Errorf("Error mismatch: got %v", retrieved.Error)
	}
}

func TestDuplicateDispatchRejected(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	rec := newRecord("disp_dup", types.KindChannel, types.StatusSent, time.Now())
	if err := store.CreateDispatch(ctx, rec); err != nil {
		t.Fatalf("CreateDispatch failed: %v", err)
	}
	if err := store.CreateDispatch(ctx, rec); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestListDispatches(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	records := []*storage.DispatchRecord{
		newRecord("disp_a", types.KindChannel, types.StatusSent, base),
		newRecord("disp_b", types.KindUser, types.StatusNotFound, base.Add(time.Second)),
		newRecord("disp_c", types.KindChannel, types.StatusFailed, base.Add(2*time.Second)),
		newRecord("disp_d", types.KindChannel, types.StatusSent, base.Add(3*time.Second)),
	}
	for _, rec := range records {
		if err := store.CreateDispatch(ctx, rec); err != nil {
			t.Fatalf("CreateDispatch failed: %v", err)
		}
	}

	// All, newest first
	list, total, err := store.ListDispatches(ctx, storage.DispatchFilter{})
	if err != nil {
		t.Fatalf("ListDispatches failed: %v", err)
	}
	if total != 4 || len(list) != 4 {
		t.Fatalf("expected 4 dispatches, got %d (total %d)", len(list), total)
	}
	if list[0].ID != "disp_d" || list[3].ID != "disp_a" {
		t.Errorf("unexpected order: first %s, last %s", list[0].ID, list[3].ID)
	}

	// Filter by kind
	kind := types.KindChannel
	list, total, err = store.ListDispatches(ctx, storage.DispatchFilter{Kind: &kind})
	if err != nil {
		t.Fatalf("ListDispatches by kind failed: %v", err)
	}
	if total != 3 || len(list) != 3 {
		t.Errorf("expected 3 channel dispatches, got %d (total %d)", len(list), total)
	}

	// Filter by status
	status := types.StatusSent
	list, _, err = store.ListDispatches(ctx, storage.DispatchFilter{Status: &status})
	if err != nil {
		t.Fatalf("ListDispatches by status failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 sent dispatches, got %d", len(list))
	}

	// Pagination with limit and cursor
	page, total, err := store.ListDispatches(ctx, storage.DispatchFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListDispatches page 1 failed: %v", err)
	}
	if len(page) != 2 || total != 4 {
		t.Fatalf("expected page of 2 (total 4), got %d (total %d)", len(page), total)
	}
	cursor := page[len(page)-1].CreatedAt
	page, _, err = store.ListDispatches(ctx, storage.DispatchFilter{Limit: 2, Cursor: &cursor})
	if err != nil {
		t.Fatalf("ListDispatches page 2 failed: %v", err)
	}
	if len(page) != 2 || page[0].ID != "disp_b" || page[1].ID != "disp_a" {
		t.Errorf("unexpected second page: %+v", page)
	}
}

func TestDispatchStats(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	statuses := []types.DispatchStatus{types.StatusSent, types.StatusSent, types.StatusNotFound, types.StatusFailed}
	for i, status := range statuses {
		rec := newRecord("disp_"+string(rune('a'+i)), types.KindChannel, status, now.Add(time.Duration(i)*time.Millisecond))
		if err := store.CreateDispatch(ctx, rec); err != nil {
			t.Fatalf("CreateDispatch failed: %v", err)
		}
	}

	stats, err := store.GetDispatchStats(ctx)
	if err != nil {
		t.Fatalf("GetDispatchStats failed: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total mismatch: got %d, want 4", stats.Total)
	}
	if stats.Sent != 2 {
		t.Errorf("Sent mismatch: got %d, want 2", stats.Sent)
	}
	if stats.NotFound != 1 {
		t.Errorf("NotFound mismatch: got %d, want 1", stats.NotFound)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed mismatch: got %d, want 1", stats.Failed)
	}
}
