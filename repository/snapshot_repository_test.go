package repository

import (
	"context"
	"testing"
	"time"

	"riderSync/internal/testutil"
	"riderSync/models"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "snap_roundtrip")
	repo := NewSnapshotRepository(d)
	ctx := context.Background()

	snap := models.Snapshot{
		{ID: "o-1", Status: models.OrderStatusReady, Kind: models.OrderKindDelivery, UpdatedAt: time.Now().UTC().Truncate(time.Millisecond)},
		{ID: "o-2", Status: models.OrderStatusOutForDelivery, Kind: models.OrderKindDelivery, UpdatedAt: time.Now().UTC().Truncate(time.Millisecond)},
	}
	if err := repo.Save(ctx, "c-1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	cached, err := repo.Load(ctx, "c-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cached == nil {
		t.Fatalf("expected cached snapshot")
	}
	if len(cached.Orders) != 2 || cached.Orders[0].ID != "o-1" || cached.Orders[1].Status != models.OrderStatusOutForDelivery {
		t.Fatalf("unexpected cached orders: %+v", cached.Orders)
	}
	if time.Since(cached.CapturedAt) > time.Minute {
		t.Fatalf("capturedAt should be recent, got %v", cached.CapturedAt)
	}
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "snap_overwrite")
	repo := NewSnapshotRepository(d)
	ctx := context.Background()

	if err := repo.Save(ctx, "c-1", models.Snapshot{{ID: "old"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, "c-1", models.Snapshot{{ID: "new-1"}, {ID: "new-2"}}); err != nil {
		t.Fatalf("save second: %v", err)
	}
	cached, err := repo.Load(ctx, "c-1")
	if err != nil || cached == nil {
		t.Fatalf("load: %v, %v", cached, err)
	}
	if len(cached.Orders) != 2 || cached.Orders[0].ID != "new-1" {
		t.Fatalf("upsert did not replace the row: %+v", cached.Orders)
	}
}

func TestLoadMissingCourierReturnsNil(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "snap_missing")
	repo := NewSnapshotRepository(d)
	cached, err := repo.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cached != nil {
		t.Fatalf("expected nil for missing courier, got %+v", cached)
	}
}

func TestLoadExpiredRowIsDiscarded(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "snap_expired")
	repo := NewSnapshotRepository(d)
	ctx := context.Background()

	if err := repo.Save(ctx, "c-1", models.Snapshot{{ID: "o-1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Age the row past the TTL by moving the repository clock forward.
	repo.now = func() time.Time { return time.Now().Add(CacheTTL + time.Minute) }

	cached, err := repo.Load(ctx, "c-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cached != nil {
		t.Fatalf("expired cache must never be served, got %+v", cached)
	}

	// The expired row is gone even at the original clock.
	repo.now = time.Now
	if cached, _ := repo.Load(ctx, "c-1"); cached != nil {
		t.Fatalf("expired row should have been purged")
	}
}

func TestClearRemovesRow(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "snap_clear")
	repo := NewSnapshotRepository(d)
	ctx := context.Background()

	if err := repo.Save(ctx, "c-1", models.Snapshot{{ID: "o-1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Clear(ctx, "c-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cached, _ := repo.Load(ctx, "c-1"); cached != nil {
		t.Fatalf("cleared cache should be empty")
	}
}
