package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"riderSync/models"
)

// CacheTTL is how long a persisted snapshot stays servable. An expired
// cache is discarded, never served.
const CacheTTL = 5 * time.Minute

// SnapshotRepository persists the last accepted order snapshot, one row per
// courier. It is the durable half of the bounded local cache; the TTL is
// enforced on read so a stale row can never reach the UI.
type SnapshotRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSnapshotRepository creates a SnapshotRepository with the default TTL.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db, ttl: CacheTTL, now: time.Now}
}

// Save upserts the snapshot for a courier, stamping it with the current time.
func (r *SnapshotRepository) Save(ctx context.Context, courierID string, snap models.Snapshot) error {
	if courierID == "" {
		return errors.New("courier id is empty")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err = r.db.ExecContext(ctx, `
INSERT INTO snapshot_cache (courier_id, orders_json, captured_at) VALUES (?,?,?)
ON CONFLICT(courier_id) DO UPDATE SET orders_json = excluded.orders_json, captured_at = excluded.captured_at`,
		courierID, string(payload), r.now().UTC().Format(time.RFC3339Nano))
	return err
}

// Load returns the cached snapshot for a courier, or nil when there is none
// or the row has outlived the TTL. Expired rows are deleted on sight.
func (r *SnapshotRepository) Load(ctx context.Context, courierID string) (*models.CachedSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var ordersJSON, capturedAt string
	err := r.db.QueryRowContext(ctx, `SELECT orders_json, captured_at FROM snapshot_cache WHERE courier_id = ?`, courierID).
		Scan(&ordersJSON, &capturedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	captured, err := time.Parse(time.RFC3339Nano, capturedAt)
	if err != nil {
		// Unreadable stamp: treat the row as garbage, not as fresh data.
		_, _ = r.db.ExecContext(ctx, `DELETE FROM snapshot_cache WHERE courier_id = ?`, courierID)
		return nil, nil
	}
	cached := models.CachedSnapshot{CapturedAt: captured}
	if cached.Expired(r.ttl, r.now()) {
		_, _ = r.db.ExecContext(ctx, `DELETE FROM snapshot_cache WHERE courier_id = ?`, courierID)
		return nil, nil
	}
	if err := json.Unmarshal([]byte(ordersJSON), &cached.Orders); err != nil {
		_, _ = r.db.ExecContext(ctx, `DELETE FROM snapshot_cache WHERE courier_id = ?`, courierID)
		return nil, nil
	}
	return &cached, nil
}

// Clear removes the cached snapshot for a courier. Called on logout.
func (r *SnapshotRepository) Clear(ctx context.Context, courierID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `DELETE FROM snapshot_cache WHERE courier_id = ?`, courierID)
	return err
}
