package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/jnana/internal/domain/model"
)

// RecordSkip stores a skip. The (item, worker, reason) triple is unique, so a
// second timeout for the same pairing is a no-op; the bool reports whether a
// row was written.
func (s *SQLiteStore) RecordSkip(ctx context.Context, skip model.Skip) (bool, error) {
	switch skip.Reason {
	case model.ReasonTimeout, model.ReasonInvalidContent, model.ReasonManualSkip:
	default:
		return false, fmt.Errorf("%w: skip reason %q", ErrInvalidArgument, skip.Reason)
	}
	id := skip.ID
	if id == "" {
		id = uuid.NewString()
	}
	at := skip.SkippedAt
	if at.IsZero() {
		at = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO skips (id, item_id, worker_id, reason, skipped_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, skip.ItemID, skip.WorkerID, string(skip.Reason), toNanos(at))
	if err != nil {
		return false, fmt.Errorf("failed to record skip: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ItemsSkippedBy returns the items the worker left without submitting.
func (s *SQLiteStore) ItemsSkippedBy(ctx context.Context, workerID string) ([]string, error) {
	ids, err := s.queryStrings(ctx, `SELECT DISTINCT item_id FROM skips WHERE worker_id = ?`, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skips of %s: %w", workerID, err)
	}
	return ids, nil
}

// CountDistinctSkippers counts workers who skipped the item for reason.
func (s *SQLiteStore) CountDistinctSkippers(ctx context.Context, itemID string, reason model.Reason) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT worker_id) FROM skips WHERE item_id = ? AND reason = ?`,
		itemID, string(reason)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count skippers: %w", err)
	}
	return n, nil
}

// Retire upserts the retirement record; the first retirement time is kept.
func (s *SQLiteStore) Retire(ctx context.Context, itemID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO retirements (item_id, status, retired_at) VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO NOTHING`,
		itemID, model.RetiredStatus, toNanos(at))
	if err != nil {
		return false, fmt.Errorf("failed to retire %s: %w", itemID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RetiredIDs returns every retired item id.
func (s *SQLiteStore) RetiredIDs(ctx context.Context) ([]string, error) {
	ids, err := s.queryStrings(ctx, `SELECT item_id FROM retirements WHERE status = ?`, model.RetiredStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to list retirements: %w", err)
	}
	return ids, nil
}
