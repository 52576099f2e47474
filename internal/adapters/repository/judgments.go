package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/jnana/internal/domain/model"
)

// AppendJudgments writes judgments in one transaction. A row that repeats an
// existing (worker, item, sub-item) is ignored; the return value counts the
// rows actually written.
func (s *SQLiteStore) AppendJudgments(ctx context.Context, js []model.Judgment) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO judgments
				(id, item_id, worker_id, sub_index, label, submitted_at, reserved_at, latency_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, j := range js {
			if !j.Label.Valid() {
				return fmt.Errorf("%w: label %q", ErrInvalidArgument, j.Label)
			}
			id := j.ID
			if id == "" {
				id = uuid.NewString()
			}
			res, err := stmt.ExecContext(ctx, id, j.ItemID, j.WorkerID, j.SubIndex, string(j.Label),
				toNanos(j.SubmittedAt), toNanos(j.ReservedAt), j.Latency.Milliseconds())
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append judgments: %w", err)
	}
	return inserted, nil
}

// AppendDoubts records doubt flags; repeats are ignored.
func (s *SQLiteStore) AppendDoubts(ctx context.Context, ds []model.Doubt) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, d := range ds {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO doubts (item_id, sub_index, worker_id, question, answer, raised_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				d.ItemID, d.SubIndex, d.WorkerID, d.Question, d.Answer, toNanos(d.RaisedAt))
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append doubts: %w", err)
	}
	return inserted, nil
}

// DistinctWorkers returns the workers with at least one judgment on the item.
func (s *SQLiteStore) DistinctWorkers(ctx context.Context, itemID string) ([]string, error) {
	ws, err := s.queryStrings(ctx, `SELECT DISTINCT worker_id FROM judgments WHERE item_id = ? ORDER BY worker_id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers for %s: %w", itemID, err)
	}
	return ws, nil
}

// ItemsJudgedBy returns the items the worker has judged.
func (s *SQLiteStore) ItemsJudgedBy(ctx context.Context, workerID string) ([]string, error) {
	ids, err := s.queryStrings(ctx, `SELECT DISTINCT item_id FROM judgments WHERE worker_id = ?`, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items judged by %s: %w", workerID, err)
	}
	return ids, nil
}

// CountWorkersByItem returns the number of distinct judging workers per item.
func (s *SQLiteStore) CountWorkersByItem(ctx context.Context) (map[string]int, error) {
	counts, err := s.queryCounts(ctx, `SELECT item_id, COUNT(DISTINCT worker_id) FROM judgments GROUP BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count workers by item: %w", err)
	}
	return counts, nil
}

// ListJudgments returns every judgment ordered by item, sub-item and worker.
func (s *SQLiteStore) ListJudgments(ctx context.Context) ([]model.Judgment, error) {
	return s.queryJudgments(ctx, `
		SELECT id, item_id, worker_id, sub_index, label, submitted_at, reserved_at, latency_ms
		FROM judgments ORDER BY item_id, sub_index, worker_id`)
}

// JudgmentsFor returns the judgments of one item.
func (s *SQLiteStore) JudgmentsFor(ctx context.Context, itemID string) ([]model.Judgment, error) {
	return s.queryJudgments(ctx, `
		SELECT id, item_id, worker_id, sub_index, label, submitted_at, reserved_at, latency_ms
		FROM judgments WHERE item_id = ? ORDER BY sub_index, worker_id`, itemID)
}

func (s *SQLiteStore) queryJudgments(ctx context.Context, query string, args ...any) ([]model.Judgment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query judgments: %w", err)
	}
	defer rows.Close()

	var out []model.Judgment
	for rows.Next() {
		var (
			j                   model.Judgment
			label               string
			submitted, reserved int64
			latencyMs           int64
		)
		if err := rows.Scan(&j.ID, &j.ItemID, &j.WorkerID, &j.SubIndex, &label, &submitted, &reserved, &latencyMs); err != nil {
			return nil, fmt.Errorf("failed to scan judgment: %w", err)
		}
		j.Label = model.Label(label)
		j.SubmittedAt = fromNanos(submitted)
		j.ReservedAt = fromNanos(reserved)
		j.Latency = msToDuration(latencyMs)
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListDoubts returns doubt flags, newest first.
func (s *SQLiteStore) ListDoubts(ctx context.Context) ([]model.Doubt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, sub_index, worker_id, question, answer, raised_at
		FROM doubts ORDER BY raised_at DESC, item_id, sub_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to list doubts: %w", err)
	}
	defer rows.Close()

	var out []model.Doubt
	for rows.Next() {
		var (
			d      model.Doubt
			raised int64
		)
		if err := rows.Scan(&d.ItemID, &d.SubIndex, &d.WorkerID, &d.Question, &d.Answer, &raised); err != nil {
			return nil, fmt.Errorf("failed to scan doubt: %w", err)
		}
		d.RaisedAt = fromNanos(raised)
		out = append(out, d)
	}
	return out, rows.Err()
}
