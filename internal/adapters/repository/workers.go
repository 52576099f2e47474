package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/jnana/internal/domain/model"
)

// CreateWorker stores a new worker. It fails with ErrWorkerExists when the id
// or the auth subject is already taken.
func (s *SQLiteStore) CreateWorker(ctx context.Context, w model.Worker) error {
	subject := sql.NullString{String: w.AuthSubject, Valid: w.AuthSubject != ""}
	created := w.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO workers (id, auth_subject, first_name, last_name, phone, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, subject, w.FirstName, w.LastName, w.Phone, w.Email, toNanos(created))
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("worker %s: %w", w.ID, ErrWorkerExists)
	}
	return nil
}

// GetWorker returns the worker or ErrNotFound.
func (s *SQLiteStore) GetWorker(ctx context.Context, id string) (model.Worker, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, auth_subject, first_name, last_name, phone, email, created_at
		FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Worker{}, fmt.Errorf("worker %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Worker{}, fmt.Errorf("failed to get worker: %w", err)
	}
	return w, nil
}

// WorkerIDs returns every taken worker id.
func (s *SQLiteStore) WorkerIDs(ctx context.Context) ([]string, error) {
	ids, err := s.queryStrings(ctx, `SELECT id FROM workers`)
	if err != nil {
		return nil, fmt.Errorf("failed to list worker ids: %w", err)
	}
	return ids, nil
}

// ListWorkers returns every worker ordered by id.
func (s *SQLiteStore) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, auth_subject, first_name, last_name, phone, email, created_at
		FROM workers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var out []model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWorker(sc scanner) (model.Worker, error) {
	var (
		w       model.Worker
		subject sql.NullString
		created int64
	)
	if err := sc.Scan(&w.ID, &subject, &w.FirstName, &w.LastName, &w.Phone, &w.Email, &created); err != nil {
		return model.Worker{}, err
	}
	w.AuthSubject = subject.String
	w.CreatedAt = fromNanos(created)
	return w, nil
}

// AddNote stores a note.
func (s *SQLiteStore) AddNote(ctx context.Context, n model.Note) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, item_id, sub_index, worker_id, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.ItemID, n.SubIndex, n.WorkerID, n.Text, toNanos(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add note: %w", err)
	}
	return nil
}

// NotesFor returns the notes of an item, oldest first.
func (s *SQLiteStore) NotesFor(ctx context.Context, itemID string) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, sub_index, worker_id, body, created_at
		FROM notes WHERE item_id = ? ORDER BY created_at, id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var out []model.Note
	for rows.Next() {
		var (
			n  model.Note
			at int64
		)
		if err := rows.Scan(&n.ID, &n.ItemID, &n.SubIndex, &n.WorkerID, &n.Text, &at); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.CreatedAt = fromNanos(at)
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpsertEditRequest queues an edit request. A pending request is refreshed;
// one already marked done is left alone.
func (s *SQLiteStore) UpsertEditRequest(ctx context.Context, req model.EditRequest) error {
	idx, err := json.Marshal(req.SubIndexes)
	if err != nil {
		return fmt.Errorf("failed to encode edit indexes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edit_queue (item_id, sub_indexes, status, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET sub_indexes = excluded.sub_indexes, updated_at = excluded.updated_at
		WHERE edit_queue.status = 'pending'`,
		req.ItemID, string(idx), model.EditPending, toNanos(req.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert edit request: %w", err)
	}
	return nil
}

// ListEditRequests returns requests in the given status, oldest first.
// An empty status lists all.
func (s *SQLiteStore) ListEditRequests(ctx context.Context, status string) ([]model.EditRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, sub_indexes, status, updated_at FROM edit_queue
		WHERE ? = '' OR status = ? ORDER BY updated_at, item_id`, status, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list edit requests: %w", err)
	}
	defer rows.Close()

	var out []model.EditRequest
	for rows.Next() {
		var (
			r   model.EditRequest
			idx string
			at  int64
		)
		if err := rows.Scan(&r.ItemID, &idx, &r.Status, &at); err != nil {
			return nil, fmt.Errorf("failed to scan edit request: %w", err)
		}
		if err := json.Unmarshal([]byte(idx), &r.SubIndexes); err != nil {
			return nil, fmt.Errorf("failed to decode edit indexes of %s: %w", r.ItemID, err)
		}
		r.UpdatedAt = fromNanos(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkEditDone closes a pending edit request.
func (s *SQLiteStore) MarkEditDone(ctx context.Context, itemID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE edit_queue SET status = ?, updated_at = ? WHERE item_id = ?`,
		model.EditDone, toNanos(at), itemID)
	if err != nil {
		return fmt.Errorf("failed to close edit request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("edit request %s: %w", itemID, ErrNotFound)
	}
	return nil
}

// RecordActivity appends an activity entry.
func (s *SQLiteStore) RecordActivity(ctx context.Context, a model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	detail, err := json.Marshal(a.Detail)
	if err != nil {
		return fmt.Errorf("failed to encode activity detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO activity (id, worker_id, item_id, action, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.WorkerID, a.ItemID, a.Action, string(detail), toNanos(a.At))
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ActivityFor returns the worker's most recent activity, newest first.
func (s *SQLiteStore) ActivityFor(ctx context.Context, workerID string, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit %d", ErrInvalidArgument, limit)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, item_id, action, detail, at FROM activity
		WHERE worker_id = ? ORDER BY at DESC, id LIMIT ?`, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a      model.Activity
			detail string
			at     int64
		)
		if err := rows.Scan(&a.ID, &a.WorkerID, &a.ItemID, &a.Action, &detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		_ = json.Unmarshal([]byte(detail), &a.Detail)
		a.At = fromNanos(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Counts returns collection sizes; reservations are counted as of now.
func (s *SQLiteStore) Counts(ctx context.Context, now time.Time) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM items),
			(SELECT COUNT(*) FROM judgments),
			(SELECT COUNT(*) FROM workers),
			(SELECT COUNT(*) FROM reservations WHERE reserved_at > ?),
			(SELECT COUNT(*) FROM retirements),
			(SELECT COUNT(*) FROM skips),
			(SELECT COUNT(*) FROM doubts)`, s.cutoff(now)).
		Scan(&c.Items, &c.Judgments, &c.Workers, &c.ActiveReservations, &c.Retired, &c.Skips, &c.Doubts)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count collections: %w", err)
	}
	return c, nil
}
