package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/jnana/internal/domain/model"
)

// InsertReservation claims itemID for workerID at now.
//
// An expired row for the same pair is replaced. The insert is guarded in the
// same statement by the item quota when quota > 0: distinct judging workers
// plus distinct live reservations must stay below quota. It fails with
// ErrDuplicateReservation when the pair already holds a live reservation and
// with ErrQuotaReached when the guard rejects the row.
func (s *SQLiteStore) InsertReservation(ctx context.Context, itemID, workerID string, now time.Time, quota int) error {
	cutoff := s.cutoff(now)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM reservations WHERE item_id = ? AND worker_id = ? AND reserved_at <= ?`,
			itemID, workerID, cutoff); err != nil {
			return err
		}

		var live int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reservations WHERE item_id = ? AND worker_id = ?`,
			itemID, workerID).Scan(&live); err != nil {
			return err
		}
		if live > 0 {
			return ErrDuplicateReservation
		}

		var (
			res sql.Result
			err error
		)
		if quota > 0 {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO reservations (item_id, worker_id, reserved_at)
				SELECT ?, ?, ?
				WHERE (SELECT COUNT(DISTINCT worker_id) FROM judgments WHERE item_id = ?)
				    + (SELECT COUNT(DISTINCT worker_id) FROM reservations WHERE item_id = ? AND reserved_at > ?) < ?`,
				itemID, workerID, toNanos(now), itemID, itemID, cutoff, quota)
		} else {
			res, err = tx.ExecContext(ctx,
				`INSERT INTO reservations (item_id, worker_id, reserved_at) VALUES (?, ?, ?)`,
				itemID, workerID, toNanos(now))
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrQuotaReached
		}
		return nil
	})
	if errors.Is(err, ErrDuplicateReservation) || errors.Is(err, ErrQuotaReached) {
		return fmt.Errorf("reserve %s for %s: %w", itemID, workerID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

// RemoveReservations deletes every row for the pair. Removing nothing is not an error.
func (s *SQLiteStore) RemoveReservations(ctx context.Context, itemID, workerID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM reservations WHERE item_id = ? AND worker_id = ?`, itemID, workerID); err != nil {
		return fmt.Errorf("failed to remove reservation: %w", err)
	}
	return nil
}

// ReservationsFor returns the worker's rows, expired ones included.
func (s *SQLiteStore) ReservationsFor(ctx context.Context, workerID string) ([]model.Reservation, error) {
	return s.queryReservations(ctx,
		`SELECT item_id, worker_id, reserved_at FROM reservations WHERE worker_id = ? ORDER BY reserved_at`, workerID)
}

// ExpiredReservations returns rows that readers already ignore but that
// have not been converted into timeout skips yet.
func (s *SQLiteStore) ExpiredReservations(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	return s.queryReservations(ctx,
		`SELECT item_id, worker_id, reserved_at FROM reservations WHERE reserved_at <= ? ORDER BY reserved_at`, s.cutoff(now))
}

// CountActive returns the distinct workers holding a live reservation on the item.
func (s *SQLiteStore) CountActive(ctx context.Context, itemID string, now time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT worker_id) FROM reservations WHERE item_id = ? AND reserved_at > ?`,
		itemID, s.cutoff(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return n, nil
}

// CountActiveByItem is CountActive for every item with a live reservation.
func (s *SQLiteStore) CountActiveByItem(ctx context.Context, now time.Time) (map[string]int, error) {
	counts, err := s.queryCounts(ctx,
		`SELECT item_id, COUNT(DISTINCT worker_id) FROM reservations WHERE reserved_at > ? GROUP BY item_id`,
		s.cutoff(now))
	if err != nil {
		return nil, fmt.Errorf("failed to count active reservations: %w", err)
	}
	return counts, nil
}

func (s *SQLiteStore) queryReservations(ctx context.Context, query string, args ...any) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var (
			r  model.Reservation
			at int64
		)
		if err := rows.Scan(&r.ItemID, &r.WorkerID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		r.ReservedAt = fromNanos(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
