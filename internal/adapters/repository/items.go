package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/jnana/internal/domain/model"
)

// PutItems inserts items that are not yet stored. Existing ids are left
// untouched since items are immutable once auditing starts. It returns the
// number of new rows.
func (s *SQLiteStore) PutItems(ctx context.Context, items []model.Item) (int, error) {
	inserted := 0
	now := toNanos(time.Now())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO items (id, passage, sub_items, created_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, it := range items {
			if it.ID == "" {
				return fmt.Errorf("%w: item without id", ErrInvalidArgument)
			}
			subs, err := json.Marshal(it.SubItems)
			if err != nil {
				return fmt.Errorf("failed to encode sub-items of %s: %w", it.ID, err)
			}
			res, err := stmt.ExecContext(ctx, it.ID, it.Passage, string(subs), now)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put items: %w", err)
	}
	return inserted, nil
}

// GetItem returns the item or ErrNotFound.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (model.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, passage, sub_items FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Item{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return it, nil
}

// ListItemIDs returns every stored item id.
func (s *SQLiteStore) ListItemIDs(ctx context.Context) ([]string, error) {
	ids, err := s.queryStrings(ctx, `SELECT id FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list item ids: %w", err)
	}
	return ids, nil
}

// ListItems returns every stored item ordered by id.
func (s *SQLiteStore) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, passage, sub_items FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var out []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (model.Item, error) {
	var (
		it   model.Item
		subs string
	)
	if err := sc.Scan(&it.ID, &it.Passage, &subs); err != nil {
		return model.Item{}, err
	}
	if err := json.Unmarshal([]byte(subs), &it.SubItems); err != nil {
		// A malformed sub-item list makes the item invalid rather than unreadable.
		it.SubItems = nil
	}
	return it, nil
}
