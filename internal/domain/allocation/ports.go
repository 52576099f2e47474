package allocation

import (
	"context"
	"time"

	"github.com/okian/jnana/internal/domain/model"
)

// ItemSource lists and loads items. GetItem fails with
// repository.ErrNotFound when the id is unknown.
type ItemSource interface {
	ListItemIDs(ctx context.Context) ([]string, error)
	GetItem(ctx context.Context, id string) (model.Item, error)
}

// JudgmentReader answers completion questions about judgments.
type JudgmentReader interface {
	DistinctWorkers(ctx context.Context, itemID string) ([]string, error)
	ItemsJudgedBy(ctx context.Context, workerID string) ([]string, error)
	CountWorkersByItem(ctx context.Context) (map[string]int, error)
}

// Ledger is the reservation ledger. Readers that take now ignore rows older
// than the reservation TTL.
type Ledger interface {
	InsertReservation(ctx context.Context, itemID, workerID string, now time.Time, quota int) error
	RemoveReservations(ctx context.Context, itemID, workerID string) error
	ReservationsFor(ctx context.Context, workerID string) ([]model.Reservation, error)
	CountActive(ctx context.Context, itemID string, now time.Time) (int, error)
	CountActiveByItem(ctx context.Context, now time.Time) (map[string]int, error)
	ExpiredReservations(ctx context.Context, now time.Time) ([]model.Reservation, error)
}

// SkipLog records skips. RecordSkip reports whether a new row was written.
type SkipLog interface {
	RecordSkip(ctx context.Context, skip model.Skip) (bool, error)
	ItemsSkippedBy(ctx context.Context, workerID string) ([]string, error)
}

// RetiredSet is the retirement policy as seen by allocation.
type RetiredSet interface {
	Retired(ctx context.Context) (map[string]struct{}, error)
	Observe(ctx context.Context, itemID string) (bool, error)
}

// Ports bundles the collaborators of an Engine.
type Ports struct {
	Items     ItemSource
	Judgments JudgmentReader
	Ledger    Ledger
	Skips     SkipLog
	Retired   RetiredSet
}
