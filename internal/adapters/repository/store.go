// Package repository holds the durable store for items, judgments, the
// reservation ledger and every audit collection around them.
package repository

import (
	"context"
	"time"

	"github.com/okian/jnana/internal/domain/model"
)

// Store is the full set of collections the service reads and writes.
type Store interface {
	// Items
	PutItems(ctx context.Context, items []model.Item) (int, error)
	GetItem(ctx context.Context, id string) (model.Item, error)
	ListItemIDs(ctx context.Context) ([]string, error)
	ListItems(ctx context.Context) ([]model.Item, error)

	// Judgments and doubts. Duplicate (worker, item, sub-item) rows are ignored.
	AppendJudgments(ctx context.Context, js []model.Judgment) (int, error)
	AppendDoubts(ctx context.Context, ds []model.Doubt) (int, error)
	DistinctWorkers(ctx context.Context, itemID string) ([]string, error)
	ItemsJudgedBy(ctx context.Context, workerID string) ([]string, error)
	CountWorkersByItem(ctx context.Context) (map[string]int, error)
	ListJudgments(ctx context.Context) ([]model.Judgment, error)
	JudgmentsFor(ctx context.Context, itemID string) ([]model.Judgment, error)
	ListDoubts(ctx context.Context) ([]model.Doubt, error)

	// Reservation ledger. Readers treat rows older than the TTL as absent.
	InsertReservation(ctx context.Context, itemID, workerID string, now time.Time, quota int) error
	RemoveReservations(ctx context.Context, itemID, workerID string) error
	ReservationsFor(ctx context.Context, workerID string) ([]model.Reservation, error)
	CountActive(ctx context.Context, itemID string, now time.Time) (int, error)
	CountActiveByItem(ctx context.Context, now time.Time) (map[string]int, error)
	ExpiredReservations(ctx context.Context, now time.Time) ([]model.Reservation, error)

	// Skips and retirements
	RecordSkip(ctx context.Context, skip model.Skip) (bool, error)
	ItemsSkippedBy(ctx context.Context, workerID string) ([]string, error)
	CountDistinctSkippers(ctx context.Context, itemID string, reason model.Reason) (int, error)
	Retire(ctx context.Context, itemID string, at time.Time) (bool, error)
	RetiredIDs(ctx context.Context) ([]string, error)

	// Workers, notes, edit queue and activity
	CreateWorker(ctx context.Context, w model.Worker) error
	GetWorker(ctx context.Context, id string) (model.Worker, error)
	WorkerIDs(ctx context.Context) ([]string, error)
	ListWorkers(ctx context.Context) ([]model.Worker, error)
	AddNote(ctx context.Context, n model.Note) error
	NotesFor(ctx context.Context, itemID string) ([]model.Note, error)
	UpsertEditRequest(ctx context.Context, req model.EditRequest) error
	ListEditRequests(ctx context.Context, status string) ([]model.EditRequest, error)
	MarkEditDone(ctx context.Context, itemID string, at time.Time) error
	RecordActivity(ctx context.Context, a model.Activity) error
	ActivityFor(ctx context.Context, workerID string, limit int) ([]model.Activity, error)

	Counts(ctx context.Context, now time.Time) (Counts, error)
	Ping(ctx context.Context) error
	Close() error
}

// Counts is a snapshot of collection sizes for reports and gauges.
type Counts struct {
	Items              int `json:"items"`
	Judgments          int `json:"judgments"`
	Workers            int `json:"workers"`
	ActiveReservations int `json:"active_reservations"`
	Retired            int `json:"retired"`
	Skips              int `json:"skips"`
	Doubts             int `json:"doubts"`
}
