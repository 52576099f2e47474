// Package types contains the request and response shapes of the HTTP API.
package types

import (
	"time"

	"github.com/okian/jnana/internal/domain/agreement"
	"github.com/okian/jnana/internal/domain/model"
)

// Work statuses.
const (
	StatusAssigned      = "assigned"
	StatusNoneAvailable = "none_available"
)

// WorkView is the answer to a request for work.
type WorkView struct {
	Status      string          `json:"status"`
	ItemID      string          `json:"item_id,omitempty"`
	Passage     string          `json:"passage,omitempty"`
	SubItems    []model.SubItem `json:"sub_items,omitempty"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	SecondsLeft int             `json:"seconds_left,omitempty"`
	TimedOut    []string        `json:"timed_out,omitempty"`
}

// NewWorkView renders an assignment as seen at now.
func NewWorkView(a model.Assignment, now time.Time, timedOut []string) WorkView {
	deadline := a.Deadline
	left := int(deadline.Sub(now).Seconds())
	if left < 0 {
		left = 0
	}
	return WorkView{
		Status:      StatusAssigned,
		ItemID:      a.Item.ID,
		Passage:     a.Item.Passage,
		SubItems:    a.Item.SubItems,
		Deadline:    &deadline,
		SecondsLeft: left,
		TimedOut:    timedOut,
	}
}

// OnboardRequest registers a worker.
type OnboardRequest struct {
	ID          string `json:"id"`
	AuthSubject string `json:"auth_subject"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// IDOptions lists free intern ids.
type IDOptions struct {
	Options []string `json:"options"`
}

// SubmitRequest carries one label per sub-item, in sub-item order.
type SubmitRequest struct {
	ItemID string   `json:"item_id"`
	Labels []string `json:"labels"`
}

// SubmitResult reports what a submission stored.
type SubmitResult struct {
	ItemID     string `json:"item_id"`
	Recorded   int    `json:"recorded"`
	Duplicates int    `json:"duplicates"`
	Doubts     int    `json:"doubts"`
	Completed  bool   `json:"item_completed"`
}

// SkipRequest leaves the current item.
type SkipRequest struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// NoteRequest attaches a note to an item or one of its sub-items. A nil
// SubIndex targets the whole item.
type NoteRequest struct {
	ItemID   string `json:"item_id"`
	SubIndex *int   `json:"sub_item_index"`
	Text     string `json:"text"`
}

// Overview holds the dataset counters of the admin report.
type Overview struct {
	TotalItems         int `json:"total_items"`
	CompletedItems     int `json:"completed_items"`
	InProgressItems    int `json:"in_progress_items"`
	RetiredItems       int `json:"retired_items"`
	Judgments          int `json:"judgments"`
	ActiveReservations int `json:"active_reservations"`
	Workers            int `json:"workers"`
}

// LeaderboardEntry is a ranked worker quality row.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	agreement.WorkerQuality
}

// Report is the admin overview.
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Quota       int                `json:"quota"`
	Threshold   float64            `json:"threshold"`
	Overview    Overview           `json:"overview"`
	Agreement   agreement.Summary  `json:"agreement"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Doubts      []model.Doubt      `json:"doubts"`
	EditQueue   int                `json:"edit_queue_pending"`
}

// Rank numbers rows 1..n in their given order.
func Rank(rows []agreement.WorkerQuality) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(rows))
	for i, r := range rows {
		out[i] = LeaderboardEntry{Rank: i + 1, WorkerQuality: r}
	}
	return out
}
