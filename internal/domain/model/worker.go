package model

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidWorker is returned when an onboarding profile is incomplete.
var ErrInvalidWorker = errors.New("invalid worker profile")

// Worker is an onboarded intern. The ID is the short intern id chosen at signup.
type Worker struct {
	ID          string    `json:"id"`
	AuthSubject string    `json:"auth_subject,omitempty"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields onboarding requires.
func (w Worker) Validate() error {
	required := [...]struct{ field, value string }{
		{"id", w.ID},
		{"first_name", w.FirstName},
		{"last_name", w.LastName},
		{"phone", w.Phone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.Join(ErrInvalidWorker, errors.New(r.field+" is required"))
		}
	}
	return nil
}

// Note is a free-text remark on an item or one of its sub-items.
// SubIndex is -1 for a note about the whole item.
type Note struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	SubIndex  int       `json:"sub_item_index"`
	WorkerID  string    `json:"worker_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Edit request states.
const (
	EditPending = "pending"
	EditDone    = "done"
)

// EditRequest lists sub-items of a completed item whose majority is Incorrect.
type EditRequest struct {
	ItemID     string    `json:"item_id"`
	SubIndexes []int     `json:"sub_item_indexes"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Activity actions.
const (
	ActionOnboarded = "onboarded"
	ActionAllocated = "allocated"
	ActionSubmitted = "submitted"
	ActionSkipped   = "skipped"
	ActionTimeout   = "timeout"
	ActionNote      = "note"
)

// Activity is one entry of the per-worker activity log.
type Activity struct {
	ID       string            `json:"id"`
	WorkerID string            `json:"worker_id"`
	ItemID   string            `json:"item_id,omitempty"`
	Action   string            `json:"action"`
	Detail   map[string]string `json:"detail,omitempty"`
	At       time.Time         `json:"at"`
}
