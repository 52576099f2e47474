package model

import (
	"fmt"
	"strings"
	"time"
)

// Label is a worker's verdict on one sub-item.
type Label string

// Labels a worker may choose for a sub-item.
const (
	LabelCorrect   Label = "Correct"
	LabelIncorrect Label = "Incorrect"
	LabelDoubt     Label = "Doubt"
)

// Valid reports whether l is one of the three known labels.
func (l Label) Valid() bool {
	switch l {
	case LabelCorrect, LabelIncorrect, LabelDoubt:
		return true
	}
	return false
}

// Binary reports whether l takes part in agreement scoring.
func (l Label) Binary() bool {
	return l == LabelCorrect || l == LabelIncorrect
}

// ParseLabel accepts labels case-insensitively.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "correct":
		return LabelCorrect, nil
	case "incorrect":
		return LabelIncorrect, nil
	case "doubt":
		return LabelDoubt, nil
	}
	return "", fmt.Errorf("unknown label %q", s)
}

// Judgment is one worker's label for one sub-item. Judgments are append-only;
// at most one exists per (worker, item, sub-item).
type Judgment struct {
	ID          string        `json:"id"`
	ItemID      string        `json:"item_id"`
	WorkerID    string        `json:"worker_id"`
	SubIndex    int           `json:"sub_item_index"`
	Label       Label         `json:"label"`
	SubmittedAt time.Time     `json:"submitted_at"`
	ReservedAt  time.Time     `json:"reserved_at"`
	Latency     time.Duration `json:"latency"`
}

// Doubt flags a sub-item a worker could not decide. Its presence removes the
// sub-item from agreement scoring.
type Doubt struct {
	ItemID   string    `json:"item_id"`
	SubIndex int       `json:"sub_item_index"`
	WorkerID string    `json:"worker_id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	RaisedAt time.Time `json:"raised_at"`
}

// SubKey identifies a sub-item across items.
type SubKey struct {
	ItemID   string
	SubIndex int
}
