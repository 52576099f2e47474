package model

import (
	"fmt"
	"time"
)

// Reason explains why a reservation ended.
type Reason string

// Release reasons. Every reason except ReasonSubmitted leaves a Skip record.
const (
	ReasonSubmitted      Reason = "submitted"
	ReasonTimeout        Reason = "timeout"
	ReasonInvalidContent Reason = "invalid_content"
	ReasonManualSkip     Reason = "manual_skip"
)

// ParseSkipReason accepts the reasons a worker may send explicitly.
func ParseSkipReason(s string) (Reason, error) {
	switch r := Reason(s); r {
	case ReasonManualSkip, ReasonInvalidContent:
		return r, nil
	case "":
		return ReasonManualSkip, nil
	}
	return "", fmt.Errorf("unsupported skip reason %q", s)
}

// Reservation is a worker's temporary claim on an item.
type Reservation struct {
	ItemID     string    `json:"item_id"`
	WorkerID   string    `json:"worker_id"`
	ReservedAt time.Time `json:"reserved_at"`
}

// Deadline is the moment the reservation stops counting.
func (r Reservation) Deadline(ttl time.Duration) time.Time {
	return r.ReservedAt.Add(ttl)
}

// Expired reports whether the reservation is past its deadline at now.
func (r Reservation) Expired(now time.Time, ttl time.Duration) bool {
	return !now.Before(r.Deadline(ttl))
}

// Skip records that a worker left an item without submitting.
type Skip struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	WorkerID  string    `json:"worker_id"`
	Reason    Reason    `json:"reason"`
	SkippedAt time.Time `json:"skipped_at"`
}

// RetiredStatus is the only status a retirement record carries.
const RetiredStatus = "retired"

// Retirement permanently removes an item from allocation.
type Retirement struct {
	ItemID    string    `json:"item_id"`
	Status    string    `json:"status"`
	RetiredAt time.Time `json:"retired_at"`
}

// Assignment is a successful allocation handed to a worker.
type Assignment struct {
	Item       Item      `json:"item"`
	ReservedAt time.Time `json:"reserved_at"`
	Deadline   time.Time `json:"deadline"`
}
