// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"strings"
)

// ErrInvalidItem marks an item that must never be allocated.
var ErrInvalidItem = errors.New("invalid item")

// SubItem is one question/answer pair judged against the passage.
type SubItem struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// Item is a labelable unit: a passage plus an ordered list of sub-items.
// Items are immutable while they are being audited.
type Item struct {
	ID       string    `json:"id" yaml:"id"`
	Passage  string    `json:"passage" yaml:"passage"`
	SubItems []SubItem `json:"sub_items" yaml:"sub_items"`
}

// Validate reports why an item cannot be shown to a worker.
func (i Item) Validate() error {
	switch {
	case strings.TrimSpace(i.ID) == "":
		return errors.Join(ErrInvalidItem, errors.New("missing id"))
	case strings.TrimSpace(i.Passage) == "":
		return errors.Join(ErrInvalidItem, errors.New("missing passage"))
	case len(i.SubItems) == 0:
		return errors.Join(ErrInvalidItem, errors.New("no sub-items"))
	}
	return nil
}

// SubItem returns the sub-item at idx, or false for a stale index.
func (i Item) SubItem(idx int) (SubItem, bool) {
	if idx < 0 || idx >= len(i.SubItems) {
		return SubItem{}, false
	}
	return i.SubItems[idx], true
}
