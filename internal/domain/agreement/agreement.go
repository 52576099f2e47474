// Package agreement turns binary judgments into per-sub-item agreement
// scores, majority labels, the filtered export and worker quality figures.
package agreement

import (
	"context"
	"sort"

	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/pkg/logger"
)

const (
	defaultQuota     = 5
	defaultThreshold = 0.4
)

// SubItemScore is the agreement outcome for one fully judged sub-item.
type SubItemScore struct {
	ItemID    string      `json:"item_id"`
	SubIndex  int         `json:"sub_item_index"`
	Correct   int         `json:"correct"`
	Incorrect int         `json:"incorrect"`
	Score     float64     `json:"score"`
	Majority  model.Label `json:"majority,omitempty"`
	Tie       bool        `json:"tie,omitempty"`
}

// HasMajority reports whether one label strictly outnumbers the other.
func (s SubItemScore) HasMajority() bool { return s.Majority != "" }

// Key returns the sub-item coordinates.
func (s SubItemScore) Key() model.SubKey {
	return model.SubKey{ItemID: s.ItemID, SubIndex: s.SubIndex}
}

// Engine scores sub-items that collected exactly Q binary judgments.
type Engine struct {
	quota     int
	threshold float64
	log       logger.Logger
}

// New creates an Engine with Q=5 and an export threshold of 0.4.
func New(opts ...Option) *Engine {
	e := &Engine{
		quota:     defaultQuota,
		threshold: defaultThreshold,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Quota returns Q.
func (e *Engine) Quota() int { return e.quota }

// Threshold returns the export threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// Score scores a single sub-item from its label counts. It reports false
// unless correct+incorrect == Q.
func (e *Engine) Score(correct, incorrect int) (SubItemScore, bool) {
	if correct < 0 || incorrect < 0 || correct+incorrect != e.quota {
		return SubItemScore{}, false
	}
	s := SubItemScore{
		Correct:   correct,
		Incorrect: incorrect,
		Score:     observedAgreement(correct, incorrect),
	}
	switch {
	case correct > incorrect:
		s.Majority = model.LabelCorrect
	case incorrect > correct:
		s.Majority = model.LabelIncorrect
	default:
		s.Tie = true
	}
	return s, true
}

type tally struct {
	correct, incorrect int
	workers            map[string]struct{}
}

// Aggregate groups judgments by sub-item and scores every sub-item that has
// exactly Q binary judgments and no doubt record. Doubt labels are not
// counted. A worker counts once per sub-item. The result is ordered by item
// id, then sub-item index.
func (e *Engine) Aggregate(judgments []model.Judgment, doubts []model.Doubt) []SubItemScore {
	doubted := make(map[model.SubKey]struct{}, len(doubts))
	for _, d := range doubts {
		doubted[model.SubKey{ItemID: d.ItemID, SubIndex: d.SubIndex}] = struct{}{}
	}

	tallies := make(map[model.SubKey]*tally)
	for _, j := range judgments {
		if !j.Label.Binary() {
			continue
		}
		key := model.SubKey{ItemID: j.ItemID, SubIndex: j.SubIndex}
		if _, skip := doubted[key]; skip {
			continue
		}
		t, ok := tallies[key]
		if !ok {
			t = &tally{workers: make(map[string]struct{})}
			tallies[key] = t
		}
		if _, dup := t.workers[j.WorkerID]; dup {
			continue
		}
		t.workers[j.WorkerID] = struct{}{}
		if j.Label == model.LabelCorrect {
			t.correct++
		} else {
			t.incorrect++
		}
	}

	out := make([]SubItemScore, 0, len(tallies))
	for key, t := range tallies {
		s, ok := e.Score(t.correct, t.incorrect)
		if !ok {
			continue
		}
		s.ItemID, s.SubIndex = key.ItemID, key.SubIndex
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].SubIndex < out[j].SubIndex
	})
	return out
}

// ExportRecord is one accepted question/answer pair of the final dataset.
type ExportRecord struct {
	ItemID   string  `json:"item_id"`
	SubIndex int     `json:"sub_item_index"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

// Accepted reports whether a score makes it into the export: a majority
// exists and the score rounded to four places reaches the threshold.
func (e *Engine) Accepted(s SubItemScore) bool {
	return s.HasMajority() && round4(s.Score) >= e.threshold
}

// Export joins accepted scores with their sub-item text. Scores whose item
// or sub-item index is unknown are skipped with a warning.
func (e *Engine) Export(ctx context.Context, scores []SubItemScore, items map[string]model.Item) []ExportRecord {
	out := make([]ExportRecord, 0, len(scores))
	for _, s := range scores {
		if !e.Accepted(s) {
			continue
		}
		it, ok := items[s.ItemID]
		if !ok {
			e.log.Warn(ctx, "export skipped unknown item", logger.String("item_id", s.ItemID))
			continue
		}
		sub, ok := it.SubItem(s.SubIndex)
		if !ok {
			e.log.Warn(ctx, "export skipped unknown sub-item",
				logger.String("item_id", s.ItemID), logger.Int("sub_item_index", s.SubIndex))
			continue
		}
		out = append(out, ExportRecord{
			ItemID:   s.ItemID,
			SubIndex: s.SubIndex,
			Question: sub.Question,
			Answer:   sub.Answer,
			Score:    round4(s.Score),
		})
	}
	return out
}
