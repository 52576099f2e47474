package agreement

import (
	"math"
	"sort"

	"github.com/okian/jnana/internal/domain/model"
)

// WorkerQuality summarizes one worker's judgments against the majority.
type WorkerQuality struct {
	WorkerID     string  `json:"worker_id"`
	ItemsAudited int     `json:"items_audited"`
	Correct      int     `json:"correct"`
	Incorrect    int     `json:"incorrect"`
	Doubt        int     `json:"doubt"`
	DoubtsRaised int     `json:"doubts_raised"`
	Judged       int     `json:"judged"`
	Matches      int     `json:"matches"`
	QualityPct   float64 `json:"quality_pct"`
}

// WorkerQuality compares every worker's labels with the majority of the
// scored sub-items. Only sub-items with a majority count as judged. The
// result is ordered by judged sub-items, most first.
func (e *Engine) WorkerQuality(judgments []model.Judgment, doubts []model.Doubt, scores []SubItemScore) []WorkerQuality {
	majority := make(map[model.SubKey]model.Label, len(scores))
	for _, s := range scores {
		if s.HasMajority() {
			majority[s.Key()] = s.Majority
		}
	}

	byWorker := make(map[string]*WorkerQuality)
	items := make(map[string]map[string]struct{})
	get := func(id string) *WorkerQuality {
		q, ok := byWorker[id]
		if !ok {
			q = &WorkerQuality{WorkerID: id}
			byWorker[id] = q
			items[id] = make(map[string]struct{})
		}
		return q
	}

	for _, j := range judgments {
		q := get(j.WorkerID)
		items[j.WorkerID][j.ItemID] = struct{}{}
		switch j.Label {
		case model.LabelCorrect:
			q.Correct++
		case model.LabelIncorrect:
			q.Incorrect++
		case model.LabelDoubt:
			q.Doubt++
		}
		m, ok := majority[model.SubKey{ItemID: j.ItemID, SubIndex: j.SubIndex}]
		if !ok {
			continue
		}
		q.Judged++
		if j.Label == m {
			q.Matches++
		}
	}
	for _, d := range doubts {
		get(d.WorkerID).DoubtsRaised++
	}

	out := make([]WorkerQuality, 0, len(byWorker))
	for id, q := range byWorker {
		q.ItemsAudited = len(items[id])
		if q.Judged > 0 {
			q.QualityPct = round2(100 * float64(q.Matches) / float64(q.Judged))
		}
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Judged != out[j].Judged {
			return out[i].Judged > out[j].Judged
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}

// Summary holds the pooled agreement figures of a report.
type Summary struct {
	Scored       int            `json:"scored"`
	AverageScore float64        `json:"average_score"`
	LowAgreement int            `json:"low_agreement"`
	Ties         int            `json:"ties"`
	Accepted     int            `json:"accepted"`
	PooledKappa  *float64       `json:"pooled_kappa,omitempty"`
	Labels       map[string]int `json:"labels"`
}

// Summarize computes the report figures. The label distribution covers every
// judgment; the rest covers the scored sub-items only.
func (e *Engine) Summarize(judgments []model.Judgment, scores []SubItemScore) Summary {
	sum := Summary{
		Scored: len(scores),
		Labels: map[string]int{
			string(model.LabelCorrect):   0,
			string(model.LabelIncorrect): 0,
			string(model.LabelDoubt):     0,
		},
	}
	for _, j := range judgments {
		if j.Label.Valid() {
			sum.Labels[string(j.Label)]++
		}
	}
	if len(scores) == 0 {
		return sum
	}

	table := make([][]int, 0, len(scores))
	var total float64
	for _, s := range scores {
		r := round4(s.Score)
		total += r
		if r < e.threshold {
			sum.LowAgreement++
		}
		if s.Tie {
			sum.Ties++
		}
		if e.Accepted(s) {
			sum.Accepted++
		}
		table = append(table, []int{s.Correct, s.Incorrect})
	}
	sum.AverageScore = round4(total / float64(len(scores)))
	if k := FleissKappa(table); !math.IsNaN(k) {
		k = round4(k)
		sum.PooledKappa = &k
	}
	return sum
}
