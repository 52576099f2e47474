package agreement_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/okian/jnana/internal/domain/agreement"
	"github.com/okian/jnana/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func judgments(item string, sub int, labels ...model.Label) []model.Judgment {
	out := make([]model.Judgment, 0, len(labels))
	for i, l := range labels {
		out = append(out, model.Judgment{
			ItemID:   item,
			SubIndex: sub,
			WorkerID: fmt.Sprintf("w%d", i+1),
			Label:    l,
		})
	}
	return out
}

func repeat(l model.Label, n int) []model.Label {
	out := make([]model.Label, n)
	for i := range out {
		out[i] = l
	}
	return out
}

const (
	lc = model.LabelCorrect
	li = model.LabelIncorrect
	ld = model.LabelDoubt
)

func TestScore(t *testing.T) {
	Convey("Given an engine with Q=5", t, func() {
		e := agreement.New(agreement.WithQuota(5))

		Convey("When all five say Correct", func() {
			s, ok := e.Score(5, 0)
			So(ok, ShouldBeTrue)
			So(s.Score, ShouldEqual, 1.0)
			So(s.Majority, ShouldEqual, model.LabelCorrect)
		})

		Convey("When all five say Incorrect", func() {
			s, ok := e.Score(0, 5)
			So(ok, ShouldBeTrue)
			So(s.Score, ShouldEqual, 1.0)
			So(s.Majority, ShouldEqual, model.LabelIncorrect)
		})

		Convey("When the split is 3 to 2", func() {
			s, ok := e.Score(3, 2)
			So(ok, ShouldBeTrue)
			So(s.Majority, ShouldEqual, model.LabelCorrect)
			So(s.Score, ShouldBeGreaterThan, 0)
			So(s.Score, ShouldBeLessThan, 1)
			So(s.Score, ShouldAlmostEqual, 0.4, 1e-9)
		})

		Convey("When the split is 4 to 1", func() {
			s, _ := e.Score(1, 4)
			So(s.Score, ShouldAlmostEqual, 0.6, 1e-9)
			So(s.Majority, ShouldEqual, model.LabelIncorrect)
		})

		Convey("When fewer than Q binary labels exist", func() {
			_, ok := e.Score(3, 1)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given an engine with an even Q", t, func() {
		e := agreement.New(agreement.WithQuota(4))

		Convey("Then a 2-2 split is a tie without majority", func() {
			s, ok := e.Score(2, 2)
			So(ok, ShouldBeTrue)
			So(s.Tie, ShouldBeTrue)
			So(s.HasMajority(), ShouldBeFalse)
			So(e.Accepted(s), ShouldBeFalse)
		})
	})
}

func TestFleissKappa(t *testing.T) {
	Convey("Given count tables", t, func() {
		Convey("Then a unanimous pool overrides 0/0 to 1.0", func() {
			So(agreement.FleissKappa([][]int{{5, 0}, {5, 0}}), ShouldEqual, 1.0)
			So(agreement.FleissKappa([][]int{{0, 3}}), ShouldEqual, 1.0)
		})

		Convey("Then perfect agreement across categories is 1", func() {
			So(agreement.FleissKappa([][]int{{2, 0}, {0, 2}}), ShouldAlmostEqual, 1.0, 1e-9)
		})

		Convey("Then a single non-unanimous subject is -1/(n-1)", func() {
			So(agreement.FleissKappa([][]int{{3, 2}}), ShouldAlmostEqual, -0.25, 1e-9)
			So(agreement.FleissKappa([][]int{{4, 1}}), ShouldAlmostEqual, -0.25, 1e-9)
		})

		Convey("Then ragged or empty tables are NaN", func() {
			So(math.IsNaN(agreement.FleissKappa(nil)), ShouldBeTrue)
			So(math.IsNaN(agreement.FleissKappa([][]int{{3, 2}, {2, 2}})), ShouldBeTrue)
			So(math.IsNaN(agreement.FleissKappa([][]int{{1, 0}})), ShouldBeTrue)
		})
	})
}

func TestAggregate(t *testing.T) {
	Convey("Given judgments over several sub-items", t, func() {
		e := agreement.New(agreement.WithQuota(3))

		var js []model.Judgment
		js = append(js, judgments("b", 0, lc, lc, lc)...)
		js = append(js, judgments("a", 1, lc, li, li)...)
		js = append(js, judgments("a", 0, lc, lc, ld)...)
		js = append(js, judgments("c", 0, lc, lc, li)...)
		// a repeated row for w1 on b/0 must not count twice
		js = append(js, model.Judgment{ItemID: "b", SubIndex: 0, WorkerID: "w1", Label: li})

		doubts := []model.Doubt{{ItemID: "c", SubIndex: 0, WorkerID: "w9"}}
		scores := e.Aggregate(js, doubts)

		Convey("Then only complete binary sub-items without doubts are scored", func() {
			So(scores, ShouldHaveLength, 2)
			So(scores[0].ItemID, ShouldEqual, "a")
			So(scores[0].SubIndex, ShouldEqual, 1)
			So(scores[0].Majority, ShouldEqual, model.LabelIncorrect)
			So(scores[1].ItemID, ShouldEqual, "b")
			So(scores[1].Correct, ShouldEqual, 3)
			So(scores[1].Score, ShouldEqual, 1.0)
		})

		Convey("Then the summary pools them", func() {
			sum := e.Summarize(js, scores)
			So(sum.Scored, ShouldEqual, 2)
			So(sum.Labels["Doubt"], ShouldEqual, 1)
			So(sum.Labels["Correct"], ShouldEqual, 8)
			// Q=3 with a 1-2 split scores 1/3
			So(sum.AverageScore, ShouldAlmostEqual, 0.6667, 0.001)
			So(*sum.PooledKappa, ShouldAlmostEqual, 0.25, 1e-9)
			So(sum.LowAgreement, ShouldEqual, 1)
			So(sum.Accepted, ShouldEqual, 1)
			So(sum.PooledKappa, ShouldNotBeNil)
		})

		Convey("Then an empty input yields an empty summary", func() {
			sum := e.Summarize(nil, nil)
			So(sum.Scored, ShouldEqual, 0)
			So(sum.PooledKappa, ShouldBeNil)
		})
	})
}

func TestExport(t *testing.T) {
	Convey("Given scores around the threshold", t, func() {
		e := agreement.New(agreement.WithThreshold(0.4))
		items := map[string]model.Item{
			"a": {ID: "a", Passage: "p", SubItems: []model.SubItem{{Question: "q0", Answer: "a0"}, {Question: "q1", Answer: "a1"}}},
		}
		scores := []agreement.SubItemScore{
			{ItemID: "a", SubIndex: 0, Score: 0.39, Majority: model.LabelCorrect},
			{ItemID: "a", SubIndex: 1, Score: 0.40, Majority: model.LabelCorrect},
			{ItemID: "a", SubIndex: 7, Score: 1.0, Majority: model.LabelCorrect},
			{ItemID: "gone", SubIndex: 0, Score: 1.0, Majority: model.LabelIncorrect},
			{ItemID: "a", SubIndex: 0, Score: 1.0, Tie: true},
		}

		out := e.Export(context.Background(), scores, items)

		Convey("Then 0.39 is excluded and 0.40 is included", func() {
			So(out, ShouldHaveLength, 1)
			So(out[0], ShouldResemble, agreement.ExportRecord{
				ItemID: "a", SubIndex: 1, Question: "q1", Answer: "a1", Score: 0.4,
			})
		})

		Convey("Then the comparison uses the rounded score", func() {
			s := agreement.SubItemScore{Score: 0.39996, Majority: model.LabelCorrect}
			So(e.Accepted(s), ShouldBeTrue)
			s.Score = 0.39994
			So(e.Accepted(s), ShouldBeFalse)
		})
	})
}

func TestWorkerQuality(t *testing.T) {
	Convey("Given three workers on two sub-items", t, func() {
		e := agreement.New(agreement.WithQuota(3))
		var js []model.Judgment
		js = append(js, judgments("a", 0, lc, lc, li)...)
		js = append(js, judgments("a", 1, lc, li, li)...)
		js = append(js, judgments("b", 0, ld, lc, lc)...)
		doubts := []model.Doubt{{ItemID: "b", SubIndex: 0, WorkerID: "w1"}}

		scores := e.Aggregate(js, doubts)
		q := e.WorkerQuality(js, doubts, scores)

		Convey("Then matches are counted against the majority", func() {
			So(q, ShouldHaveLength, 3)
			byID := map[string]agreement.WorkerQuality{}
			for _, w := range q {
				byID[w.WorkerID] = w
			}
			So(byID["w1"].Judged, ShouldEqual, 2)
			So(byID["w1"].Matches, ShouldEqual, 1)
			So(byID["w1"].QualityPct, ShouldEqual, 50.0)
			So(byID["w1"].Doubt, ShouldEqual, 1)
			So(byID["w1"].DoubtsRaised, ShouldEqual, 1)
			So(byID["w1"].ItemsAudited, ShouldEqual, 2)
			So(byID["w2"].QualityPct, ShouldEqual, 100.0)
			So(byID["w3"].Matches, ShouldEqual, 1)
		})
	})

	Convey("Given a tied sub-item", t, func() {
		e := agreement.New(agreement.WithQuota(2))
		js := judgments("a", 0, lc, li)
		q := e.WorkerQuality(js, nil, e.Aggregate(js, nil))

		Convey("Then it does not count toward quality", func() {
			So(q[0].Judged, ShouldEqual, 0)
			So(q[0].QualityPct, ShouldEqual, 0.0)
		})
	})
}
