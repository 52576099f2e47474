package onboarding_test

import (
	"math/rand"
	"testing"

	"github.com/okian/jnana/internal/domain/onboarding"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSuggest(t *testing.T) {
	rng := func() *rand.Rand { return rand.New(rand.NewSource(3)) }

	Convey("Given a worker named Ravi Shah", t, func() {
		Convey("When no id is taken", func() {
			ids := onboarding.Suggest("Ravi", "Shah", nil, rng())

			Convey("Then the name patterns are offered in order", func() {
				So(ids, ShouldResemble, []string{"ravshx", "rashax", "rshahx", "sharax", "shravx"})
			})
		})

		Convey("When some ids are taken", func() {
			existing := map[string]struct{}{"ravshx": {}, "sharax": {}}
			ids := onboarding.Suggest("Ravi", "Shah", existing, rng())

			Convey("Then random ids fill the gaps", func() {
				So(ids, ShouldHaveLength, onboarding.Suggestions)
				So(ids[:3], ShouldResemble, []string{"rashax", "rshahx", "shravx"})
				for _, id := range ids {
					So(onboarding.Valid(id), ShouldBeTrue)
					So(existing, ShouldNotContainKey, id)
				}
			})
		})
	})

	Convey("Given names with punctuation and short parts", t, func() {
		ids := onboarding.Suggest("Jo-Ann", "O'Neil", nil, rand.New(rand.NewSource(1)))

		Convey("Then non-letters are dropped and ids padded", func() {
			So(ids, ShouldResemble, []string{"jooxxx", "joonxx", "joneix", "onjoxx", "ojoxxx"})
			So(ids, ShouldHaveLength, 5)
			seen := map[string]bool{}
			for _, id := range ids {
				So(seen[id], ShouldBeFalse)
				seen[id] = true
				So(onboarding.Valid(id), ShouldBeTrue)
			}
		})
	})

	Convey("Given a very long name", t, func() {
		ids := onboarding.Suggest("Bartholomew", "Featherstonehaugh", nil, rand.New(rand.NewSource(1)))

		Convey("Then ids are cut to six letters", func() {
			So(ids[2], ShouldEqual, "bfeath")
		})
	})
}

func TestValid(t *testing.T) {
	Convey("Valid accepts six lowercase letters only", t, func() {
		So(onboarding.Valid("abcdef"), ShouldBeTrue)
		So(onboarding.Valid("abcde"), ShouldBeFalse)
		So(onboarding.Valid("Abcdef"), ShouldBeFalse)
		So(onboarding.Valid("abc1ef"), ShouldBeFalse)
	})
}
