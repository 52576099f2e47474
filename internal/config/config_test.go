package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/jnana/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it validates", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then durations derive from the second-based fields", func() {
			convey.So(cfg.CandidateTTL(), convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.RetiredCacheTTL(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.ItemCacheTTL(), convey.ShouldEqual, 10*time.Minute)
			convey.So(cfg.ItemIDsCacheTTL(), convey.ShouldEqual, 15*time.Second)
			convey.So(cfg.SessionIdle(), convey.ShouldEqual, 2*time.Hour)
			convey.So(cfg.SweepInterval(), convey.ShouldEqual, 30*time.Second)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		cases := map[string]func(*config.Config){
			"db_path":              func(c *config.Config) { c.DBPath = "" },
			"retire_threshold":     func(c *config.Config) { c.RetireThreshold = 0 },
			"timer_seconds":        func(c *config.Config) { c.TimerSeconds = 0 },
			"acceptance_threshold": func(c *config.Config) { c.AcceptanceThreshold = 1.5 },
			"max_allocation":       func(c *config.Config) { c.MaxAllocationAttempts = 0 },
			"activity":             func(c *config.Config) { c.ActivityWorkers = 0 },
			"rate limit":           func(c *config.Config) { c.RateLimitRPS = 0 },
		}
		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			if name != "activity" && name != "rate limit" && name != "max_allocation" {
				convey.So(err.Error(), convey.ShouldContainSubstring, name)
			}
		}
	})
}
