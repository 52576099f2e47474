// Package simulation drives a running jnana server with concurrent
// simulated workers and checks the allocation guarantees from the outside.
package simulation

import (
	"errors"
	"time"
)

// ErrVerification is returned when the run observed a broken guarantee.
var ErrVerification = errors.New("simulation verification failed")

// Config holds the simulation parameters.
type Config struct {
	BaseURL string        // Base URL of the service
	Workers int           // Number of concurrent simulated workers
	Timeout time.Duration // HTTP request timeout
	Seed    int64         // Seed for worker behavior

	// Per sub-item label odds; the remainder is Incorrect.
	CorrectRate float64
	DoubtRate   float64
	// SkipRate is the chance of skipping an assignment instead of submitting.
	SkipRate float64

	// IdleRetries is how often a worker asks again after none_available
	// before leaving, waiting IdleWait between attempts.
	IdleRetries int
	IdleWait    time.Duration

	Verbose bool
}

// DefaultConfig returns the parameters used by cmd/simulate.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:9080",
		Workers:     8,
		Timeout:     10 * time.Second,
		Seed:        1,
		CorrectRate: 0.8,
		DoubtRate:   0.05,
		SkipRate:    0.1,
		IdleRetries: 2,
		IdleWait:    500 * time.Millisecond,
	}
}

// Stats holds run statistics.
type Stats struct {
	Workers     int
	Assignments int
	Submitted   int
	Recorded    int
	Doubts      int
	Skipped     int
	Expired     int
	RateLimited int
	Completed   int
	SignedOut   int
	Failed      int
	Duration    time.Duration
}

func (s *Stats) add(o Stats) {
	s.Assignments += o.Assignments
	s.Submitted += o.Submitted
	s.Recorded += o.Recorded
	s.Doubts += o.Doubts
	s.Skipped += o.Skipped
	s.Expired += o.Expired
	s.RateLimited += o.RateLimited
	s.Completed += o.Completed
	s.SignedOut += o.SignedOut
	s.Failed += o.Failed
}
