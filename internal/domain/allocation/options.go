package allocation

import (
	"math/rand"
	"time"

	"github.com/okian/jnana/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithQuota sets Q, the number of distinct workers an item may receive.
func WithQuota(q int) Option {
	return func(e *Engine) {
		if q > 0 {
			e.quota = q
		}
	}
}

// WithTimer sets the reservation lifetime handed to workers as a deadline.
// It must match the ledger TTL.
func WithTimer(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timer = d
		}
	}
}

// WithMaxAttempts bounds the number of candidates Allocate tries per call.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithPrioritizeNearComplete toggles ordering candidates by remaining slots.
func WithPrioritizeNearComplete(on bool) Option {
	return func(e *Engine) {
		e.prioritize = on
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRand sets the source used to shuffle candidates.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
