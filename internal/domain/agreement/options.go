package agreement

import "github.com/okian/jnana/pkg/logger"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithQuota sets Q, the number of binary judgments a sub-item needs.
func WithQuota(q int) Option {
	return func(e *Engine) {
		if q >= 2 {
			e.quota = q
		}
	}
}

// WithThreshold sets the minimum rounded score an exported sub-item needs.
func WithThreshold(t float64) Option {
	return func(e *Engine) {
		if t >= 0 && t <= 1 {
			e.threshold = t
		}
	}
}

// WithLogger sets the logger used for data integrity warnings.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
