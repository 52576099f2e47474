package worker

import "github.com/okian/jnana/pkg/logger"

// Option applies a configuration option to a Recorder.
type Option func(*Recorder)

// WithName sets the recorder name used in logs.
func WithName(name string) Option {
	return func(r *Recorder) {
		if name != "" {
			r.name = name
		}
	}
}

// WithLogger sets the base logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}
