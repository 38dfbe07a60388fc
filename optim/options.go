package optim

import (
	"github.com/YuminosukeSato/sgdkit/pkg/log"
)

// Option configures a GradientDescent.
type Option func(*GradientDescent)

// WithInitialRate sets the nominal learning rate n0 (default 0.01).
// It must be positive. n0 is validated and reported by InitialRate but never
// enters the update: every batch uses the scheduler's rate for its epoch.
// Pass the same value to the scheduler to make it effective.
func WithInitialRate(n0 float64) Option {
	return func(gd *GradientDescent) {
		gd.initialRate = n0
	}
}

// WithShuffle enables or disables the per-epoch row shuffle (default true).
func WithShuffle(shuffle bool) Option {
	return func(gd *GradientDescent) {
		gd.shuffle = shuffle
	}
}

// WithFallbackRate sets the rate substituted for a non-positive or
// non-finite scheduler rate (default 0.001).
func WithFallbackRate(rate float64) Option {
	return func(gd *GradientDescent) {
		gd.fallbackRate = rate
	}
}

// WithLogger sets the logger used for diagnostics and epoch summaries.
func WithLogger(logger log.Logger) Option {
	return func(gd *GradientDescent) {
		if logger != nil {
			gd.logger = logger
		}
	}
}

// WithVerbose controls the level of the per-epoch summary: Info when true
// (default), Debug otherwise.
func WithVerbose(verbose bool) Option {
	return func(gd *GradientDescent) {
		gd.verbose = verbose
	}
}

// WithEpochCallback registers fn to be called after every epoch.
// Multiple callbacks run in registration order.
func WithEpochCallback(fn func(EpochResult)) Option {
	return func(gd *GradientDescent) {
		if fn != nil {
			gd.epochCallbacks = append(gd.epochCallbacks, fn)
		}
	}
}

// WithBatchCallback registers fn to be called after every batch, including
// skipped ones.
func WithBatchCallback(fn func(BatchResult)) Option {
	return func(gd *GradientDescent) {
		if fn != nil {
			gd.batchCallbacks = append(gd.batchCallbacks, fn)
		}
	}
}
