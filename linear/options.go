package linear

import (
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
)

// Solvers accepted by WithSolver.
const (
	SolverSGD    = "sgd"
	SolverNormal = "normal"
)

// config は線形モデル共通のハイパーパラメータ
type config struct {
	learningRate float64
	epochs       int
	batchSize    int
	decayRate    float64
	shuffle      bool
	solver       string
	threshold    float64
	verbose      bool
	logger       log.Logger
}

// Option is a function that configures LinearRegression and LogisticRegression.
// Options that do not apply to a model are ignored by it.
type Option func(*config)

// WithLearningRate sets the initial learning rate.
func WithLearningRate(rate float64) Option {
	return func(c *config) {
		c.learningRate = rate
	}
}

// WithEpochs sets the number of passes over the training data.
func WithEpochs(epochs int) Option {
	return func(c *config) {
		c.epochs = epochs
	}
}

// WithBatchSize sets the mini-batch size. Fit clamps it to the number of rows.
func WithBatchSize(size int) Option {
	return func(c *config) {
		c.batchSize = size
	}
}

// WithDecayRate sets the exponential decay of the learning rate per epoch
// (LinearRegression only).
func WithDecayRate(decay float64) Option {
	return func(c *config) {
		c.decayRate = decay
	}
}

// WithShuffle sets whether rows are reshuffled every epoch (LinearRegression only).
func WithShuffle(shuffle bool) Option {
	return func(c *config) {
		c.shuffle = shuffle
	}
}

// WithSolver selects "sgd" (default) or the closed-form "normal" equation
// (LinearRegression only).
func WithSolver(solver string) Option {
	return func(c *config) {
		c.solver = solver
	}
}

// WithThreshold sets the probability cut-off used by PredictClass and Score
// (LogisticRegression only).
func WithThreshold(threshold float64) Option {
	return func(c *config) {
		c.threshold = threshold
	}
}

// WithVerbose logs every epoch summary at Info instead of Debug.
func WithVerbose(verbose bool) Option {
	return func(c *config) {
		c.verbose = verbose
	}
}

// WithLogger sets the logger used during training.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newConfig(defaults config, opts []Option) (config, error) {
	c := defaults
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("linear")
	}

	if c.learningRate <= 0 || !errors.IsFinite(c.learningRate) {
		return c, errors.NewValidationError("learning_rate", "learning rate must be positive", c.learningRate)
	}
	if c.epochs <= 0 {
		return c, errors.NewValidationError("epochs", "number of epochs must be positive", c.epochs)
	}
	if c.batchSize <= 0 {
		return c, errors.NewValidationError("batch_size", "batch size must be positive", c.batchSize)
	}
	if c.decayRate < 0 || !errors.IsFinite(c.decayRate) {
		return c, errors.NewValidationError("decay_rate", "must be non-negative", c.decayRate)
	}
	if c.solver != SolverSGD && c.solver != SolverNormal {
		return c, errors.NewValidationError("solver", "must be one of sgd, normal", c.solver)
	}
	if c.threshold <= 0 || c.threshold >= 1 {
		return c, errors.NewValidationError("threshold", "must be in (0, 1)", c.threshold)
	}
	return c, nil
}

func (c config) hyperparameters() map[string]interface{} {
	return map[string]interface{}{
		"learning_rate": c.learningRate,
		"epochs":        c.epochs,
		"batch_size":    c.batchSize,
		"decay_rate":    c.decayRate,
		"shuffle":       c.shuffle,
		"solver":        c.solver,
		"threshold":     c.threshold,
	}
}
