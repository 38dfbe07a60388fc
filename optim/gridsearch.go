package optim

import (
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/core/parallel"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/loss"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
	"github.com/YuminosukeSato/sgdkit/schedule"
)

// Candidate is one hyperparameter combination evaluated by GridSearch.
type Candidate struct {
	Rate      float64
	Epochs    int
	BatchSize int
	// Decay selects ExponentialDecay(Rate, Decay) when positive, Constant(Rate) otherwise.
	Decay float64
}

func (c Candidate) String() string {
	return fmt.Sprintf("rate=%g epochs=%d batch=%d decay=%g", c.Rate, c.Epochs, c.BatchSize, c.Decay)
}

// Scheduler returns the learning rate schedule described by c.
func (c Candidate) Scheduler() schedule.Scheduler {
	if c.Decay > 0 {
		return schedule.NewExponentialDecay(c.Rate, c.Decay)
	}
	return schedule.NewConstant(c.Rate)
}

// Grid returns the cartesian product of the given values.
func Grid(rates []float64, epochs []int, batchSizes []int, decays []float64) []Candidate {
	if len(decays) == 0 {
		decays = []float64{0}
	}
	var out []Candidate
	for _, r := range rates {
		for _, e := range epochs {
			for _, b := range batchSizes {
				for _, d := range decays {
					out = append(out, Candidate{Rate: r, Epochs: e, BatchSize: b, Decay: d})
				}
			}
		}
	}
	return out
}

// ModelFactory builds a fresh model, ready for Optimize (parameters
// initialised for nFeatures), for one candidate.
type ModelFactory func(c Candidate, nFeatures int) (model.Trainable, error)

// GridResult is the outcome of training one candidate.
type GridResult struct {
	Candidate Candidate
	Model     model.Trainable
	// Score is the validation loss; lower is better. NaN when Err is set.
	Score  float64
	Losses []float64
	Err    error
}

func (r GridResult) ok() bool { return r.Err == nil && !math.IsNaN(r.Score) }

// GridSearch trains one independent model per candidate concurrently and
// scores each on a validation set. Every run has its own model and
// optimizer; the datasets are shared read-only.
type GridSearch struct {
	factory ModelFactory
	loss    loss.Loss
	workers int
	options []Option
	logger  log.Logger
}

// GridSearchOption configures a GridSearch.
type GridSearchOption func(*GridSearch)

// WithWorkers bounds the number of concurrent runs (default: number of CPUs).
func WithWorkers(n int) GridSearchOption {
	return func(g *GridSearch) { g.workers = n }
}

// WithOptimizerOptions sets options applied to every run's GradientDescent.
func WithOptimizerOptions(opts ...Option) GridSearchOption {
	return func(g *GridSearch) { g.options = append(g.options, opts...) }
}

// WithSearchLogger sets the logger for per-candidate summaries.
func WithSearchLogger(logger log.Logger) GridSearchOption {
	return func(g *GridSearch) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGridSearch creates a GridSearch training models from factory with loss l.
func NewGridSearch(factory ModelFactory, l loss.Loss, opts ...GridSearchOption) (*GridSearch, error) {
	if factory == nil {
		return nil, errors.NewValidationError("factory", "must not be nil", nil)
	}
	if l == nil {
		return nil, errors.NewValidationError("loss", "must not be nil", nil)
	}
	g := &GridSearch{factory: factory, loss: l}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.GetLoggerWithName("optim.gridsearch")
	}
	return g, nil
}

// Run trains every candidate on train and scores it on validation. Results
// are sorted by ascending score with failed candidates last. It fails only
// when the inputs are unusable or every candidate failed.
func (g *GridSearch) Run(train, validation *dataset.Dataset, candidates []Candidate) ([]GridResult, error) {
	if len(candidates) == 0 {
		return nil, errors.NewValidationError("candidates", "at least one candidate is required", 0)
	}
	if train == nil || validation == nil {
		return nil, errors.NewValidationError("dataset", "train and validation must not be nil", nil)
	}
	if train.NumFeatures() != validation.NumFeatures() {
		return nil, errors.NewDimensionError("GridSearch.Run", train.NumFeatures(), validation.NumFeatures(), 1)
	}

	results := make([]GridResult, len(candidates))
	parallel.ForEach(len(candidates), g.workers, func(i int) {
		results[i] = g.evaluate(train, validation, candidates[i])
	})

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.ok() != b.ok() {
			return a.ok()
		}
		return a.Score < b.Score
	})

	if !results[0].ok() {
		cause := results[0].Err
		if cause == nil {
			cause = errors.NewNumericalInstabilityError("validation_loss", []float64{results[0].Score}, 0)
		}
		return results, errors.Wrap(cause, "grid search: every candidate failed")
	}
	g.logger.Info("Grid search finished",
		"best", results[0].Candidate.String(),
		log.LossKey, results[0].Score,
		"candidates", len(candidates),
	)
	return results, nil
}

func (g *GridSearch) evaluate(train, validation *dataset.Dataset, c Candidate) GridResult {
	res := GridResult{Candidate: c, Score: math.NaN()}
	history := NewHistory()

	res.Err = errors.SafeExecute("GridSearch.evaluate", func() error {
		m, err := g.factory(c, train.NumFeatures())
		if err != nil {
			return err
		}
		res.Model = m

		opts := append(append([]Option(nil), g.options...), WithVerbose(false), WithEpochCallback(history.Record))
		gd, err := NewGradientDescent(opts...)
		if err != nil {
			return err
		}
		if err := gd.Optimize(m, train, g.loss, c.Scheduler(), c.Epochs, c.BatchSize); err != nil {
			return err
		}

		pred, err := m.Predict(validation.Features())
		if err != nil {
			return err
		}
		score, err := g.loss.Compute(validation.Targets(), pred)
		if err != nil {
			return err
		}
		res.Score = score
		return nil
	})
	res.Losses = history.Losses()

	if res.Err != nil {
		g.logger.Warn("Candidate failed", res.Err, "candidate", c.String())
	} else {
		g.logger.Debug("Candidate finished", "candidate", c.String(), log.LossKey, res.Score)
	}
	return res
}
