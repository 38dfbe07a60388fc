// Package schedule provides learning rate schedules for the optim training engine.
//
// Schedulers are pure functions of the epoch index. Constructors accept any
// value; the optimizer replaces a non-positive or non-finite rate with its
// fallback rate at use time. Call Validate to reject bad hyperparameters up
// front instead.
package schedule

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// Scheduler maps an epoch index (starting at 0) to a learning rate.
type Scheduler interface {
	Rate(epoch int) float64
	Name() string
	Description() string
	Formula() string
}

// Constant は全エポックで同じ学習率を返します。
type Constant struct {
	LearningRate float64
}

// NewConstant returns a Constant schedule.
func NewConstant(rate float64) *Constant { return &Constant{LearningRate: rate} }

// Rate implements Scheduler.
func (c *Constant) Rate(int) float64 { return c.LearningRate }

func (c *Constant) Name() string { return "Constant Learning Rate" }

func (c *Constant) Description() string {
	return "A constant learning rate that does not change during training."
}

func (c *Constant) Formula() string { return "lr = constant_value" }

// Validate reports a ValidationError for a non-positive or non-finite rate.
func (c *Constant) Validate() error {
	return validateRate("learning_rate", c.LearningRate)
}

// ExponentialDecay は lr = initRate * exp(-decayRate * epoch) で学習率を減衰させます。
// decayRate > 0 のとき狭義単調減少です。
type ExponentialDecay struct {
	InitialRate float64
	DecayRate   float64
}

// NewExponentialDecay returns an ExponentialDecay schedule.
func NewExponentialDecay(initRate, decayRate float64) *ExponentialDecay {
	return &ExponentialDecay{InitialRate: initRate, DecayRate: decayRate}
}

// Rate implements Scheduler.
func (e *ExponentialDecay) Rate(epoch int) float64 {
	return e.InitialRate * math.Exp(-e.DecayRate*float64(epoch))
}

func (e *ExponentialDecay) Name() string { return "Exponential Decay Learning Rate" }

func (e *ExponentialDecay) Description() string {
	return "A learning rate that decays exponentially over time."
}

func (e *ExponentialDecay) Formula() string { return "lr = lr_initial * e^(-decay_rate * epoch)" }

// Validate reports a ValidationError for a bad initial rate or a negative decay.
func (e *ExponentialDecay) Validate() error {
	if err := validateRate("initial_rate", e.InitialRate); err != nil {
		return err
	}
	if e.DecayRate < 0 || !errors.IsFinite(e.DecayRate) {
		return errors.NewValidationError("decay_rate", "must be a finite value >= 0", e.DecayRate)
	}
	return nil
}

// StepDecay multiplies the rate by Gamma every StepSize epochs:
//
//	lr = initRate * gamma^floor(epoch / stepSize)
type StepDecay struct {
	InitialRate float64
	Gamma       float64
	StepSize    int
}

// NewStepDecay returns a StepDecay schedule.
func NewStepDecay(initRate, gamma float64, stepSize int) *StepDecay {
	return &StepDecay{InitialRate: initRate, Gamma: gamma, StepSize: stepSize}
}

// Rate implements Scheduler. A non-positive StepSize disables decay.
func (s *StepDecay) Rate(epoch int) float64 {
	if s.StepSize <= 0 {
		return s.InitialRate
	}
	return s.InitialRate * math.Pow(s.Gamma, float64(epoch/s.StepSize))
}

func (s *StepDecay) Name() string { return "Step Decay Learning Rate" }

func (s *StepDecay) Description() string {
	return fmt.Sprintf("A learning rate multiplied by %g every %d epochs.", s.Gamma, s.StepSize)
}

func (s *StepDecay) Formula() string { return "lr = lr_initial * gamma^floor(epoch / step_size)" }

// Validate reports a ValidationError for out-of-range hyperparameters.
func (s *StepDecay) Validate() error {
	if err := validateRate("initial_rate", s.InitialRate); err != nil {
		return err
	}
	if s.Gamma <= 0 || s.Gamma > 1 {
		return errors.NewValidationError("gamma", "must be in (0, 1]", s.Gamma)
	}
	if s.StepSize <= 0 {
		return errors.NewValidationError("step_size", "must be positive", s.StepSize)
	}
	return nil
}

func validateRate(param string, rate float64) error {
	if rate <= 0 || !errors.IsFinite(rate) {
		return errors.NewValidationError(param, "must be a finite value > 0", rate)
	}
	return nil
}

// Validator is implemented by schedulers with a Validate method.
type Validator interface {
	Validate() error
}

// Validate calls s.Validate when s implements Validator.
func Validate(s Scheduler) error {
	if v, ok := s.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// New builds a scheduler by kind: "constant", "exponential" or "step".
// For "step", decay is used as gamma and stepSize as the step.
func New(kind string, rate, decay float64, stepSize int) (Scheduler, error) {
	var s Scheduler
	switch kind {
	case "", "constant":
		s = NewConstant(rate)
	case "exponential":
		s = NewExponentialDecay(rate, decay)
	case "step":
		s = NewStepDecay(rate, decay, stepSize)
	default:
		return nil, errors.NewValidationError("scheduler", "must be one of constant, exponential, step", kind)
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}
