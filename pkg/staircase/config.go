package staircase

import (
	"errors"
	"math"
)

// Config holds the parameters of an up-down staircase.
type Config struct {
	// StartLevel is the level of the first trial.
	StartLevel float64

	// StepSizes is the step schedule. The step used after k reversals is
	// StepSizes[min(k, len-1)].
	StepSizes []float64

	// NReversals ends the staircase once reached.
	NReversals int

	// NUp incorrect responses in a row raise the level (after the first reversal).
	NUp int

	// NDown correct responses in a row lower the level (after the first reversal).
	NDown int

	// StepUpFactor scales upward steps relative to downward ones.
	StepUpFactor float64

	// MinLevel and MaxLevel clip the level.
	MinLevel float64
	MaxLevel float64

	// MaxTrials ends the staircase unconverged (0 = unlimited).
	MaxTrials int
}

// DefaultConfig returns a 1-up-1-down staircase starting at 70 dB with
// steps of 4 then 1 and two reversals.
func DefaultConfig() Config {
	return Config{
		StartLevel:   70,
		StepSizes:    []float64{4, 1},
		NReversals:   2,
		NUp:          1,
		NDown:        1,
		StepUpFactor: 1,
		MinLevel:     math.Inf(-1),
		MaxLevel:     math.Inf(1),
		MaxTrials:    0,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.StepSizes) == 0 {
		return errors.New("staircase: at least one step size required")
	}
	for _, s := range c.StepSizes {
		if s <= 0 || math.IsNaN(s) {
			return errors.New("staircase: step sizes must be positive")
		}
	}
	if c.NReversals < 1 {
		return errors.New("staircase: NReversals must be at least 1")
	}
	if c.NUp < 1 || c.NDown < 1 {
		return errors.New("staircase: NUp and NDown must be at least 1")
	}
	if c.StepUpFactor <= 0 {
		return errors.New("staircase: StepUpFactor must be positive")
	}
	if c.MinLevel >= c.MaxLevel {
		return errors.New("staircase: MinLevel must be below MaxLevel")
	}
	if c.StartLevel < c.MinLevel || c.StartLevel > c.MaxLevel {
		return errors.New("staircase: StartLevel outside bounds")
	}
	if c.MaxTrials < 0 {
		return errors.New("staircase: MaxTrials must not be negative")
	}
	return nil
}
