// Package staircase implements the adaptive up-down procedure used to
// estimate perceptual thresholds.
//
// A correct response lowers the level (the task gets harder), an incorrect
// one raises it. Until the first reversal every response moves the level;
// afterwards NDown correct or NUp incorrect responses in a row are needed.
package staircase

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

type direction int

const (
	dirStart direction = iota
	dirUp
	dirDown
)

func (d direction) String() string {
	switch d {
	case dirUp:
		return "up"
	case dirDown:
		return "down"
	default:
		return "start"
	}
}

// Response is one recorded trial.
type Response struct {
	Level   float64 `json:"level"`
	Correct bool    `json:"correct"`
}

// State is a snapshot of the staircase.
type State struct {
	Level          float64    `json:"level"`
	ReversalCount  int        `json:"reversal_count"`
	ReversalLevels []float64  `json:"reversal_levels"`
	StepSizes      []float64  `json:"step_sizes"`
	History        []Response `json:"history"`
	Finished       bool       `json:"finished"`
}

// Staircase tracks level, reversals and history. Not safe for concurrent use.
type Staircase struct {
	cfg       Config
	level     float64
	dir       direction
	counter   int // >0: consecutive correct, <0: consecutive incorrect
	reversals []float64
	history   []Response
	finished  bool
}

// New creates a staircase.
func New(cfg Config) (*Staircase, error) {
	if cfg.StepUpFactor == 0 {
		cfg.StepUpFactor = 1
	}
	if cfg.MinLevel == 0 && cfg.MaxLevel == 0 {
		cfg.MinLevel, cfg.MaxLevel = math.Inf(-1), math.Inf(1)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.StepSizes = append([]float64(nil), cfg.StepSizes...)
	return &Staircase{cfg: cfg, level: cfg.StartLevel}, nil
}

// Level returns the level for the next trial.
func (s *Staircase) Level() float64 { return s.level }

// Finished reports whether the staircase has terminated.
func (s *Staircase) Finished() bool { return s.finished }

// Converged reports whether the staircase reached its reversal target.
func (s *Staircase) Converged() bool { return len(s.reversals) >= s.cfg.NReversals }

// Reversals returns the number of reversals so far.
func (s *Staircase) Reversals() int { return len(s.reversals) }

// ReversalLevels returns the level recorded at each reversal.
func (s *Staircase) ReversalLevels() []float64 {
	return append([]float64(nil), s.reversals...)
}

// Trials returns the number of recorded responses.
func (s *Staircase) Trials() int { return len(s.history) }

// History returns the recorded responses in order.
func (s *Staircase) History() []Response {
	return append([]Response(nil), s.history...)
}

// StepSize returns the step that the next move will use.
func (s *Staircase) StepSize() float64 {
	i := len(s.reversals)
	if i >= len(s.cfg.StepSizes) {
		i = len(s.cfg.StepSizes) - 1
	}
	return s.cfg.StepSizes[i]
}

// State returns a copy of the current state.
func (s *Staircase) State() State {
	return State{
		Level:          s.level,
		ReversalCount:  len(s.reversals),
		ReversalLevels: s.ReversalLevels(),
		StepSizes:      append([]float64(nil), s.cfg.StepSizes...),
		History:        s.History(),
		Finished:       s.finished,
	}
}

// AddResponse records the response to the trial at the current level and
// moves the level when the up/down rule fires.
func (s *Staircase) AddResponse(correct bool) error {
	if s.finished {
		return ErrFinished
	}
	s.history = append(s.history, Response{Level: s.level, Correct: correct})

	switch {
	case correct && s.counter >= 0:
		s.counter++
	case correct:
		s.counter = 1
	case s.counter <= 0:
		s.counter--
	default:
		s.counter = -1
	}

	var next direction
	if len(s.reversals) == 0 {
		if correct {
			next = dirDown
		} else {
			next = dirUp
		}
	} else {
		switch {
		case s.counter >= s.cfg.NDown:
			next = dirDown
		case s.counter <= -s.cfg.NUp:
			next = dirUp
		}
	}

	if next != dirStart {
		if s.dir != dirStart && next != s.dir {
			s.reversals = append(s.reversals, s.level)
		}
		s.dir = next
		s.step(next)
		s.counter = 0
	}

	if len(s.reversals) >= s.cfg.NReversals ||
		(s.cfg.MaxTrials > 0 && len(s.history) >= s.cfg.MaxTrials) {
		s.finished = true
	}
	return nil
}

func (s *Staircase) step(d direction) {
	size := s.StepSize()
	if d == dirUp {
		s.level += size * s.cfg.StepUpFactor
	} else {
		s.level -= size
	}
	s.level = math.Max(s.cfg.MinLevel, math.Min(s.cfg.MaxLevel, s.level))
}

// Threshold returns the mean level over the last n reversals. When n is
// not positive or exceeds the reversal count, the largest even number of
// reversals is used (at least one).
func (s *Staircase) Threshold(n int) (float64, error) {
	r := len(s.reversals)
	if r == 0 {
		return math.NaN(), ErrNoReversals
	}
	if n <= 0 || n > r {
		n = r - r%2
		if n == 0 {
			n = 1
		}
	}
	return stat.Mean(s.reversals[r-n:], nil), nil
}

func (s *Staircase) String() string {
	return fmt.Sprintf("staircase(level=%.2f reversals=%d/%d trials=%d dir=%s finished=%t)",
		s.level, len(s.reversals), s.cfg.NReversals, len(s.history), s.dir, s.finished)
}
