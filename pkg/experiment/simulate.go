package experiment

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/teslashibe/go-freefield/pkg/headpose"
	"github.com/teslashibe/go-freefield/pkg/processor"
	"github.com/teslashibe/go-freefield/pkg/staircase"
)

// SimulatedSubject answers like a listener for example sessions. It moves a
// SimulatedHead when pointing and answers identification with a logistic
// psychometric function.
type SimulatedSubject struct {
	Head *headpose.SimulatedHead
	Rand *rand.Rand

	// PointingNoise is the standard deviation of pointing errors in degrees.
	PointingNoise float64
	// Threshold and Slope shape the identification psychometric function.
	Threshold float64
	Slope     float64
	// CountAccuracy is the probability of counting talkers correctly.
	CountAccuracy float64
	// Delay is the simulated reaction time.
	Delay time.Duration

	mu      sync.Mutex
	pending Stimulus
	presses int
}

// NewSimulatedSubject returns a subject with plausible defaults.
func NewSimulatedSubject(head *headpose.SimulatedHead, rng *rand.Rand) *SimulatedSubject {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 7))
	}
	return &SimulatedSubject{
		Head:          head,
		Rand:          rng,
		PointingNoise: 3,
		Threshold:     55,
		Slope:         0.5,
		CountAccuracy: 0.7,
	}
}

// Present records what the next response refers to.
func (s *SimulatedSubject) Present(st Stimulus) {
	s.mu.Lock()
	s.pending = st
	s.mu.Unlock()
}

// Presses returns how many responses were given.
func (s *SimulatedSubject) Presses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presses
}

// WaitForPress answers the pending stimulus.
func (s *SimulatedSubject) WaitForPress(ctx context.Context) (processor.Press, error) {
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return processor.Press{}, ctx.Err()
		case <-time.After(s.Delay):
		}
	} else if err := ctx.Err(); err != nil {
		return processor.Press{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.pending
	s.pending = Stimulus{}
	s.presses++

	button := 1
	switch st.Kind {
	case KindPointing:
		if s.Head != nil {
			s.Head.Look(headpose.Pose{
				Azimuth:   st.Target.Azimuth + s.Rand.NormFloat64()*s.PointingNoise,
				Elevation: st.Target.Elevation + s.Rand.NormFloat64()*s.PointingNoise,
			})
		}
	case KindReturn, KindCalibrate:
		if s.Head != nil {
			s.Head.Look(headpose.Pose{
				Azimuth:   s.Rand.NormFloat64() * s.PointingNoise / 3,
				Elevation: s.Rand.NormFloat64() * s.PointingNoise / 3,
			})
		}
	case KindIdentify:
		button = s.guess(st.Solution, staircase.SimulateResponse(st.Level, s.Threshold, s.Slope, s.Rand))
	case KindCount:
		button = s.guess(st.Solution, s.Rand.Float64() < s.CountAccuracy)
	}
	return processor.Press{Button: button, Bitmask: 1 << (button - 1), ReactionTime: s.Delay}, nil
}

// guess returns the solution when correct and another button otherwise.
func (s *SimulatedSubject) guess(solution int, correct bool) int {
	if correct {
		return solution
	}
	b := 1 + s.Rand.IntN(WordsPerTalker-1)
	if b >= solution {
		b++
	}
	return b
}
