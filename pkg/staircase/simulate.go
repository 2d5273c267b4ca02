package staircase

import (
	"math"
	"math/rand/v2"
)

// SimulateResponse draws a response from a logistic psychometric function
// centred on threshold. Higher levels are easier. Used for dry runs.
func SimulateResponse(level, threshold, slope float64, rng *rand.Rand) bool {
	p := 1 / (1 + math.Exp(-slope*(level-threshold)))
	return rng.Float64() < p
}

// Run drives the staircase with respond until it finishes and returns the
// threshold over all even reversals.
func Run(s *Staircase, respond func(level float64) bool) (float64, error) {
	for !s.Finished() {
		if err := s.AddResponse(respond(s.Level())); err != nil {
			return math.NaN(), err
		}
	}
	return s.Threshold(0)
}
