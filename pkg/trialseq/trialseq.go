// Package trialseq orders experimental conditions into trial sequences.
package trialseq

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrSequenceExhausted is returned by Next after the last trial.
var ErrSequenceExhausted = errors.New("trialseq: sequence exhausted")

// Kind selects how conditions are ordered.
type Kind string

const (
	// RandomPermutation shuffles each block of conditions independently.
	RandomPermutation Kind = "random_permutation"

	// NonRepeating shuffles all trials so that no condition follows itself.
	NonRepeating Kind = "non_repeating"
)

// Sequence is an ordered list of 1-based condition indices. Conditions
// hold the values the indices refer to.
type Sequence[T any] struct {
	Conditions []T
	Trials     []int
	Kind       Kind

	n int // index of the current trial, -1 before the first Next
}

// New builds a sequence presenting every condition reps times.
func New[T any](conditions []T, reps int, kind Kind, rng *rand.Rand) (*Sequence[T], error) {
	if len(conditions) == 0 {
		return nil, errors.New("trialseq: no conditions")
	}
	if reps < 1 {
		return nil, fmt.Errorf("trialseq: reps must be positive, got %d", reps)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	var trials []int
	switch kind {
	case RandomPermutation, "":
		kind = RandomPermutation
		trials = permutation(len(conditions), reps, rng)
	case NonRepeating:
		trials = nonRepeating(len(conditions), reps, rng)
	default:
		return nil, fmt.Errorf("trialseq: unknown kind %q", kind)
	}

	return &Sequence[T]{
		Conditions: append([]T(nil), conditions...),
		Trials:     trials,
		Kind:       kind,
		n:          -1,
	}, nil
}

// Len returns the total number of trials.
func (s *Sequence[T]) Len() int { return len(s.Trials) }

// ThisN returns the 0-based index of the current trial (-1 before the first).
func (s *Sequence[T]) ThisN() int { return s.n }

// ThisTrial returns the condition of the current trial.
func (s *Sequence[T]) ThisTrial() (T, bool) {
	var zero T
	if s.n < 0 || s.n >= len(s.Trials) {
		return zero, false
	}
	return s.Conditions[s.Trials[s.n]-1], true
}

// Finished reports whether all trials have been handed out.
func (s *Sequence[T]) Finished() bool { return s.n >= len(s.Trials)-1 }

// Next advances to the next trial and returns its condition.
func (s *Sequence[T]) Next() (T, error) {
	var zero T
	if s.Finished() {
		return zero, ErrSequenceExhausted
	}
	s.n++
	c, _ := s.ThisTrial()
	return c, nil
}

func permutation(n, reps int, rng *rand.Rand) []int {
	trials := make([]int, 0, n*reps)
	for r := 0; r < reps; r++ {
		block := rng.Perm(n)
		for _, c := range block {
			trials = append(trials, c+1)
		}
	}
	return trials
}

// nonRepeating shuffles the full list and repairs adjacent duplicates by
// swapping with a later position that fits. A single condition cannot
// avoid repetition and is returned in order.
func nonRepeating(n, reps int, rng *rand.Rand) []int {
	trials := make([]int, 0, n*reps)
	for c := 1; c <= n; c++ {
		for r := 0; r < reps; r++ {
			trials = append(trials, c)
		}
	}
	if n == 1 {
		return trials
	}
	for attempt := 0; attempt < 100; attempt++ {
		rng.Shuffle(len(trials), func(i, j int) { trials[i], trials[j] = trials[j], trials[i] })
		if repair(trials) {
			return trials
		}
	}
	// Deterministic fallback: round-robin through the conditions.
	for i := range trials {
		trials[i] = i%n + 1
	}
	return trials
}

func repair(t []int) bool {
	for i := 1; i < len(t); i++ {
		if t[i] != t[i-1] {
			continue
		}
		fixed := false
		for j := 0; j < len(t) && !fixed; j++ {
			if j == i || t[j] == t[i] {
				continue
			}
			if fits(t, i, t[j]) && fits(t, j, t[i]) {
				t[i], t[j] = t[j], t[i]
				fixed = true
			}
		}
		if !fixed {
			return false
		}
	}
	for i := 1; i < len(t); i++ {
		if t[i] == t[i-1] {
			return false
		}
	}
	return true
}

// fits reports whether v can sit at position i without touching an equal neighbour.
func fits(t []int, i, v int) bool {
	if i > 0 && t[i-1] == v {
		return false
	}
	if i < len(t)-1 && t[i+1] == v {
		return false
	}
	return true
}
