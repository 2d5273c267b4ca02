package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-freefield/pkg/speakers"
	"github.com/teslashibe/go-freefield/pkg/staircase"
	"github.com/teslashibe/go-freefield/pkg/stimuli"
	"github.com/teslashibe/go-freefield/pkg/storage"
	"github.com/teslashibe/go-freefield/pkg/trialseq"
)

// UnmaskingConfig configures Spatial Unmasking.
type UnmaskingConfig struct {
	// Reps is how often each masker position is measured.
	Reps int
	// Duration of the pink noise masker.
	Duration    time.Duration
	MaskerLevel float64
	Staircase   staircase.Config
	// Talkers holds the number-word corpus, WordsPerTalker sounds each in
	// file order. Required.
	Talkers [][]*stimuli.Sound
}

// DefaultUnmaskingConfig returns the lab defaults without a corpus.
func DefaultUnmaskingConfig() UnmaskingConfig {
	sc := staircase.DefaultConfig()
	sc.MaxTrials = 60
	return UnmaskingConfig{
		Reps:        1,
		Duration:    time.Second,
		MaskerLevel: stimuli.DefaultLevel,
		Staircase:   sc,
	}
}

// Unmasking measures the level at which a number word from the central
// speaker is identified against a noise masker, once per masker position.
// Each masker position runs its own staircase.
type Unmasking struct {
	cfg UnmaskingConfig
}

// NewUnmasking validates the configuration.
func NewUnmasking(cfg UnmaskingConfig) (*Unmasking, error) {
	if cfg.Reps <= 0 {
		return nil, fmt.Errorf("experiment: unmasking reps must be positive, got %d", cfg.Reps)
	}
	if cfg.Duration <= 0 {
		return nil, errors.New("experiment: unmasking duration must be positive")
	}
	if _, err := staircase.New(cfg.Staircase); err != nil {
		return nil, err
	}
	if len(cfg.Talkers) == 0 {
		return nil, errors.New("experiment: unmasking needs a talker corpus")
	}
	for i, t := range cfg.Talkers {
		if len(t) != WordsPerTalker {
			return nil, fmt.Errorf("experiment: talker %d has %d words, want %d", i, len(t), WordsPerTalker)
		}
	}
	return &Unmasking{cfg: cfg}, nil
}

func (u *Unmasking) Name() string { return NameUnmasking }

func (u *Unmasking) Run(ctx context.Context, s *Session) error {
	plane, err := s.Speakers.Plane(s.Plane)
	if err != nil {
		return fmt.Errorf("experiment: plane: %w", err)
	}
	maskers := speakers.Without(plane, s.Central.ID)
	if len(maskers) == 0 {
		return fmt.Errorf("experiment: no masker speakers in plane %s", s.Plane)
	}
	seq, err := trialseq.New(maskers, u.cfg.Reps, trialseq.RandomPermutation, s.Rand)
	if err != nil {
		return err
	}

	talker := s.Rand.IntN(len(u.cfg.Talkers))
	rate := s.Rig.Config().SampleRate
	words := atRate(u.cfg.Talkers[talker], rate)
	masker := stimuli.PinkNoise(u.cfg.Duration, rate, s.Rand)
	masker.Ramp(5 * time.Millisecond)
	masker.SetLevel(u.cfg.MaskerLevel)

	s.Logger.Info("spatial unmasking", "talker", talker, "maskers", len(maskers), "blocks", seq.Len())
	for !seq.Finished() {
		m, err := seq.Next()
		if err != nil {
			return err
		}
		if err := u.block(ctx, s, m, words, masker); err != nil {
			return err
		}
	}
	return nil
}

// block runs one staircase with the masker at m.
func (u *Unmasking) block(ctx context.Context, s *Session, m speakers.Speaker, words []*stimuli.Sound, masker *stimuli.Sound) error {
	stairs, err := staircase.New(u.cfg.Staircase)
	if err != nil {
		return err
	}
	condition := fmt.Sprintf("masker %d", m.ID)

	for !stairs.Finished() {
		if _, err := s.WaitForFixation(ctx); err != nil {
			return err
		}
		level := stairs.Level()
		i := s.Rand.IntN(len(words))
		target := words[i].Clone()
		target.SetLevel(level)
		solution := Solution(i)

		length := max(target.Len(), masker.Len())
		if err := load(ctx, s, length,
			slotLoad{s.Central, target.Data},
			slotLoad{m, masker.Data},
		); err != nil {
			return err
		}

		s.Present(Stimulus{Kind: KindIdentify, Target: s.Central, Level: level, Solution: solution})
		start := time.Now()
		if err := s.Rig.Play(ctx); err != nil {
			return err
		}
		press, err := s.Buttons.WaitForPress(ctx)
		if err != nil {
			return err
		}
		rt := time.Since(start)

		correct := press.Button == solution
		if err := stairs.AddResponse(correct); err != nil {
			return err
		}
		if _, err := s.RecordTrial(ctx, storage.Trial{
			Condition:     condition,
			TargetSpeaker: s.Central.ID,
			MaskerSpeaker: m.ID,
			Level:         level,
			Response:      press.Button,
			Solution:      solution,
			ReactionTime:  rt,
			Correct:       correct,
		}); err != nil {
			return err
		}
		s.Logger.Debug("unmasking trial", "masker", m.ID, "level", level,
			"response", press.Button, "solution", solution, "correct", correct)
	}

	th := storage.Threshold{
		Condition:     condition,
		MaskerSpeaker: m.ID,
		Reversals:     stairs.Reversals(),
		Trials:        stairs.Trials(),
		Converged:     stairs.Converged(),
	}
	value, err := stairs.Threshold(0)
	switch {
	case errors.Is(err, staircase.ErrNoReversals):
		// Never reversed within MaxTrials; the last level is the best estimate.
		value = stairs.Level()
		s.Warn("staircase ended without reversals", "masker", m.ID, "trials", stairs.Trials())
	case err != nil:
		return err
	}
	th.Value = value
	if _, err := s.RecordThreshold(ctx, th); err != nil {
		return err
	}
	s.Logger.Info("threshold", "masker", m.ID, "value", value, "converged", th.Converged)
	return nil
}
