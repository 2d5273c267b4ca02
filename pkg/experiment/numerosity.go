package experiment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teslashibe/go-freefield/pkg/processor"
	"github.com/teslashibe/go-freefield/pkg/speakers"
	"github.com/teslashibe/go-freefield/pkg/stimuli"
	"github.com/teslashibe/go-freefield/pkg/storage"
	"github.com/teslashibe/go-freefield/pkg/trialseq"
)

// NumerosityConfig configures Numerosity Judgement.
type NumerosityConfig struct {
	Reps int
	// Counts are the numbers of simultaneous talkers to present.
	Counts []int
	// Duration each word is cut or padded to.
	Duration time.Duration
	Level    float64
	// Talkers holds one recording list per talker.
	Talkers [][]*stimuli.Sound
	// Clusters labels each talker with its timbre cluster. When set, the
	// talkers of a trial come from distinct clusters where possible.
	Clusters []int
}

// DefaultNumerosityConfig returns the lab defaults without a corpus.
func DefaultNumerosityConfig() NumerosityConfig {
	return NumerosityConfig{
		Reps:     2,
		Counts:   []int{2, 3, 4, 5},
		Duration: time.Second,
		Level:    stimuli.DefaultLevel,
	}
}

// Numerosity plays several talkers at once from distinct speakers of the
// plane and asks how many there were.
type Numerosity struct {
	cfg NumerosityConfig
}

// NewNumerosity validates the configuration.
func NewNumerosity(cfg NumerosityConfig) (*Numerosity, error) {
	if cfg.Reps <= 0 {
		return nil, fmt.Errorf("experiment: numerosity reps must be positive, got %d", cfg.Reps)
	}
	if len(cfg.Counts) == 0 {
		return nil, errors.New("experiment: numerosity needs talker counts")
	}
	if cfg.Duration <= 0 {
		return nil, errors.New("experiment: numerosity duration must be positive")
	}
	for _, n := range cfg.Counts {
		if n < 1 || n > processor.Slots {
			return nil, fmt.Errorf("experiment: talker count %d outside 1..%d", n, processor.Slots)
		}
		if n > len(cfg.Talkers) {
			return nil, fmt.Errorf("experiment: talker count %d exceeds corpus of %d talkers", n, len(cfg.Talkers))
		}
	}
	for i, t := range cfg.Talkers {
		if len(t) == 0 {
			return nil, fmt.Errorf("experiment: talker %d has no recordings", i)
		}
	}
	if len(cfg.Clusters) > 0 && len(cfg.Clusters) != len(cfg.Talkers) {
		return nil, fmt.Errorf("experiment: %d cluster labels for %d talkers", len(cfg.Clusters), len(cfg.Talkers))
	}
	return &Numerosity{cfg: cfg}, nil
}

func (n *Numerosity) Name() string { return NameNumerosity }

func (n *Numerosity) Run(ctx context.Context, s *Session) error {
	plane, err := s.Speakers.Plane(s.Plane)
	if err != nil {
		return fmt.Errorf("experiment: plane: %w", err)
	}
	if need := slices.Max(n.cfg.Counts); need > len(plane) {
		return fmt.Errorf("experiment: %d talkers but plane %s has %d speakers", need, s.Plane, len(plane))
	}
	seq, err := trialseq.New(n.cfg.Counts, n.cfg.Reps, defaultKind(len(n.cfg.Counts)), s.Rand)
	if err != nil {
		return err
	}
	s.Logger.Info("numerosity judgement", "counts", n.cfg.Counts, "trials", seq.Len())

	length := stimuli.Samples(n.cfg.Duration, s.Rig.Config().SampleRate)
	for !seq.Finished() {
		if _, err := s.WaitForFixation(ctx); err != nil {
			return err
		}
		count, err := seq.Next()
		if err != nil {
			return err
		}
		if err := n.trial(ctx, s, plane, count, length); err != nil {
			return err
		}
	}
	return nil
}

func (n *Numerosity) trial(ctx context.Context, s *Session, plane []speakers.Speaker, count, length int) error {
	spk := s.Rand.Perm(len(plane))[:count]
	who := n.pickTalkers(s, count)

	loads := make([]slotLoad, count)
	ids := make([]int, count)
	for i := range count {
		words := n.cfg.Talkers[who[i]]
		word := words[s.Rand.IntN(len(words))].Resample(s.Rig.Config().SampleRate)
		word.Resize(length)
		word.SetLevel(n.cfg.Level)
		loads[i] = slotLoad{plane[spk[i]], word.Data}
		ids[i] = plane[spk[i]].ID
	}
	if err := load(ctx, s, length, loads...); err != nil {
		return err
	}

	s.Present(Stimulus{Kind: KindCount, Level: n.cfg.Level, Solution: count})
	start := time.Now()
	if err := s.Rig.Play(ctx); err != nil {
		return err
	}
	press, err := s.Buttons.WaitForPress(ctx)
	if err != nil {
		return err
	}
	rt := time.Since(start)

	correct := press.Button == count
	if _, err := s.RecordTrial(ctx, storage.Trial{
		Condition:     fmt.Sprintf("%d talkers %v", count, ids),
		TargetSpeaker: ids[0],
		Level:         n.cfg.Level,
		Response:      press.Button,
		Solution:      count,
		ReactionTime:  rt,
		Correct:       correct,
	}); err != nil {
		return err
	}
	s.Logger.Debug("numerosity trial", "count", count, "response", press.Button, "correct", correct)
	return nil
}

func (n *Numerosity) pickTalkers(s *Session, count int) []int {
	if len(n.cfg.Clusters) == 0 {
		return s.Rand.Perm(len(n.cfg.Talkers))[:count]
	}
	return stimuli.PickSpread(n.cfg.Clusters, count, s.Rand)
}
