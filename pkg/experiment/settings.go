package experiment

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/teslashibe/go-freefield/internal/config"
	"github.com/teslashibe/go-freefield/pkg/gaze"
	"github.com/teslashibe/go-freefield/pkg/staircase"
	"github.com/teslashibe/go-freefield/pkg/stimuli"
)

// syntheticTalkers is the corpus size used by example sessions.
const syntheticTalkers = 8

// clusterSeed fixes the timbre clustering so a corpus always splits the same way.
const clusterSeed = 42

// Names lists the known paradigms.
func Names() []string {
	return []string{NameLocalization, NameUnmasking, NameNumerosity}
}

// FromLab builds a paradigm from lab settings. Talker corpora are read from
// the sound root, or synthesized when synthetic is set.
func FromLab(name string, lab config.Lab, synthetic bool, rng *rand.Rand) (Paradigm, error) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	corpus := func(dir string, words int, d time.Duration) ([][]*stimuli.Sound, error) {
		if synthetic {
			return SyntheticTalkers(syntheticTalkers, words, d, lab.SampleRate, rng), nil
		}
		return LoadTalkers(lab.SoundPath(dir), words)
	}

	switch name {
	case NameLocalization:
		cfg := DefaultLocalizationConfig()
		cfg.Reps = lab.Localization.Reps
		cfg.Duration = lab.Localization.Duration
		return NewLocalization(cfg), nil

	case NameUnmasking:
		talkers, err := corpus(lab.Unmasking.TalkerDir, WordsPerTalker, lab.Unmasking.Duration)
		if err != nil {
			return nil, fmt.Errorf("experiment: number words: %w", err)
		}
		cfg := DefaultUnmaskingConfig()
		cfg.Reps = lab.Unmasking.Reps
		cfg.Duration = lab.Unmasking.Duration
		cfg.Staircase = StaircaseFromLab(lab.Unmasking)
		cfg.Talkers = talkers
		return NewUnmasking(cfg)

	case NameNumerosity:
		talkers, err := corpus(lab.Numerosity.TalkerDir, 1, lab.Numerosity.Duration)
		if err != nil {
			return nil, fmt.Errorf("experiment: talkers: %w", err)
		}
		cfg := DefaultNumerosityConfig()
		cfg.Reps = lab.Numerosity.Reps
		cfg.Duration = lab.Numerosity.Duration
		cfg.Counts = lab.Numerosity.Talkers
		cfg.Talkers = talkers
		if k := lab.Numerosity.Clusters; k > 0 {
			labels, err := ClusterCorpus(talkers, k, rand.New(rand.NewPCG(clusterSeed, clusterSeed)))
			if err != nil {
				return nil, fmt.Errorf("experiment: talker clusters: %w", err)
			}
			cfg.Clusters = labels
		}
		return NewNumerosity(cfg)
	}
	return nil, fmt.Errorf("experiment: unknown paradigm %q (want one of %v)", name, Names())
}

// StaircaseFromLab converts the unmasking block of the lab file.
func StaircaseFromLab(u config.Unmasking) staircase.Config {
	sc := staircase.DefaultConfig()
	sc.StartLevel = u.StartLevel
	sc.StepSizes = append([]float64(nil), u.StepSizes...)
	sc.NReversals = u.Reversals
	sc.MaxTrials = u.MaxTrials
	return sc
}

// GateFromLab converts the gate block of the lab file.
func GateFromLab(g config.Gate) gaze.Config {
	cfg := gaze.DefaultConfig()
	cfg.Threshold = g.Threshold
	if g.PollInterval > 0 {
		cfg.PollInterval = g.PollInterval
	}
	cfg.Timeout = g.Timeout
	return cfg
}
