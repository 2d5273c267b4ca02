package experiment

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/teslashibe/go-freefield/pkg/stimuli"
)

// WordsPerTalker is the number of recordings per talker in the number-word
// corpus (the words one to five).
const WordsPerTalker = 5

// solutionConverter maps the alphabetical position of a number-word file
// (five, four, one, three, two) to the number spoken.
var solutionConverter = [WordsPerTalker]int{5, 4, 1, 3, 2}

// Solution returns the number spoken in the i-th (0-based) word file.
func Solution(i int) int { return solutionConverter[i] }

// GroupTalkers splits a sorted recording list into talkers of size words.
// A trailing incomplete group is dropped.
func GroupTalkers(sounds []*stimuli.Sound, size int) ([][]*stimuli.Sound, error) {
	if size <= 0 {
		return nil, fmt.Errorf("experiment: group size %d", size)
	}
	n := len(sounds) / size
	if n == 0 {
		return nil, fmt.Errorf("experiment: %d recordings, need at least %d", len(sounds), size)
	}
	out := make([][]*stimuli.Sound, n)
	for i := range out {
		out[i] = sounds[i*size : (i+1)*size]
	}
	return out, nil
}

// LoadTalkers reads a corpus directory and groups it by size.
func LoadTalkers(dir string, size int) ([][]*stimuli.Sound, error) {
	sounds, err := stimuli.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return GroupTalkers(sounds, size)
}

// atRate returns copies of sounds at rate.
func atRate(sounds []*stimuli.Sound, rate float64) []*stimuli.Sound {
	out := make([]*stimuli.Sound, len(sounds))
	for i, s := range sounds {
		out[i] = s.Resample(rate)
	}
	return out
}

// SyntheticTalkers builds a stand-in corpus of harmonic tone complexes for
// example sessions run without recordings. Each talker has its own
// fundamental, each word its own duration.
func SyntheticTalkers(talkers, words int, d time.Duration, sampleRate float64, rng *rand.Rand) [][]*stimuli.Sound {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	out := make([][]*stimuli.Sound, talkers)
	for t := range out {
		f0 := 100 + 15*float64(t)
		out[t] = make([]*stimuli.Sound, words)
		for w := range out[t] {
			wd := d * time.Duration(6+w) / 10
			word := stimuli.Tone(f0, wd, sampleRate)
			for h := 2; h <= 4; h++ {
				over := stimuli.Tone(f0*float64(h)*(1+0.05*float64(w)), wd, sampleRate)
				over.SetLevel(stimuli.DefaultLevel - 6*float64(h))
				if mixed, err := stimuli.Mix(word, over); err == nil {
					word = mixed
				}
			}
			word.Ramp(10 * time.Millisecond)
			word.SetLevel(stimuli.DefaultLevel + rng.NormFloat64())
			out[t][w] = word
		}
	}
	return out
}

// ClusterCorpus labels every talker with one of k timbre clusters computed
// from the mean spectral features of its recordings.
func ClusterCorpus(talkers [][]*stimuli.Sound, k int, rng *rand.Rand) ([]int, error) {
	feats := make([]stimuli.Features, len(talkers))
	for i, t := range talkers {
		feats[i] = stimuli.MeanFeatures(t)
	}
	return stimuli.ClusterTalkers(feats, k, rng)
}
