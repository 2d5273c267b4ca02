// Package stimuli synthesizes and loads the sounds played through the dome.
//
// Sounds are mono float64 buffers. Levels are dB SPL re 20 µPa, computed
// from the RMS of the buffer plus the sound's Calibration offset.
package stimuli

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// DefaultSampleRate is the RX8 sampling frequency.
const DefaultSampleRate = 48828.125

// ReferencePressure is 20 µPa.
const ReferencePressure = 20e-6

// ErrSampleRateMismatch is returned when combining sounds with different rates.
var ErrSampleRateMismatch = errors.New("stimuli: sample rates differ")

// Sound is a mono sample buffer.
type Sound struct {
	Data       []float64
	SampleRate float64

	// Calibration is added to the RMS level, in dB.
	Calibration float64
}

// New wraps data in a Sound.
func New(data []float64, sampleRate float64) *Sound {
	return &Sound{Data: data, SampleRate: sampleRate}
}

// Samples returns the number of samples for a duration at a rate.
func Samples(d time.Duration, sampleRate float64) int {
	return int(math.Round(d.Seconds() * sampleRate))
}

// Len returns the number of samples.
func (s *Sound) Len() int { return len(s.Data) }

// Duration returns the length in time.
func (s *Sound) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Data)) / s.SampleRate * float64(time.Second))
}

// Clone returns a deep copy.
func (s *Sound) Clone() *Sound {
	c := *s
	c.Data = append([]float64(nil), s.Data...)
	return &c
}

// RMS returns the root-mean-square amplitude.
func (s *Sound) RMS() float64 {
	if len(s.Data) == 0 {
		return 0
	}
	return floats.Norm(s.Data, 2) / math.Sqrt(float64(len(s.Data)))
}

// Level returns the sound level in dB SPL. Silence is -Inf.
func (s *Sound) Level() float64 {
	return 20*math.Log10(s.RMS()/ReferencePressure) + s.Calibration
}

// SetLevel scales the sound to the given level. Silent sounds are left alone.
func (s *Sound) SetLevel(db float64) {
	cur := s.Level()
	if math.IsInf(cur, -1) || math.IsNaN(cur) {
		return
	}
	floats.Scale(math.Pow(10, (db-cur)/20), s.Data)
}

// Ramp applies raised-cosine onset and offset ramps of duration d.
func (s *Sound) Ramp(d time.Duration) {
	n := Samples(d, s.SampleRate)
	if n*2 > len(s.Data) {
		n = len(s.Data) / 2
	}
	for i := 0; i < n; i++ {
		w := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(n)))
		s.Data[i] *= w
		s.Data[len(s.Data)-1-i] *= w
	}
}

// Resize truncates or zero-pads to n samples.
func (s *Sound) Resize(n int) {
	if n <= len(s.Data) {
		s.Data = s.Data[:n]
		return
	}
	s.Data = append(s.Data, make([]float64, n-len(s.Data))...)
}

// Mix sums sounds sample by sample. The result is as long as the longest input.
func Mix(sounds ...*Sound) (*Sound, error) {
	if len(sounds) == 0 {
		return nil, errors.New("stimuli: nothing to mix")
	}
	rate := sounds[0].SampleRate
	n := 0
	for _, s := range sounds {
		if s.SampleRate != rate {
			return nil, fmt.Errorf("%w: %g vs %g", ErrSampleRateMismatch, rate, s.SampleRate)
		}
		n = max(n, len(s.Data))
	}
	out := &Sound{Data: make([]float64, n), SampleRate: rate, Calibration: sounds[0].Calibration}
	for _, s := range sounds {
		floats.Add(out.Data[:len(s.Data)], s.Data)
	}
	return out, nil
}
