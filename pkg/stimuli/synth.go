package stimuli

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
)

// DefaultLevel is the level synthesized sounds are set to.
const DefaultLevel = 70.0

// Silence returns d of zeros.
func Silence(d time.Duration, sampleRate float64) *Sound {
	return New(make([]float64, Samples(d, sampleRate)), sampleRate)
}

// Tone returns a sine tone at DefaultLevel.
func Tone(freq float64, d time.Duration, sampleRate float64) *Sound {
	n := Samples(d, sampleRate)
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}
	s := New(data, sampleRate)
	s.SetLevel(DefaultLevel)
	return s
}

// WhiteNoise returns gaussian noise at DefaultLevel.
func WhiteNoise(d time.Duration, sampleRate float64, rng *rand.Rand) *Sound {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	data := make([]float64, Samples(d, sampleRate))
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	s := New(data, sampleRate)
	s.SetLevel(DefaultLevel)
	return s
}

// PinkNoise returns noise with a 1/f power spectrum at DefaultLevel. White
// noise is shaped in the frequency domain by 1/sqrt(f) and the DC bin is
// removed.
func PinkNoise(d time.Duration, sampleRate float64, rng *rand.Rand) *Sound {
	white := WhiteNoise(d, sampleRate, rng)
	n := white.Len()
	if n < 2 {
		return white
	}

	spec := fft.FFTReal(white.Data)
	spec[0] = 0
	for k := 1; k < n; k++ {
		bin := min(k, n-k)
		spec[k] *= complex(1/math.Sqrt(float64(bin)), 0)
	}
	shaped := fft.IFFT(spec)

	data := make([]float64, n)
	for i, c := range shaped {
		data[i] = real(c)
	}
	s := New(data, sampleRate)
	s.SetLevel(DefaultLevel)
	return s
}

// BandEnergy returns the spectral energy between lo and hi Hz.
func BandEnergy(s *Sound, lo, hi float64) float64 {
	n := s.Len()
	if n == 0 {
		return 0
	}
	spec := fft.FFTReal(s.Data)
	res := s.SampleRate / float64(n)
	var bins []float64
	for k := 1; k <= n/2; k++ {
		f := float64(k) * res
		if f >= lo && f < hi {
			m := cmplx.Abs(spec[k])
			bins = append(bins, m*m)
		}
	}
	return floats.Sum(bins)
}
