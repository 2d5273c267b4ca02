package stimuli

import "math"

// Resample returns a copy of s at rate using linear interpolation. The
// processors run at non-integer rates (48828.125 Hz), so rates are floats.
// Good enough for speech corpora recorded at a related rate.
func (s *Sound) Resample(rate float64) *Sound {
	if rate == s.SampleRate || len(s.Data) == 0 || rate <= 0 {
		out := s.Clone()
		if rate > 0 {
			out.SampleRate = rate
		}
		return out
	}

	ratio := s.SampleRate / rate
	n := int(math.Round(float64(len(s.Data)) / ratio))
	out := &Sound{Data: make([]float64, n), SampleRate: rate, Calibration: s.Calibration}
	last := len(s.Data) - 1
	for i := range out.Data {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out.Data[i] = s.Data[last]
			continue
		}
		frac := pos - float64(j)
		out.Data[i] = s.Data[j] + frac*(s.Data[j+1]-s.Data[j])
	}
	return out
}
