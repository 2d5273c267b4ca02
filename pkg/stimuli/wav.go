package stimuli

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

// ReadWAV decodes a WAV stream. Stereo input is averaged to mono.
func ReadWAV(r io.Reader) (*Sound, error) {
	stream, format, err := wav.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("stimuli: decode wav: %w", err)
	}
	defer stream.Close()

	scale := decodeScale(format.Precision)
	var data []float64
	buf := make([][2]float64, 512)
	for {
		n, ok := stream.Stream(buf)
		for _, frame := range buf[:n] {
			if format.NumChannels > 1 {
				data = append(data, scale*(frame[0]+frame[1])/2)
			} else {
				data = append(data, scale*frame[0])
			}
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("stimuli: decode wav: %w", err)
	}
	return New(data, float64(format.SampleRate)), nil
}

// decodeScale undoes the beep decoder's normalization of signed PCM, which
// divides by 2^bits-1 instead of the 2^(bits-1)-1 the encoder multiplies by.
func decodeScale(precision int) float64 {
	if precision < 2 {
		return 1
	}
	bits := float64(8 * precision)
	return (math.Exp2(bits) - 1) / (math.Exp2(bits-1) - 1)
}

// ReadWAVFile reads a WAV file.
func ReadWAVFile(path string) (*Sound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stimuli: %w", err)
	}
	defer f.Close()
	s, err := ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// WriteWAV encodes the sound as 16-bit mono. The sample rate is rounded to
// an integer, as the format requires.
func WriteWAV(w io.WriteSeeker, s *Sound) error {
	if s.SampleRate <= 0 {
		return errors.New("stimuli: sample rate must be positive")
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(int(math.Round(s.SampleRate))),
		NumChannels: 1,
		Precision:   2,
	}
	if err := wav.Encode(w, &sliceStreamer{data: s.Data}, format); err != nil {
		return fmt.Errorf("stimuli: encode wav: %w", err)
	}
	return nil
}

// WriteWAVFile writes the sound to path.
func WriteWAVFile(path string, s *Sound) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stimuli: %w", err)
	}
	if err := WriteWAV(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadDir reads every .wav file in dir, sorted by file name.
func LoadDir(dir string) ([]*Sound, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("stimuli: %w", err)
	}
	var out []*Sound
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		s, err := ReadWAVFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("stimuli: no wav files in %s", dir)
	}
	return out, nil
}

// sliceStreamer feeds a mono buffer to the beep encoder.
type sliceStreamer struct {
	data []float64
	pos  int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	n := 0
	for n < len(samples) && s.pos < len(s.data) {
		v := math.Max(-1, math.Min(1, s.data[s.pos]))
		samples[n][0], samples[n][1] = v, v
		n++
		s.pos++
	}
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }
