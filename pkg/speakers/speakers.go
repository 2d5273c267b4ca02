// Package speakers loads the dome loudspeaker table and selects speakers
// by id or plane.
package speakers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CentralID is the speaker straight ahead at 0° azimuth and elevation.
const CentralID = 23

// ErrNotFound is returned when a requested speaker id is not in the table.
var ErrNotFound = errors.New("speakers: speaker not found")

// Plane selects a speaker arc.
type Plane string

const (
	Vertical   Plane = "v"
	Horizontal Plane = "h"
)

// ParsePlane accepts "v"/"vertical" and "h"/"horizontal".
func ParsePlane(s string) (Plane, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v", "vertical":
		return Vertical, nil
	case "h", "horizontal":
		return Horizontal, nil
	}
	return "", fmt.Errorf("speakers: unknown plane %q, must be v or h", s)
}

// PlaneIDs returns the speaker ids of a plane, ordered along the arc.
func PlaneIDs(p Plane) []int {
	if p == Horizontal {
		return []int{2, 8, 15, 23, 31, 38, 44}
	}
	return []int{20, 21, 22, 23, 24, 25, 26}
}

// Speaker is one row of the table.
type Speaker struct {
	ID             int     `json:"id"`
	AnalogChannel  int     `json:"analog_channel"`
	AnalogProc     string  `json:"analog_proc"`
	Azimuth        float64 `json:"azimuth"`
	Elevation      float64 `json:"elevation"`
	DigitalChannel int     `json:"digital_channel"`
	DigitalProc    string  `json:"digital_proc"`
}

// String formats the speaker for logs.
func (s Speaker) String() string {
	return fmt.Sprintf("speaker %d (%s ch%d, az %.1f el %.1f)",
		s.ID, s.AnalogProc, s.AnalogChannel, s.Azimuth, s.Elevation)
}

// Table is an indexed speaker table.
type Table struct {
	speakers []Speaker
	byID     map[int]int
}

var header = []string{"index", "analog_channel", "analog_proc", "azimuth", "elevation", "digital_channel", "digital_proc"}

// Load parses a whitespace separated table with a header row. Blank lines
// and lines starting with '#' are skipped.
func Load(r io.Reader) (*Table, error) {
	t := &Table{byID: make(map[int]int)}
	sc := bufio.NewScanner(r)
	line := 0
	sawHeader := false
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if !sawHeader {
			if err := checkHeader(fields); err != nil {
				return nil, fmt.Errorf("speakers: line %d: %w", line, err)
			}
			sawHeader = true
			continue
		}
		s, err := parseRow(fields)
		if err != nil {
			return nil, fmt.Errorf("speakers: line %d: %w", line, err)
		}
		if _, dup := t.byID[s.ID]; dup {
			return nil, fmt.Errorf("speakers: line %d: duplicate id %d", line, s.ID)
		}
		t.byID[s.ID] = len(t.speakers)
		t.speakers = append(t.speakers, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("speakers: read: %w", err)
	}
	if !sawHeader {
		return nil, errors.New("speakers: empty table")
	}
	return t, nil
}

// LoadFile opens and parses a speaker table file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("speakers: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func checkHeader(fields []string) error {
	if len(fields) != len(header) {
		return fmt.Errorf("header has %d columns, want %d", len(fields), len(header))
	}
	for i, f := range fields {
		if !strings.EqualFold(f, header[i]) {
			return fmt.Errorf("header column %d is %q, want %q", i+1, f, header[i])
		}
	}
	return nil
}

func parseRow(f []string) (Speaker, error) {
	if len(f) != len(header) {
		return Speaker{}, fmt.Errorf("row has %d columns, want %d", len(f), len(header))
	}
	var s Speaker
	var err error
	if s.ID, err = strconv.Atoi(f[0]); err != nil {
		return s, fmt.Errorf("index: %w", err)
	}
	if s.AnalogChannel, err = strconv.Atoi(f[1]); err != nil {
		return s, fmt.Errorf("analog_channel: %w", err)
	}
	s.AnalogProc = f[2]
	if s.Azimuth, err = strconv.ParseFloat(f[3], 64); err != nil {
		return s, fmt.Errorf("azimuth: %w", err)
	}
	if s.Elevation, err = strconv.ParseFloat(f[4], 64); err != nil {
		return s, fmt.Errorf("elevation: %w", err)
	}
	if s.DigitalChannel, err = strconv.Atoi(f[5]); err != nil {
		return s, fmt.Errorf("digital_channel: %w", err)
	}
	s.DigitalProc = f[6]
	return s, nil
}

// Len returns the number of speakers.
func (t *Table) Len() int { return len(t.speakers) }

// All returns every speaker in file order.
func (t *Table) All() []Speaker {
	return append([]Speaker(nil), t.speakers...)
}

// Get returns one speaker.
func (t *Table) Get(id int) (Speaker, error) {
	i, ok := t.byID[id]
	if !ok {
		return Speaker{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return t.speakers[i], nil
}

// Pick returns speakers in the order of ids.
func (t *Table) Pick(ids ...int) ([]Speaker, error) {
	out := make([]Speaker, 0, len(ids))
	for _, id := range ids {
		s, err := t.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Plane returns the speakers of an arc.
func (t *Table) Plane(p Plane) ([]Speaker, error) {
	return t.Pick(PlaneIDs(p)...)
}

// Central returns the speaker straight ahead.
func (t *Table) Central() (Speaker, error) {
	return t.Get(CentralID)
}

// Without returns speakers with the given id removed.
func Without(list []Speaker, id int) []Speaker {
	out := make([]Speaker, 0, len(list))
	for _, s := range list {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
