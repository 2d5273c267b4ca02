package processor

import (
	"context"
	"sync"
)

// Call records one operation on a MockProcessor.
type Call struct {
	Op    string
	Tag   string
	Value float64
	Len   int
}

// MockProcessor is an in-memory processor for tests and dry runs.
//
// After a Trigger the playback tag reads 1 for PlaybackPolls reads and 0
// afterwards. Scripted tags return their values in order and then repeat
// the last one.
type MockProcessor struct {
	mu sync.Mutex

	name          string
	tags          map[string]float64
	buffers       map[string][]float64
	scripts       map[string][]float64
	calls         []Call
	playbackLeft  int
	PlaybackPolls int

	// Err, when set, is returned by every operation.
	Err error
}

// NewMock creates a mock named name. Playback finishes after two polls.
func NewMock(name string) *MockProcessor {
	return &MockProcessor{
		name:          name,
		tags:          make(map[string]float64),
		buffers:       make(map[string][]float64),
		scripts:       make(map[string][]float64),
		PlaybackPolls: 2,
	}
}

// Name implements Processor.
func (m *MockProcessor) Name() string { return m.name }

// SetTag implements Processor.
func (m *MockProcessor) SetTag(ctx context.Context, tag string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "SetTag", Tag: tag, Value: value})
	if m.Err != nil {
		return wrap(m.name, "set "+tag, m.Err)
	}
	m.tags[tag] = value
	return nil
}

// WriteTag implements Processor.
func (m *MockProcessor) WriteTag(ctx context.Context, tag string, data []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "WriteTag", Tag: tag, Len: len(data)})
	if m.Err != nil {
		return wrap(m.name, "write "+tag, m.Err)
	}
	m.buffers[tag] = append([]float64(nil), data...)
	return nil
}

// GetTag implements Processor.
func (m *MockProcessor) GetTag(ctx context.Context, tag string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "GetTag", Tag: tag})
	if m.Err != nil {
		return 0, wrap(m.name, "get "+tag, m.Err)
	}
	if tag == TagPlayback {
		if m.playbackLeft > 0 {
			m.playbackLeft--
			return 1, nil
		}
		return 0, nil
	}
	if s := m.scripts[tag]; len(s) > 0 {
		v := s[0]
		if len(s) > 1 {
			m.scripts[tag] = s[1:]
		}
		return v, nil
	}
	return m.tags[tag], nil
}

// Trigger implements Processor.
func (m *MockProcessor) Trigger(ctx context.Context, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "Trigger", Value: float64(n)})
	if m.Err != nil {
		return wrap(m.name, "trigger", m.Err)
	}
	m.playbackLeft = m.PlaybackPolls
	return nil
}

// Halt implements Processor.
func (m *MockProcessor) Halt(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "Halt"})
	if m.Err != nil {
		return wrap(m.name, "halt", m.Err)
	}
	m.playbackLeft = 0
	return nil
}

// Script makes GetTag(tag) return values in order.
func (m *MockProcessor) Script(tag string, values ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[tag] = append([]float64(nil), values...)
}

// Tag returns the last scalar written to tag.
func (m *MockProcessor) Tag(tag string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.tags[tag]
	return v, ok
}

// Buffer returns the last buffer written to tag.
func (m *MockProcessor) Buffer(tag string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.buffers[tag]...)
}

// Calls returns a copy of the call log.
func (m *MockProcessor) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times op was called.
func (m *MockProcessor) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
