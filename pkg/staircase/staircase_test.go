package staircase

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func feed(t *testing.T, s *Staircase, responses ...bool) {
	t.Helper()
	for i, r := range responses {
		if err := s.AddResponse(r); err != nil {
			t.Fatalf("response %d: %v", i, err)
		}
	}
}

func TestStaircase_OneUpOneDown(t *testing.T) {
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	steps := []struct {
		correct   bool
		wantLevel float64
		wantRev   int
	}{
		{true, 66, 0},
		{true, 62, 0},
		{false, 63, 1}, // reversal at 62, step shrinks to 1
		{false, 64, 1},
		{true, 63, 2}, // reversal at 64
	}
	for i, st := range steps {
		if s.Finished() {
			t.Fatalf("finished early at step %d", i)
		}
		if err := s.AddResponse(st.correct); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if !floatEquals(s.Level(), st.wantLevel) {
			t.Errorf("step %d: level = %v, want %v", i, s.Level(), st.wantLevel)
		}
		if s.Reversals() != st.wantRev {
			t.Errorf("step %d: reversals = %d, want %d", i, s.Reversals(), st.wantRev)
		}
	}

	if !s.Finished() || !s.Converged() {
		t.Fatal("expected finished and converged")
	}
	th, err := s.Threshold(0)
	if err != nil {
		t.Fatalf("Threshold: %v", err)
	}
	if !floatEquals(th, 63) {
		t.Errorf("threshold = %v, want 63", th)
	}
	if err := s.AddResponse(true); !errors.Is(err, ErrFinished) {
		t.Errorf("expected ErrFinished, got %v", err)
	}
}

func TestStaircase_OneUpTwoDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartLevel = 50
	cfg.StepSizes = []float64{8, 4, 2}
	cfg.NReversals = 4
	cfg.NDown = 2

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	feed(t, s, true, false, true, true, false, true, false, true, true)

	if !s.Finished() {
		t.Fatal("expected finished")
	}
	if s.Trials() != 9 {
		t.Errorf("trials = %d, want 9", s.Trials())
	}
	want := []float64{42, 46, 44, 48}
	got := s.ReversalLevels()
	if len(got) != len(want) {
		t.Fatalf("reversal levels = %v, want %v", got, want)
	}
	for i := range want {
		if !floatEquals(got[i], want[i]) {
			t.Errorf("reversal %d = %v, want %v", i, got[i], want[i])
		}
	}

	tests := []struct {
		n    int
		want float64
	}{
		{0, 45},
		{2, 46},
		{3, 46},
		{1, 48},
		{10, 45},
	}
	for _, tt := range tests {
		th, err := s.Threshold(tt.n)
		if err != nil {
			t.Fatalf("Threshold(%d): %v", tt.n, err)
		}
		if !floatEquals(th, tt.want) {
			t.Errorf("Threshold(%d) = %v, want %v", tt.n, th, tt.want)
		}
	}
}

func TestStaircase_Deterministic(t *testing.T) {
	seq := []bool{true, true, false, true, false, false, true, true, false, true, false, true}
	cfg := DefaultConfig()
	cfg.NReversals = 6

	run := func() State {
		s, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		for _, r := range seq {
			if s.Finished() {
				break
			}
			feed(t, s, r)
		}
		return s.State()
	}

	a, b := run(), run()
	if a.ReversalCount != b.ReversalCount || !floatEquals(a.Level, b.Level) {
		t.Errorf("runs differ: %+v vs %+v", a, b)
	}
	if len(a.History) != len(b.History) {
		t.Errorf("history lengths differ: %d vs %d", len(a.History), len(b.History))
	}
}

func TestStaircase_MaxTrials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartLevel = 20
	cfg.MinLevel = 0
	cfg.MaxLevel = 100
	cfg.MaxTrials = 10

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	n := 0
	for !s.Finished() {
		feed(t, s, true)
		n++
		if n > 100 {
			t.Fatal("staircase did not terminate")
		}
	}
	if n != 10 {
		t.Errorf("trials = %d, want 10", n)
	}
	if s.Converged() {
		t.Error("a staircase without reversals must not report convergence")
	}
	if !floatEquals(s.Level(), 0) {
		t.Errorf("level = %v, want clipped to 0", s.Level())
	}
	if _, err := s.Threshold(0); !errors.Is(err, ErrNoReversals) {
		t.Errorf("expected ErrNoReversals, got %v", err)
	}
}

func TestStaircase_HistoryRecordsPresentedLevel(t *testing.T) {
	s, _ := New(DefaultConfig())
	feed(t, s, true, false)

	h := s.History()
	if len(h) != 2 {
		t.Fatalf("history length = %d", len(h))
	}
	if !floatEquals(h[0].Level, 70) || !h[0].Correct {
		t.Errorf("first response = %+v", h[0])
	}
	if !floatEquals(h[1].Level, 66) || h[1].Correct {
		t.Errorf("second response = %+v", h[1])
	}
}

func TestStaircase_StepUpFactor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepSizes = []float64{2}
	cfg.StepUpFactor = 1.5
	s, _ := New(cfg)

	feed(t, s, false)
	if !floatEquals(s.Level(), 73) {
		t.Errorf("level = %v, want 73", s.Level())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"no steps", func(c *Config) { c.StepSizes = nil }, false},
		{"negative step", func(c *Config) { c.StepSizes = []float64{4, -1} }, false},
		{"zero reversals", func(c *Config) { c.NReversals = 0 }, false},
		{"zero down", func(c *Config) { c.NDown = 0 }, false},
		{"inverted bounds", func(c *Config) { c.MinLevel, c.MaxLevel = 10, 5 }, false},
		{"start out of bounds", func(c *Config) { c.MinLevel, c.MaxLevel = 0, 50 }, false},
		{"negative max trials", func(c *Config) { c.MaxTrials = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRun_SimulatedObserver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartLevel = 60
	cfg.StepSizes = []float64{8, 4, 2}
	cfg.NReversals = 8
	cfg.MaxTrials = 500
	s, _ := New(cfg)

	rng := rand.New(rand.NewPCG(1, 2))
	th, err := Run(s, func(level float64) bool {
		return SimulateResponse(level, 40, 0.5, rng)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !s.Converged() {
		t.Fatal("simulated observer did not converge")
	}
	if math.Abs(th-40) > 10 {
		t.Errorf("threshold %v too far from simulated 40", th)
	}
}

func TestSimulateResponse_Extremes(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 100; i++ {
		if !SimulateResponse(100, 40, 1, rng) {
			t.Fatal("far above threshold should always be correct")
		}
		if SimulateResponse(-20, 40, 1, rng) {
			t.Fatal("far below threshold should never be correct")
		}
	}
}
