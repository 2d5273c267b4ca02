package main

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-freefield/internal/config"
	"github.com/teslashibe/go-freefield/internal/log"
	"github.com/teslashibe/go-freefield/pkg/experiment"
	"github.com/teslashibe/go-freefield/pkg/speakers"
	"github.com/teslashibe/go-freefield/pkg/stimuli"
	"github.com/teslashibe/go-freefield/pkg/storage"
)

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    options
		wantErr bool
	}{
		{"valid", options{paradigm: "la", subject: "07", cohort: "p", sex: "f", blocks: 1}, false},
		{"example without subject", options{paradigm: "su", cohort: "t", example: true, blocks: 2}, false},
		{"unknown paradigm", options{paradigm: "xx", subject: "07", cohort: "p", blocks: 1}, true},
		{"missing subject", options{paradigm: "nm", cohort: "p", blocks: 1}, true},
		{"bad sex", options{paradigm: "la", subject: "07", cohort: "p", sex: "x", blocks: 1}, true},
		{"bad cohort", options{paradigm: "la", subject: "07", cohort: "q", blocks: 1}, true},
		{"no blocks", options{paradigm: "la", subject: "07", cohort: "p"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExampleTable(t *testing.T) {
	tab, err := exampleTable([]string{"RX81", "RX82"})
	if err != nil {
		t.Fatalf("exampleTable: %v", err)
	}
	c, err := tab.Central()
	if err != nil {
		t.Fatalf("Central: %v", err)
	}
	if c.AnalogProc != "RX81" {
		t.Errorf("central on %s, want RX81", c.AnalogProc)
	}
	horizontal, err := tab.Plane(speakers.Horizontal)
	if err != nil {
		t.Fatalf("Plane: %v", err)
	}
	if n := len(horizontal); n != 7 {
		t.Errorf("horizontal plane has %d speakers, want 7", n)
	}
	if _, err := exampleTable(nil); err == nil {
		t.Error("expected error without processors")
	}
}

func TestSimulatedDevices(t *testing.T) {
	lab := config.DefaultLab()
	lab.SpeakerFile = t.TempDir() + "/missing.txt"
	dev, err := simulatedDevices(lab, nil)
	if err != nil {
		t.Fatalf("simulatedDevices: %v", err)
	}
	if got := dev.rig.Names(); len(got) != 2 {
		t.Errorf("rig processors = %v", got)
	}
	if dev.tracker == nil || dev.buttons == nil || dev.speakers == nil {
		t.Error("simulated devices incomplete")
	}
}

func TestLoadCue_ResamplesToRig(t *testing.T) {
	lab := config.DefaultLab()
	lab.SoundRoot = t.TempDir()
	path := lab.SoundPath(lab.Gate.CueFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	tone := stimuli.Tone(1000, 100*time.Millisecond, 24414)
	if err := stimuli.WriteWAVFile(path, tone); err != nil {
		t.Fatal(err)
	}

	cue, err := loadCue(lab, false, log.Discard())
	if err != nil {
		t.Fatalf("loadCue: %v", err)
	}
	if cue.SampleRate != lab.SampleRate {
		t.Errorf("cue rate = %v, want %v", cue.SampleRate, lab.SampleRate)
	}
	if d := cue.Duration() - tone.Duration(); d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("cue lasts %v, recorded %v", cue.Duration(), tone.Duration())
	}
}

func TestLoadCue_ExampleFallback(t *testing.T) {
	lab := config.DefaultLab()
	lab.SoundRoot = t.TempDir()

	cue, err := loadCue(lab, true, log.Discard())
	if err != nil {
		t.Fatalf("loadCue: %v", err)
	}
	if cue.Len() == 0 {
		t.Error("empty cue")
	}
	if _, err := loadCue(lab, false, log.Discard()); err == nil {
		t.Error("missing cue must fail outside example mode")
	}
}

func TestRunBlocks(t *testing.T) {
	lab := config.DefaultLab()
	lab.SpeakerFile = filepath.Join(t.TempDir(), "missing.txt")
	dev, err := simulatedDevices(lab, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("simulatedDevices: %v", err)
	}
	subject := dev.buttons.(*experiment.SimulatedSubject)
	subject.Delay = 0

	store, err := storage.Open(filepath.Join(t.TempDir(), "freefield.db"), log.Discard())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	gate := experiment.GateFromLab(lab.Gate)
	gate.PollInterval = time.Millisecond
	gate.Threshold = 20
	gate.Logger = log.Discard()
	deps := experiment.Deps{
		Rig:      dev.rig,
		Buttons:  dev.buttons,
		Tracker:  dev.tracker,
		Store:    store,
		Speakers: dev.speakers,
		Gate:     gate,
		Logger:   log.Discard(),
		Rand:     rand.New(rand.NewPCG(3, 4)),
	}
	sopts := experiment.Options{
		Subject:  storage.Subject{Name: "sub07"},
		Paradigm: experiment.NameLocalization,
		Plane:    speakers.Vertical,
	}
	p := experiment.NewLocalization(experiment.LocalizationConfig{Reps: 1, Duration: 20 * time.Millisecond})

	sessions, err := runBlocks(context.Background(), deps, sopts, p, 3, true, log.Discard())
	if err != nil {
		t.Fatalf("runBlocks: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("ran %d blocks, want 3", len(sessions))
	}
	stored, err := store.ListSessions(context.Background(), "sub07")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("stored %d sessions, want 3", len(stored))
	}
	for i, s := range sessions {
		if s.Trials() != 7 {
			t.Errorf("block %d recorded %d trials, want 7", i+1, s.Trials())
		}
	}
}
