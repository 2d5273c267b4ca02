package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/teslashibe/go-freefield/pkg/gaze"
	"github.com/teslashibe/go-freefield/pkg/headpose"
	"github.com/teslashibe/go-freefield/pkg/processor"
	"github.com/teslashibe/go-freefield/pkg/speakers"
	"github.com/teslashibe/go-freefield/pkg/storage"
)

// Deps are the devices and services a session runs on.
type Deps struct {
	Rig      *processor.Rig
	Buttons  Responder
	Tracker  headpose.Tracker
	Store    *storage.Store
	Speakers *speakers.Table

	// Cue is played on the central speaker when the subject looks away.
	Cue []float64

	Gate     gaze.Config
	Logger   *slog.Logger
	Rand     *rand.Rand
	Observer Observer
}

// Options identify the session.
type Options struct {
	Subject      storage.Subject
	Paradigm     string
	Experimenter string
	Plane        speakers.Plane
	Example      bool
}

// Session is one paradigm run for one subject.
type Session struct {
	Record  storage.Session
	Subject storage.Subject

	Rig         *processor.Rig
	Buttons     Responder
	Tracker     headpose.Tracker
	Gate        *gaze.Gate
	Store       *storage.Store
	Speakers    *speakers.Table
	Plane       speakers.Plane
	Calibration headpose.Calibration
	Central     speakers.Speaker
	Logger      *slog.Logger
	Rand        *rand.Rand

	observer Observer
	trialN   int
}

// NewSession registers the subject (or loads it when it exists), opens a
// session record and wires the gaze gate to the central speaker.
func NewSession(ctx context.Context, d Deps, opts Options) (*Session, error) {
	switch {
	case d.Rig == nil:
		return nil, errors.New("experiment: rig required")
	case d.Buttons == nil:
		return nil, errors.New("experiment: buttons required")
	case d.Tracker == nil:
		return nil, errors.New("experiment: tracker required")
	case d.Store == nil:
		return nil, errors.New("experiment: store required")
	case d.Speakers == nil:
		return nil, errors.New("experiment: speaker table required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if opts.Plane == "" {
		opts.Plane = speakers.Vertical
	}

	central, err := d.Speakers.Central()
	if err != nil {
		return nil, fmt.Errorf("experiment: %w", err)
	}

	sub, created, err := d.Store.EnsureSubject(ctx, opts.Subject)
	if err != nil {
		return nil, fmt.Errorf("experiment: subject: %w", err)
	}
	if !created {
		d.Logger.Info("subject exists, reusing stored record", "subject", sub.Name)
	}

	rec, err := d.Store.CreateSession(ctx, storage.Session{
		Subject:      sub.Name,
		Paradigm:     opts.Paradigm,
		Experimenter: opts.Experimenter,
		Plane:        string(opts.Plane),
		Example:      opts.Example,
	})
	if err != nil {
		return nil, fmt.Errorf("experiment: %w", err)
	}

	s := &Session{
		Record:   rec,
		Subject:  sub,
		Rig:      d.Rig,
		Buttons:  d.Buttons,
		Tracker:  d.Tracker,
		Store:    d.Store,
		Speakers: d.Speakers,
		Plane:    opts.Plane,
		Central:  central,
		Logger:   d.Logger.With("session", rec.ID.String(), "paradigm", opts.Paradigm),
		Rand:     d.Rand,
		observer: d.Observer,
	}

	gcfg := d.Gate
	if gcfg.Logger == nil || gcfg.Logger == slog.Default() {
		gcfg.Logger = s.Logger
	}
	cue := d.Cue
	s.Gate = gaze.New(gcfg, d.Tracker, gaze.CueFunc(func(ctx context.Context) error {
		if len(cue) == 0 {
			return nil
		}
		return s.Rig.PlayOn(ctx, s.Central, cue)
	}))
	s.Gate.SetObserver(func(e gaze.Event) {
		ev := e
		s.emit(Event{Type: EventGate, Gate: &ev})
	})

	s.emit(Event{Type: EventSessionStarted, Message: sub.Name})
	return s, nil
}

// SetObserver replaces the event observer.
func (s *Session) SetObserver(o Observer) { s.observer = o }

func (s *Session) emit(e Event) {
	if s.observer == nil {
		return
	}
	e.SessionID = s.Record.ID
	e.Paradigm = s.Record.Paradigm
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.observer(e)
}

// Warn logs and publishes a warning.
func (s *Session) Warn(msg string, args ...any) {
	s.Logger.Warn(msg, args...)
	s.emit(Event{Type: EventWarning, Message: msg})
}

// WaitForFixation blocks until the subject looks at the central speaker.
func (s *Session) WaitForFixation(ctx context.Context) (gaze.Result, error) {
	return s.Gate.Wait(ctx, s.Calibration)
}

// Present tells a stimulus-aware responder what was just played.
func (s *Session) Present(st Stimulus) {
	if sa, ok := s.Buttons.(StimulusAware); ok {
		sa.Present(st)
	}
}

// CorrectedPose reads the head pose with the calibration applied.
func (s *Session) CorrectedPose(ctx context.Context) (headpose.Pose, error) {
	p, err := s.Tracker.Pose(ctx)
	if err != nil {
		return headpose.Pose{}, err
	}
	return s.Calibration.Apply(p), nil
}

// RecordTrial numbers the trial, stores it and publishes it.
func (s *Session) RecordTrial(ctx context.Context, t storage.Trial) (storage.Trial, error) {
	t.SessionID = s.Record.ID
	t.N = s.trialN
	rec, err := s.Store.RecordTrial(ctx, t)
	if err != nil {
		return storage.Trial{}, err
	}
	s.trialN++
	s.emit(Event{Type: EventTrial, Trial: &rec})
	return rec, nil
}

// RecordThreshold stores and publishes a staircase result.
func (s *Session) RecordThreshold(ctx context.Context, th storage.Threshold) (storage.Threshold, error) {
	th.SessionID = s.Record.ID
	rec, err := s.Store.RecordThreshold(ctx, th)
	if err != nil {
		return storage.Threshold{}, err
	}
	s.emit(Event{Type: EventThreshold, Threshold: &rec})
	return rec, nil
}

// Trials returns the number of trials recorded so far.
func (s *Session) Trials() int { return s.trialN }

// Run calibrates (unless skip is set), runs the paradigm and closes the
// session record. The record is closed even when the paradigm fails.
func (s *Session) Run(ctx context.Context, p Paradigm, calibrate bool) error {
	if calibrate {
		if err := s.Calibrate(ctx); err != nil {
			return err
		}
	}
	s.Logger.Info("paradigm starting", "subject", s.Subject.Name, "plane", s.Plane)
	runErr := p.Run(ctx, s)

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Store.FinishSession(finishCtx, s.Record.ID); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := s.Rig.Halt(finishCtx); err != nil {
		s.Logger.Warn("halt failed", "error", err)
	}
	msg := "completed"
	if runErr != nil {
		msg = runErr.Error()
	}
	s.emit(Event{Type: EventSessionFinished, Message: msg})
	s.Logger.Info("paradigm finished", "trials", s.trialN, "error", runErr)
	return runErr
}
