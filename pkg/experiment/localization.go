package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/teslashibe/go-freefield/pkg/headpose"
	"github.com/teslashibe/go-freefield/pkg/processor"
	"github.com/teslashibe/go-freefield/pkg/speakers"
	"github.com/teslashibe/go-freefield/pkg/stimuli"
	"github.com/teslashibe/go-freefield/pkg/storage"
	"github.com/teslashibe/go-freefield/pkg/trialseq"
)

// LocalizationConfig configures Localization Accuracy.
type LocalizationConfig struct {
	// Reps is how often each speaker of the plane is a target.
	Reps int
	// Duration of the pink noise burst.
	Duration time.Duration
	// Level of the burst in dB SPL.
	Level float64
	// PoseAttempts bounds pose reads after the pointing press.
	PoseAttempts int
	PoseInterval time.Duration
}

// DefaultLocalizationConfig returns the lab defaults.
func DefaultLocalizationConfig() LocalizationConfig {
	return LocalizationConfig{
		Reps:         3,
		Duration:     time.Second,
		Level:        stimuli.DefaultLevel,
		PoseAttempts: 10,
		PoseInterval: 50 * time.Millisecond,
	}
}

// Localization asks the subject to point their head at noise bursts from the
// speakers of one plane. The error is the absolute difference between the
// target direction and the calibrated head pose.
type Localization struct {
	cfg LocalizationConfig
}

// NewLocalization creates the paradigm. Zero fields take defaults.
func NewLocalization(cfg LocalizationConfig) *Localization {
	def := DefaultLocalizationConfig()
	if cfg.Reps <= 0 {
		cfg.Reps = def.Reps
	}
	if cfg.Duration <= 0 {
		cfg.Duration = def.Duration
	}
	if cfg.Level == 0 {
		cfg.Level = def.Level
	}
	if cfg.PoseAttempts <= 0 {
		cfg.PoseAttempts = def.PoseAttempts
	}
	if cfg.PoseInterval <= 0 {
		cfg.PoseInterval = def.PoseInterval
	}
	return &Localization{cfg: cfg}
}

func (l *Localization) Name() string { return NameLocalization }

func (l *Localization) Run(ctx context.Context, s *Session) error {
	targets, err := s.Speakers.Plane(s.Plane)
	if err != nil {
		return fmt.Errorf("experiment: plane: %w", err)
	}
	if len(targets) == 0 {
		return fmt.Errorf("experiment: no speakers in plane %s", s.Plane)
	}
	seq, err := trialseq.New(targets, l.cfg.Reps, defaultKind(len(targets)), s.Rand)
	if err != nil {
		return err
	}

	rate := s.Rig.Config().SampleRate
	noise := stimuli.PinkNoise(l.cfg.Duration, rate, s.Rand)
	noise.Ramp(5 * time.Millisecond)
	noise.SetLevel(l.cfg.Level)

	s.Logger.Info("localization accuracy", "plane", s.Plane, "targets", len(targets), "trials", seq.Len())
	for !seq.Finished() {
		if _, err := s.WaitForFixation(ctx); err != nil {
			return err
		}
		target, err := seq.Next()
		if err != nil {
			return err
		}
		if err := l.trial(ctx, s, seq.ThisN(), target, targets, noise); err != nil {
			return err
		}
	}
	return nil
}

func (l *Localization) trial(ctx context.Context, s *Session, n int, target speakers.Speaker, plane []speakers.Speaker, noise *stimuli.Sound) error {
	if err := load(ctx, s, noise.Len(), slotLoad{target, noise.Data}); err != nil {
		return err
	}

	s.Present(Stimulus{Kind: KindPointing, Target: target, Level: l.cfg.Level})
	start := time.Now()
	if err := s.Rig.Play(ctx); err != nil {
		return err
	}
	press, err := s.Buttons.WaitForPress(ctx)
	if err != nil {
		return err
	}
	rt := time.Since(start)

	pose, err := l.readPose(ctx, s)
	switch {
	case errors.Is(err, headpose.ErrNoPose):
		s.Warn("no head pose after response, trial not recorded", "trial", n, "target", target.ID)
	case err != nil:
		return err
	default:
		// Correct when the head ends up closer to the target than to any
		// other speaker of the plane.
		hit := nearest(plane, pose)
		t := storage.Trial{
			Condition:     fmt.Sprintf("speaker %d", target.ID),
			TargetSpeaker: target.ID,
			Level:         l.cfg.Level,
			ReactionTime:  rt,
			Response:      hit.ID,
			Solution:      target.ID,
			Correct:       hit.ID == target.ID,
			PoseAz:        pose.Azimuth,
			PoseEl:        pose.Elevation,
			ErrorAz:       math.Abs(target.Azimuth - pose.Azimuth),
			ErrorEl:       math.Abs(target.Elevation - pose.Elevation),
		}
		if _, err := s.RecordTrial(ctx, t); err != nil {
			return err
		}
		s.Logger.Info("trial", "n", n, "target", target.ID, "nearest", hit.ID, "button", press.Button,
			"error_az", t.ErrorAz, "error_el", t.ErrorEl, "rt", rt)
	}

	// The subject presses again once back at the centre.
	s.Present(Stimulus{Kind: KindReturn, Target: s.Central})
	_, err = s.Buttons.WaitForPress(ctx)
	return err
}

func (l *Localization) readPose(ctx context.Context, s *Session) (headpose.Pose, error) {
	var lastErr error
	for i := 0; i < l.cfg.PoseAttempts; i++ {
		p, err := s.CorrectedPose(ctx)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, headpose.ErrNoPose) {
			return headpose.Pose{}, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return headpose.Pose{}, ctx.Err()
		case <-time.After(l.cfg.PoseInterval):
		}
	}
	return headpose.Pose{}, lastErr
}

// nearest returns the speaker of plane closest to the pose direction.
func nearest(plane []speakers.Speaker, p headpose.Pose) speakers.Speaker {
	var best speakers.Speaker
	bestD := math.Inf(1)
	for _, spk := range plane {
		d := math.Hypot(spk.Azimuth-p.Azimuth, spk.Elevation-p.Elevation)
		if d < bestD {
			best, bestD = spk, d
		}
	}
	return best
}

type slotLoad struct {
	speaker speakers.Speaker
	data    []float64
}

// load silences every slot, sets the buffer length and loads one sound per
// slot in order.
func load(ctx context.Context, s *Session, length int, loads ...slotLoad) error {
	if err := s.Rig.ClearSlots(ctx, 0, processor.Slots-1); err != nil {
		return err
	}
	if err := s.Rig.SetBufferLength(ctx, length); err != nil {
		return err
	}
	for i, l := range loads {
		if err := s.Rig.Load(ctx, i, l.speaker, l.data); err != nil {
			return err
		}
	}
	return nil
}

// defaultKind avoids immediate repeats when there are enough conditions.
func defaultKind(conditions int) trialseq.Kind {
	if conditions > 2 {
		return trialseq.NonRepeating
	}
	return trialseq.RandomPermutation
}
