// Package gaze holds trials until the subject looks at the central speaker.
package gaze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-freefield/pkg/headpose"
)

// ErrGazeTimeout is returned when the subject did not comply in time.
var ErrGazeTimeout = errors.New("gaze: timed out waiting for fixation")

// PoseSource provides uncorrected head poses.
type PoseSource interface {
	Pose(ctx context.Context) (headpose.Pose, error)
}

// Cue plays the corrective sound on the central channel.
type Cue interface {
	PlayCue(ctx context.Context) error
}

// CueFunc adapts a function to Cue.
type CueFunc func(ctx context.Context) error

// PlayCue implements Cue.
func (f CueFunc) PlayCue(ctx context.Context) error { return f(ctx) }

// Config holds gate parameters.
type Config struct {
	// Threshold is the maximum RMS deviation in degrees.
	Threshold float64

	// PollInterval pauses between polls after a missing pose.
	PollInterval time.Duration

	// Timeout bounds the whole wait (0 = until the context ends).
	Timeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the dome defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:    10.0,
		PollInterval: 100 * time.Millisecond,
		Timeout:      0,
		Logger:       slog.Default(),
	}
}

// Result summarizes a completed wait.
type Result struct {
	Pose      headpose.Pose // offset-corrected pose that passed
	Deviation float64       // RMS of Pose
	Attempts  int           // pose polls, including misses
	Misses    int           // polls without a pose
	Cues      int           // corrective cues played
	Elapsed   time.Duration
}

// Event is reported to an Observer for every poll.
type Event struct {
	Attempt   int
	Pose      headpose.Pose
	Deviation float64
	HasPose   bool
	Compliant bool
}

// Observer receives gate events (used by the dashboard).
type Observer func(Event)

// Gate blocks until the corrected head pose is within Threshold.
type Gate struct {
	poses    PoseSource
	cue      Cue
	cfg      Config
	observer Observer
}

// New creates a gate.
func New(cfg Config, poses PoseSource, cue Cue) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	return &Gate{poses: poses, cue: cue, cfg: cfg}
}

// SetObserver installs a callback invoked on every poll.
func (g *Gate) SetObserver(o Observer) {
	g.observer = o
}

// Config returns the gate configuration.
func (g *Gate) Config() Config {
	return g.cfg
}

// Wait polls poses until the subject fixates the centre.
//
// A missing pose (no markers) is logged and retried. A pose beyond the
// threshold plays the cue and retries. Any other pose error aborts.
// The wait ends with ErrGazeTimeout after Timeout, or with the context's
// error when ctx is cancelled.
func (g *Gate) Wait(ctx context.Context, cal headpose.Calibration) (Result, error) {
	start := time.Now()
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	var res Result
	for {
		if err := ctx.Err(); err != nil {
			return res, g.abort(err, res)
		}

		res.Attempts++
		raw, err := g.poses.Pose(ctx)
		if err != nil {
			if errors.Is(err, headpose.ErrNoPose) {
				res.Misses++
				g.cfg.Logger.Warn("cannot detect markers, check cameras and marker visibility",
					"attempt", res.Attempts, "error", err)
				g.notify(Event{Attempt: res.Attempts})
				if err := sleep(ctx, g.cfg.PollInterval); err != nil {
					return res, g.abort(err, res)
				}
				continue
			}
			if ctx.Err() != nil {
				return res, g.abort(ctx.Err(), res)
			}
			return res, fmt.Errorf("gaze: pose: %w", err)
		}

		pose := cal.Apply(raw)
		dev := pose.RMS()
		compliant := dev <= g.cfg.Threshold
		g.notify(Event{Attempt: res.Attempts, Pose: pose, Deviation: dev, HasPose: true, Compliant: compliant})

		if compliant {
			res.Pose = pose
			res.Deviation = dev
			res.Elapsed = time.Since(start)
			return res, nil
		}

		g.cfg.Logger.Info("subject is not looking straight ahead",
			"azimuth", pose.Azimuth, "elevation", pose.Elevation, "deviation", dev)
		if g.cue != nil {
			if err := g.cue.PlayCue(ctx); err != nil {
				if ctx.Err() != nil {
					return res, g.abort(ctx.Err(), res)
				}
				return res, fmt.Errorf("gaze: cue: %w", err)
			}
			res.Cues++
		}
	}
}

func (g *Gate) abort(err error, res Result) error {
	if errors.Is(err, context.DeadlineExceeded) && g.cfg.Timeout > 0 {
		return fmt.Errorf("after %d attempts (%d cues): %w", res.Attempts, res.Cues, ErrGazeTimeout)
	}
	return err
}

func (g *Gate) notify(e Event) {
	if g.observer != nil {
		g.observer(e)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
