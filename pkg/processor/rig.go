package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/teslashibe/go-freefield/pkg/speakers"
)

// RigConfig holds playback parameters.
type RigConfig struct {
	// SampleRate of the playback processors in Hz.
	SampleRate float64

	// BufferMax is the largest buffer a data tag accepts.
	BufferMax int

	// PollInterval paces the playback monitor.
	PollInterval time.Duration

	// PlayTimeout bounds a single Play (0 = none).
	PlayTimeout time.Duration

	Logger *slog.Logger
}

// DefaultRigConfig returns RX8 defaults.
func DefaultRigConfig() RigConfig {
	return RigConfig{
		SampleRate:   48828.125,
		BufferMax:    50000,
		PollInterval: 5 * time.Millisecond,
		PlayTimeout:  30 * time.Second,
		Logger:       slog.Default(),
	}
}

// Validate checks the configuration.
func (c *RigConfig) Validate() error {
	if c.SampleRate <= 0 {
		return errors.New("processor: sample rate must be positive")
	}
	if c.BufferMax <= 0 {
		return errors.New("processor: buffer max must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("processor: poll interval must be positive")
	}
	return nil
}

// Rig is the set of playback processors driving the dome speakers.
// Speakers address processors by name (Speaker.AnalogProc/DigitalProc).
type Rig struct {
	cfg   RigConfig
	procs map[string]Processor
	names []string
}

// NewRig creates a rig from named processors.
func NewRig(cfg RigConfig, procs ...Processor) (*Rig, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(procs) == 0 {
		return nil, errors.New("processor: rig needs at least one processor")
	}
	r := &Rig{cfg: cfg, procs: make(map[string]Processor, len(procs))}
	for _, p := range procs {
		if _, dup := r.procs[p.Name()]; dup {
			return nil, fmt.Errorf("processor: duplicate processor %s", p.Name())
		}
		r.procs[p.Name()] = p
		r.names = append(r.names, p.Name())
	}
	sort.Strings(r.names)
	return r, nil
}

// Config returns the rig configuration.
func (r *Rig) Config() RigConfig { return r.cfg }

// Names returns the processor names, sorted.
func (r *Rig) Names() []string { return append([]string(nil), r.names...) }

// Processor returns a processor by name.
func (r *Rig) Processor(name string) (Processor, error) {
	p, ok := r.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	return p, nil
}

// SetBufferLength sets the playback length in samples on every processor.
func (r *Rig) SetBufferLength(ctx context.Context, n int) error {
	if n <= 0 || n > r.cfg.BufferMax {
		return fmt.Errorf("processor: buffer length %d outside 1..%d", n, r.cfg.BufferMax)
	}
	for _, name := range r.names {
		if err := r.procs[name].SetTag(ctx, TagPlayBufLen, float64(n)); err != nil {
			return err
		}
	}
	return nil
}

// SetDuration sets the playback length from a duration.
func (r *Rig) SetDuration(ctx context.Context, d time.Duration) error {
	return r.SetBufferLength(ctx, int(math.Round(d.Seconds()*r.cfg.SampleRate)))
}

// Load writes data into a slot and routes the slot to the speaker's
// analog channel.
func (r *Rig) Load(ctx context.Context, slot int, spk speakers.Speaker, data []float64) error {
	if slot < 0 || slot >= Slots {
		return fmt.Errorf("processor: slot %d outside 0..%d", slot, Slots-1)
	}
	if len(data) > r.cfg.BufferMax {
		return fmt.Errorf("processor: %d samples exceed buffer of %d", len(data), r.cfg.BufferMax)
	}
	p, err := r.Processor(spk.AnalogProc)
	if err != nil {
		return err
	}
	if err := p.WriteTag(ctx, DataTag(slot), data); err != nil {
		return err
	}
	return p.SetTag(ctx, ChanTag(slot), float64(spk.AnalogChannel))
}

// ClearSlots silences slots from..to (inclusive) on every processor.
func (r *Rig) ClearSlots(ctx context.Context, from, to int) error {
	for _, name := range r.names {
		p := r.procs[name]
		for slot := from; slot <= to; slot++ {
			if err := p.SetTag(ctx, DataTag(slot), 0); err != nil {
				return err
			}
			if err := p.SetTag(ctx, ChanTag(slot), SilentChannel); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetLED switches the LED next to a speaker.
func (r *Rig) SetLED(ctx context.Context, spk speakers.Speaker, on bool) error {
	p, err := r.Processor(spk.DigitalProc)
	if err != nil {
		return err
	}
	var mask float64
	if on && spk.DigitalChannel > 0 {
		mask = float64(uint(1) << uint(spk.DigitalChannel-1))
	}
	return p.SetTag(ctx, TagBitmask, mask)
}

// Play triggers every processor and blocks until all of them report the
// end of playback.
func (r *Rig) Play(ctx context.Context) error {
	if r.cfg.PlayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PlayTimeout)
		defer cancel()
	}

	for _, name := range r.names {
		if err := r.procs[name].Trigger(ctx, DefaultTrigger); err != nil {
			return err
		}
	}

	done := make([]<-chan error, 0, len(r.names))
	for _, name := range r.names {
		done = append(done, NewMonitor(r.procs[name], r.cfg.PollInterval).Start(ctx))
	}
	var errs []error
	for _, ch := range done {
		if err := <-ch; err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		r.cfg.Logger.Warn("playback did not finish cleanly", "error", errors.Join(errs...))
		return errors.Join(errs...)
	}
	return nil
}

// PlayOn silences every slot, loads data into slot 0 for spk and plays it
// with the buffer length set to len(data). Used for the corrective cue;
// callers reset the buffer length before their next trial.
func (r *Rig) PlayOn(ctx context.Context, spk speakers.Speaker, data []float64) error {
	if err := r.ClearSlots(ctx, 0, Slots-1); err != nil {
		return err
	}
	if err := r.SetBufferLength(ctx, len(data)); err != nil {
		return err
	}
	if err := r.Load(ctx, 0, spk, data); err != nil {
		return err
	}
	return r.Play(ctx)
}

// Halt stops every processor.
func (r *Rig) Halt(ctx context.Context) error {
	var errs []error
	for _, name := range r.names {
		if err := r.procs[name].Halt(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes processors that hold a connection.
func (r *Rig) Close() error {
	var errs []error
	for _, name := range r.names {
		if c, ok := r.procs[name].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
