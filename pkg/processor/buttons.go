package processor

import (
	"context"
	"log/slog"
	"math/bits"
	"time"
)

// Press is a button press.
type Press struct {
	Button       int           `json:"button"`
	Bitmask      int           `json:"bitmask"`
	ReactionTime time.Duration `json:"reaction_time"`
}

// ButtonConfig holds button box parameters.
type ButtonConfig struct {
	PollInterval time.Duration

	// WaitRelease blocks until the button is released again, so the next
	// wait does not see the same press.
	WaitRelease bool

	Logger *slog.Logger
}

// DefaultButtonConfig polls every 10 ms and waits for release.
func DefaultButtonConfig() ButtonConfig {
	return ButtonConfig{
		PollInterval: 10 * time.Millisecond,
		WaitRelease:  true,
		Logger:       slog.Default(),
	}
}

// ButtonBox reads the response box attached to a processor's response tag.
type ButtonBox struct {
	proc Processor
	cfg  ButtonConfig
}

// NewButtonBox creates a button box reader.
func NewButtonBox(p Processor, cfg ButtonConfig) *ButtonBox {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultButtonConfig().PollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ButtonBox{proc: p, cfg: cfg}
}

// ButtonNumber maps a response bitmask to a 1-based button number. The
// highest set bit wins. Zero means no button.
func ButtonNumber(mask int) int {
	if mask <= 0 {
		return 0
	}
	return bits.Len(uint(mask))
}

// WaitForPress blocks until a button is pressed and reports which one and
// how long it took.
func (b *ButtonBox) WaitForPress(ctx context.Context) (Press, error) {
	start := time.Now()
	mask, err := b.waitFor(ctx, func(v int) bool { return v != 0 })
	if err != nil {
		return Press{}, err
	}
	p := Press{Button: ButtonNumber(mask), Bitmask: mask, ReactionTime: time.Since(start)}
	b.cfg.Logger.Debug("button pressed", "button", p.Button, "rt", p.ReactionTime)

	if b.cfg.WaitRelease {
		if _, err := b.waitFor(ctx, func(v int) bool { return v == 0 }); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (b *ButtonBox) waitFor(ctx context.Context, cond func(int) bool) (int, error) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()
	for {
		v, err := b.proc.GetTag(ctx, TagResponse)
		if err != nil {
			return 0, err
		}
		if cond(int(v)) {
			return int(v), nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}
