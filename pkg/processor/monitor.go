package processor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Monitor watches the playback tag of a processor on a background
// goroutine and reports when playback has finished.
type Monitor struct {
	proc     Processor
	tag      string
	interval time.Duration
}

// NewMonitor creates a monitor polling TagPlayback every interval.
func NewMonitor(p Processor, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	return &Monitor{proc: p, tag: TagPlayback, interval: interval}
}

// Start launches the polling goroutine. The returned channel receives
// exactly one value: nil when the tag drops to zero, or the error that
// stopped the poll. It is buffered, so the goroutine never leaks when
// nobody reads it.
func (m *Monitor) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- m.poll(ctx)
	}()
	return done
}

// Wait starts the monitor and blocks until playback ends.
func (m *Monitor) Wait(ctx context.Context) error {
	return <-m.Start(ctx)
}

func (m *Monitor) poll(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		v, err := m.proc.GetTag(ctx, m.tag)
		if err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%s: %w", m.proc.Name(), ErrPlaybackTimeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
