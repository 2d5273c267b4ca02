// Package processor drives the DSP processors that play sounds through the
// dome and read the response button box.
//
// A Processor is addressed by tags: scalar tags (SetTag/GetTag) and buffer
// tags (WriteTag). Three transports implement it: an HTTP gateway that
// hosts the vendor control, a line protocol over a serial port, and an
// in-memory mock.
package processor

import (
	"context"
	"fmt"
)

// Tags used by the playback and response circuits.
const (
	TagPlayback   = "playback"
	TagPlayBufLen = "playbuflen"
	TagBitmask    = "bitmask"
	TagResponse   = "response"
	TagDataPrefix = "data"
	TagChanPrefix = "chan"
)

const (
	// SilentChannel routes a slot to no output.
	SilentChannel = 99

	// DefaultTrigger is the soft trigger that starts playback.
	DefaultTrigger = 1

	// Slots is the number of data/chan slot pairs per RX8.
	Slots = 5
)

// Processor is a single DSP device.
type Processor interface {
	// Name identifies the device, e.g. "RX81".
	Name() string

	// SetTag writes a scalar tag.
	SetTag(ctx context.Context, tag string, value float64) error

	// WriteTag writes a buffer tag starting at offset 0.
	WriteTag(ctx context.Context, tag string, data []float64) error

	// GetTag reads a scalar tag.
	GetTag(ctx context.Context, tag string) (float64, error)

	// Trigger fires a soft trigger.
	Trigger(ctx context.Context, n int) error

	// Halt stops the running circuit.
	Halt(ctx context.Context) error
}

// DataTag returns the buffer tag for a slot.
func DataTag(slot int) string { return fmt.Sprintf("%s%d", TagDataPrefix, slot) }

// ChanTag returns the channel tag for a slot.
func ChanTag(slot int) string { return fmt.Sprintf("%s%d", TagChanPrefix, slot) }
