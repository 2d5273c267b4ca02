package processor

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnknownProcessor is returned when a rig has no processor of that name.
	ErrUnknownProcessor = errors.New("processor: unknown processor")

	// ErrPlaybackTimeout is returned when playback does not finish in time.
	ErrPlaybackTimeout = errors.New("processor: playback did not finish")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("processor: closed")
)

// DeviceError records a failed operation on a processor.
type DeviceError struct {
	Processor string
	Op        string
	Err       error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("processor %s: %s: %v", e.Processor, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

func wrap(name, op string, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Processor: name, Op: op, Err: err}
}
