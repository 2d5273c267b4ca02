package headpose

import "errors"

var (
	// ErrNoPose is returned when at least one camera saw no usable marker.
	ErrNoPose = errors.New("headpose: no pose")

	// ErrCalibrationFailed is returned when no camera produced a reading
	// during calibration.
	ErrCalibrationFailed = errors.New("headpose: calibration failed")
)
