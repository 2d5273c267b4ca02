package experiment

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-freefield/pkg/headpose"
)

// Calibrate lights the LED on the central speaker, waits for the subject to
// fixate it and press a button, and stores the head offset. When no camera
// sees the markers the session continues uncalibrated.
func (s *Session) Calibrate(ctx context.Context) error {
	s.Logger.Info("calibrating: point towards the LED and press the button")
	if err := s.Rig.SetLED(ctx, s.Central, true); err != nil {
		return fmt.Errorf("experiment: calibration LED: %w", err)
	}
	defer func() {
		if err := s.Rig.SetLED(context.WithoutCancel(ctx), s.Central, false); err != nil {
			s.Logger.Warn("could not switch LED off", "error", err)
		}
	}()

	s.Present(Stimulus{Kind: KindCalibrate, Target: s.Central})
	if _, err := s.Buttons.WaitForPress(ctx); err != nil {
		return fmt.Errorf("experiment: calibration: %w", err)
	}

	cal, err := headpose.Calibrate(ctx, s.Tracker, s.Logger)
	switch {
	case errors.Is(err, headpose.ErrCalibrationFailed):
		s.Warn("calibration failed, continuing without head offset", "error", err)
		cal = headpose.Calibration{}
	case err != nil:
		return fmt.Errorf("experiment: calibration: %w", err)
	}
	s.Calibration = cal

	if err := s.Store.SetCalibration(ctx, s.Record.ID, cal.Calibrated, cal.Offset.Azimuth, cal.Offset.Elevation); err != nil {
		return fmt.Errorf("experiment: %w", err)
	}
	s.Record.Calibrated = cal.Calibrated
	s.Record.OffsetAz = cal.Offset.Azimuth
	s.Record.OffsetEl = cal.Offset.Elevation
	s.emit(Event{Type: EventCalibrated, Message: fmt.Sprintf("az=%.1f el=%.1f", cal.Offset.Azimuth, cal.Offset.Elevation)})
	return nil
}
