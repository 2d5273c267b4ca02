// Package tracking opens the camera-based head tracker described by the
// lab file.
package tracking

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-freefield/internal/config"
	"github.com/teslashibe/go-freefield/pkg/camera"
	"github.com/teslashibe/go-freefield/pkg/headpose"
	"github.com/teslashibe/go-freefield/pkg/headpose/markers"
)

// Tracker is a headpose.Estimator that owns its cameras.
type Tracker struct {
	*headpose.Estimator
	captures []*camera.Capture
}

// Open opens every camera of the lab with its marker detector. On error
// everything opened so far is closed again.
func Open(lab config.Lab, logger *slog.Logger) (*Tracker, error) {
	if len(lab.Cameras) == 0 {
		return nil, errors.New("tracking: no cameras configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{}
	specs := make([]headpose.CameraSpec, 0, len(lab.Cameras))
	for _, c := range lab.Cameras {
		capture, err := camera.Open(CameraConfig(c))
		if err != nil {
			t.closeCaptures()
			closeDetectors(specs)
			return nil, err
		}
		t.captures = append(t.captures, capture)

		det, err := markers.NewAruco(DetectorConfig(c, lab.MarkerLength))
		if err != nil {
			t.closeCaptures()
			closeDetectors(specs)
			return nil, fmt.Errorf("tracking: camera %d: %w", c.Index, err)
		}
		specs = append(specs, headpose.CameraSpec{
			Source:   capture,
			Detector: det,
			Axis:     headpose.AxisRoll,
			Role:     RoleFor(c.Role),
		})
		logger.Info("camera opened", "index", c.Index, "role", c.Role, "dictionary", c.Dictionary)
	}

	hcfg := headpose.DefaultConfig()
	hcfg.Logger = logger
	t.Estimator = headpose.NewEstimator(hcfg, specs...)
	return t, nil
}

// Close releases the detectors and the cameras.
func (t *Tracker) Close() error {
	var errs []error
	if t.Estimator != nil {
		errs = append(errs, t.Estimator.Close())
	}
	errs = append(errs, t.closeCaptures())
	return errors.Join(errs...)
}

func (t *Tracker) closeCaptures() error {
	var errs []error
	for _, c := range t.captures {
		errs = append(errs, c.Close())
	}
	t.captures = nil
	return errors.Join(errs...)
}

func closeDetectors(specs []headpose.CameraSpec) {
	for _, s := range specs {
		s.Detector.Close()
	}
}

// CameraConfig converts a lab camera entry. Zero sizes keep the sensor's
// full resolution.
func CameraConfig(c config.Camera) camera.Config {
	cfg := camera.DefaultConfig(c.Index)
	if c.Width > 0 && c.Height > 0 {
		cfg.Width, cfg.Height = c.Width, c.Height
	}
	return cfg
}

// DetectorConfig converts a lab camera entry into marker detector settings.
func DetectorConfig(c config.Camera, markerLength float64) markers.Config {
	cfg := markers.DefaultConfig()
	if c.Dictionary != "" {
		cfg.Dictionary = markers.Dictionary(c.Dictionary)
	}
	if markerLength > 0 {
		cfg.MarkerLength = markerLength
	}
	if c.Resolution > 0 && c.Resolution <= 1 {
		cfg.Resolution = c.Resolution
	}
	return cfg
}

// RoleFor maps the lab role name to a pose component.
func RoleFor(role string) headpose.Role {
	if role == "elevation" {
		return headpose.RoleElevation
	}
	return headpose.RoleAzimuth
}
