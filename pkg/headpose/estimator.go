package headpose

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-freefield/pkg/headpose/markers"
)

// FrameSource delivers encoded frames from one camera.
type FrameSource interface {
	ID() int
	Capture(ctx context.Context) ([]byte, error)
}

// CameraSpec binds a frame source to a detector and says which angle of the
// marker poses becomes which pose component.
type CameraSpec struct {
	Source   FrameSource
	Detector markers.Detector
	Axis     Axis
	Role     Role
}

// PoseSample is the orientation of one marker seen by one camera.
type PoseSample struct {
	Angles
	CameraID int
	MarkerID int
}

// Reading is the filtered scalar estimate of one camera.
type Reading struct {
	CameraID int
	Role     Role
	Angle    float64
	Valid    bool
	Markers  int // markers detected
	Inliers  int // markers kept after outlier rejection
}

// Config holds estimator parameters.
type Config struct {
	OutlierThreshold float64
	Logger           *slog.Logger
}

// DefaultConfig returns the estimator defaults.
func DefaultConfig() Config {
	return Config{
		OutlierThreshold: DefaultOutlierThreshold,
		Logger:           slog.Default(),
	}
}

// Estimator turns camera frames into a head Pose.
type Estimator struct {
	cameras []CameraSpec
	cfg     Config
}

// NewEstimator creates an estimator over the given cameras.
func NewEstimator(cfg Config, cameras ...CameraSpec) *Estimator {
	if cfg.OutlierThreshold <= 0 {
		cfg.OutlierThreshold = DefaultOutlierThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Estimator{cameras: cameras, cfg: cfg}
}

// SamplesFromObservations converts marker poses into angle samples.
func SamplesFromObservations(cameraID int, obs []markers.Observation) []PoseSample {
	samples := make([]PoseSample, 0, len(obs))
	for _, o := range obs {
		samples = append(samples, PoseSample{
			Angles:   EulerAngles(RotationMatrix(o.Rvec)),
			CameraID: cameraID,
			MarkerID: o.ID,
		})
	}
	return samples
}

// Reduce filters the samples along axis and averages the inliers.
func Reduce(cameraID int, role Role, samples []PoseSample, axis Axis, threshold float64) Reading {
	r := Reading{CameraID: cameraID, Role: role, Markers: len(samples)}
	if len(samples) == 0 {
		return r
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Component(axis)
	}
	mean, inliers, ok := RobustMean(values, threshold)
	r.Angle, r.Inliers, r.Valid = mean, inliers, ok
	return r
}

// Readings captures one frame per camera and returns one Reading each.
// Detection failures yield invalid readings; capture failures are errors.
func (e *Estimator) Readings(ctx context.Context) ([]Reading, error) {
	readings := make([]Reading, 0, len(e.cameras))
	for _, cam := range e.cameras {
		id := cam.Source.ID()
		frame, err := cam.Source.Capture(ctx)
		if err != nil {
			return nil, fmt.Errorf("camera %d: capture: %w", id, err)
		}

		obs, err := cam.Detector.Detect(frame)
		if err != nil {
			e.cfg.Logger.Warn("marker detection failed", "camera", id, "error", err)
			readings = append(readings, Reading{CameraID: id, Role: cam.Role})
			continue
		}

		samples := SamplesFromObservations(id, obs)
		r := Reduce(id, cam.Role, samples, cam.Axis, e.cfg.OutlierThreshold)
		e.cfg.Logger.Debug("camera reading",
			"camera", id, "role", cam.Role, "markers", r.Markers, "inliers", r.Inliers, "angle", r.Angle)
		readings = append(readings, r)
	}
	return readings, nil
}

// Pose returns the uncorrected head pose. It fails with ErrNoPose when any
// camera has no valid reading.
func (e *Estimator) Pose(ctx context.Context) (Pose, error) {
	readings, err := e.Readings(ctx)
	if err != nil {
		return Pose{}, err
	}
	return PoseFromReadings(readings)
}

// PoseFromReadings combines per-camera readings into a Pose.
func PoseFromReadings(readings []Reading) (Pose, error) {
	if len(readings) == 0 {
		return Pose{}, fmt.Errorf("no cameras: %w", ErrNoPose)
	}
	var p Pose
	for _, r := range readings {
		if !r.Valid {
			return Pose{}, fmt.Errorf("camera %d (%s): %w", r.CameraID, r.Role, ErrNoPose)
		}
		p.Set(r.Role, r.Angle)
	}
	return p, nil
}

// Close releases all detectors.
func (e *Estimator) Close() error {
	var first error
	for _, cam := range e.cameras {
		if err := cam.Detector.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Tracker reports per-camera readings and the combined head pose.
// *Estimator is the camera-backed implementation.
type Tracker interface {
	Readings(ctx context.Context) ([]Reading, error)
	Pose(ctx context.Context) (Pose, error)
}

// Calibrate reads the current head pose and stores it as the offset.
// Cameras without a valid reading contribute a zero offset. If no camera
// produced a reading the returned Calibration is uncalibrated and the error
// wraps ErrCalibrationFailed.
func Calibrate(ctx context.Context, t Tracker, logger *slog.Logger) (Calibration, error) {
	if logger == nil {
		logger = slog.Default()
	}
	readings, err := t.Readings(ctx)
	if err != nil {
		return Calibration{}, err
	}

	var cal Calibration
	valid := 0
	for _, r := range readings {
		if !r.Valid {
			logger.Warn("calibration unsuccessful for camera, using zero offset; make sure markers are visible",
				"camera", r.CameraID, "role", r.Role)
			continue
		}
		cal.Offset.Set(r.Role, r.Angle)
		valid++
	}

	if valid == 0 {
		return Calibration{}, fmt.Errorf("%d cameras without markers: %w", len(readings), ErrCalibrationFailed)
	}
	cal.Calibrated = true
	logger.Info("camera calibrated",
		"azimuth_offset", cal.Offset.Azimuth, "elevation_offset", cal.Offset.Elevation)
	return cal, nil
}
