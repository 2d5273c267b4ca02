package headpose

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-freefield/internal/log"
	"github.com/teslashibe/go-freefield/pkg/headpose/markers"
)

func rollObservations(rolls ...float64) []markers.Observation {
	obs := make([]markers.Observation, len(rolls))
	for i, r := range rolls {
		obs[i] = ObservationForAngles(i, Angles{Roll: r})
	}
	return obs
}

func newTestEstimator(az, el *ScriptedDetector) *Estimator {
	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	return NewEstimator(cfg,
		CameraSpec{Source: &StaticSource{CameraID: 0}, Detector: az, Axis: AxisRoll, Role: RoleAzimuth},
		CameraSpec{Source: &StaticSource{CameraID: 1}, Detector: el, Axis: AxisRoll, Role: RoleElevation},
	)
}

func TestEstimator_Pose(t *testing.T) {
	az := NewScriptedDetector(rollObservations(10, 11, 9, 10, 30))
	el := NewScriptedDetector(rollObservations(-5))
	est := newTestEstimator(az, el)

	pose, err := est.Pose(context.Background())
	if err != nil {
		t.Fatalf("Pose failed: %v", err)
	}
	if !angleEquals(pose.Azimuth, 10) {
		t.Errorf("Azimuth: got %v, want 10 (outlier 30 rejected)", pose.Azimuth)
	}
	if !angleEquals(pose.Elevation, -5) {
		t.Errorf("Elevation: got %v, want -5", pose.Elevation)
	}
}

func TestEstimator_Readings(t *testing.T) {
	az := NewScriptedDetector(rollObservations(10, 11, 9, 10, 30))
	el := NewScriptedDetector(nil)
	est := newTestEstimator(az, el)

	readings, err := est.Readings(context.Background())
	if err != nil {
		t.Fatalf("Readings failed: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(readings))
	}
	if readings[0].Markers != 5 || readings[0].Inliers != 4 || !readings[0].Valid {
		t.Errorf("camera 0 reading: %+v", readings[0])
	}
	if readings[1].Valid || readings[1].Markers != 0 {
		t.Errorf("camera 1 should be invalid with no markers: %+v", readings[1])
	}
}

func TestEstimator_NoMarkers(t *testing.T) {
	est := newTestEstimator(NewScriptedDetector(rollObservations(3)), NewScriptedDetector(nil))

	_, err := est.Pose(context.Background())
	if !errors.Is(err, ErrNoPose) {
		t.Errorf("expected ErrNoPose, got %v", err)
	}
}

func TestEstimator_CaptureError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	boom := errors.New("usb reset")
	est := NewEstimator(cfg, CameraSpec{
		Source:   &StaticSource{CameraID: 0, Err: boom},
		Detector: NewScriptedDetector(),
	})

	_, err := est.Pose(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected capture error, got %v", err)
	}
	if errors.Is(err, ErrNoPose) {
		t.Error("capture failure must not be reported as no pose")
	}
}

func TestCalibrate(t *testing.T) {
	t.Run("both cameras", func(t *testing.T) {
		est := newTestEstimator(NewScriptedDetector(rollObservations(4)), NewScriptedDetector(rollObservations(-2)))
		cal, err := Calibrate(context.Background(), est, log.Discard())
		if err != nil {
			t.Fatalf("Calibrate failed: %v", err)
		}
		if !cal.Calibrated {
			t.Error("expected calibrated")
		}
		if !angleEquals(cal.Offset.Azimuth, 4) || !angleEquals(cal.Offset.Elevation, -2) {
			t.Errorf("offset: got %+v, want {4 -2}", cal.Offset)
		}
	})

	t.Run("missing camera uses zero offset", func(t *testing.T) {
		est := newTestEstimator(NewScriptedDetector(rollObservations(4)), NewScriptedDetector(nil))
		cal, err := Calibrate(context.Background(), est, log.Discard())
		if err != nil {
			t.Fatalf("Calibrate failed: %v", err)
		}
		if !cal.Calibrated || cal.Offset.Elevation != 0 {
			t.Errorf("got %+v, want calibrated with zero elevation offset", cal)
		}
	})

	t.Run("no markers at all", func(t *testing.T) {
		est := newTestEstimator(NewScriptedDetector(nil), NewScriptedDetector(nil))
		cal, err := Calibrate(context.Background(), est, log.Discard())
		if !errors.Is(err, ErrCalibrationFailed) {
			t.Errorf("expected ErrCalibrationFailed, got %v", err)
		}
		if cal.Calibrated {
			t.Error("failed calibration must leave the setup uncalibrated")
		}
	})
}

func TestCalibration_Apply(t *testing.T) {
	p := Pose{Azimuth: 12, Elevation: -3}

	if got := (Calibration{}).Apply(p); got != p {
		t.Errorf("uncalibrated Apply changed pose: %+v", got)
	}

	cal := Calibration{Offset: Pose{Azimuth: 2, Elevation: -1}, Calibrated: true}
	if got := cal.Apply(p); got != (Pose{Azimuth: 10, Elevation: -2}) {
		t.Errorf("Apply: got %+v, want {10 -2}", got)
	}
}

func TestPose_RMS(t *testing.T) {
	p := Pose{Azimuth: 3, Elevation: 4}
	// sqrt((9+16)/2)
	if !angleEquals(p.RMS(), 3.5355339059327378) {
		t.Errorf("RMS: got %v", p.RMS())
	}
	if (Pose{}).RMS() != 0 {
		t.Error("RMS of zero pose should be 0")
	}
}

func TestSimulatedHead(t *testing.T) {
	h := NewSimulatedHead(Pose{Azimuth: 5, Elevation: 1})
	ctx := context.Background()

	p, err := h.Pose(ctx)
	if err != nil || p != (Pose{Azimuth: 5, Elevation: 1}) {
		t.Fatalf("Pose = %+v, %v", p, err)
	}

	cal, err := Calibrate(ctx, h, log.Discard())
	if err != nil || cal.Offset != p {
		t.Errorf("Calibrate = %+v, %v", cal, err)
	}

	h.SetVisible(false)
	if _, err := h.Pose(ctx); !errors.Is(err, ErrNoPose) {
		t.Errorf("expected ErrNoPose when hidden, got %v", err)
	}
}

func TestPoseFromReadings_Empty(t *testing.T) {
	if _, err := PoseFromReadings(nil); !errors.Is(err, ErrNoPose) {
		t.Errorf("expected ErrNoPose, got %v", err)
	}
}
