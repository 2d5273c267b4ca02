package headpose

import (
	"context"
	"sync"

	"github.com/teslashibe/go-freefield/pkg/headpose/markers"
)

// StaticSource is a FrameSource that always returns the same frame.
// Used with ScriptedDetector for tests and dry runs without cameras.
type StaticSource struct {
	CameraID int
	Frame    []byte
	Err      error
}

// ID implements FrameSource.
func (s *StaticSource) ID() int { return s.CameraID }

// Capture implements FrameSource.
func (s *StaticSource) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Frame, s.Err
}

// ScriptedDetector returns queued detection results in order and repeats
// the last one once the queue is drained.
type ScriptedDetector struct {
	mu      sync.Mutex
	results [][]markers.Observation
	calls   int
}

// NewScriptedDetector creates a detector replaying results.
func NewScriptedDetector(results ...[]markers.Observation) *ScriptedDetector {
	return &ScriptedDetector{results: results}
}

// Detect implements markers.Detector.
func (d *ScriptedDetector) Detect(frame []byte) ([]markers.Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.results) == 0 {
		return nil, nil
	}
	i := d.calls
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	d.calls++
	return d.results[i], nil
}

// Calls returns how many times Detect ran.
func (d *ScriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Close implements markers.Detector.
func (d *ScriptedDetector) Close() error { return nil }

// ObservationForAngles builds a marker observation whose rotation decomposes
// into the given angles.
func ObservationForAngles(id int, a Angles) markers.Observation {
	return markers.Observation{ID: id, Rvec: RotationVector(ComposeRotation(a))}
}

// SimulatedHead is a Tracker whose pose is set directly. Used for example
// sessions without cameras.
type SimulatedHead struct {
	mu      sync.Mutex
	pose    Pose
	visible bool
}

// NewSimulatedHead returns a visible head looking at pose.
func NewSimulatedHead(pose Pose) *SimulatedHead {
	return &SimulatedHead{pose: pose, visible: true}
}

// Look turns the head.
func (h *SimulatedHead) Look(p Pose) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pose = p
}

// SetVisible hides or shows the markers.
func (h *SimulatedHead) SetVisible(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visible = v
}

// Readings implements Tracker.
func (h *SimulatedHead) Readings(ctx context.Context) ([]Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return []Reading{
		{CameraID: 0, Role: RoleAzimuth, Angle: h.pose.Azimuth, Valid: h.visible, Markers: 1, Inliers: 1},
		{CameraID: 1, Role: RoleElevation, Angle: h.pose.Elevation, Valid: h.visible, Markers: 1, Inliers: 1},
	}, nil
}

// Pose implements Tracker.
func (h *SimulatedHead) Pose(ctx context.Context) (Pose, error) {
	r, err := h.Readings(ctx)
	if err != nil {
		return Pose{}, err
	}
	return PoseFromReadings(r)
}
