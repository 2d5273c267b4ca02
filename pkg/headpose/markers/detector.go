// Package markers detects fiducial markers in camera frames and estimates
// one rotation/translation per marker.
package markers

// Observation is a single detected marker with its estimated pose.
type Observation struct {
	ID      int
	Corners [4][2]float64 // Image coordinates, clockwise from top-left
	Rvec    [3]float64    // Rotation vector (axis * angle, radians)
	Tvec    [3]float64    // Translation in marker-length units (metres)
}

// Detector is the interface for marker detection backends.
type Detector interface {
	// Detect finds markers in an encoded frame and returns their poses.
	// An empty result with nil error means no marker was visible.
	Detect(frame []byte) ([]Observation, error)

	// Close releases resources
	Close() error
}

// Dictionary names a predefined marker dictionary.
type Dictionary string

const (
	Dict4x4_100 Dictionary = "4x4_100"
	Dict5x5_100 Dictionary = "5x5_100"
)

// Config holds detector configuration.
type Config struct {
	Dictionary   Dictionary
	MarkerLength float64 // Side length in metres
	Resolution   float64 // Downscale factor applied before detection (0-1]
}

// DefaultConfig returns the dome setup defaults: 4x4 markers, 5 cm side.
func DefaultConfig() Config {
	return Config{
		Dictionary:   Dict4x4_100,
		MarkerLength: 0.05,
		Resolution:   1.0,
	}
}

// Intrinsics is a pinhole camera model without lens distortion.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// AssumedIntrinsics returns the uncalibrated model used for marker pose:
// focal length equal to the image width and principal point at the centre.
func AssumedIntrinsics(width, height int) Intrinsics {
	f := float64(width)
	return Intrinsics{
		Fx: f,
		Fy: f,
		Cx: float64(width) / 2,
		Cy: float64(height) / 2,
	}
}

// Matrix returns the 3x3 camera matrix in row-major order.
func (in Intrinsics) Matrix() [9]float64 {
	return [9]float64{
		in.Fx, 0, in.Cx,
		0, in.Fy, in.Cy,
		0, 0, 1,
	}
}

// ObjectPoints returns the marker corners in the marker frame, in the order
// the detector reports image corners.
func ObjectPoints(length float64) [4][3]float64 {
	h := length / 2
	return [4][3]float64{
		{-h, h, 0},
		{h, h, 0},
		{h, -h, 0},
		{-h, -h, 0},
	}
}
