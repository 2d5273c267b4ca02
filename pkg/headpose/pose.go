package headpose

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Role is the head-orientation component a camera measures.
type Role int

const (
	RoleAzimuth Role = iota
	RoleElevation
)

func (r Role) String() string {
	if r == RoleElevation {
		return "elevation"
	}
	return "azimuth"
}

// Pose is the head orientation in degrees relative to the camera setup.
type Pose struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// Get returns the component for a role.
func (p Pose) Get(r Role) float64 {
	if r == RoleElevation {
		return p.Elevation
	}
	return p.Azimuth
}

// Set assigns the component for a role.
func (p *Pose) Set(r Role, v float64) {
	if r == RoleElevation {
		p.Elevation = v
		return
	}
	p.Azimuth = v
}

// Sub returns p - o component-wise.
func (p Pose) Sub(o Pose) Pose {
	return Pose{Azimuth: p.Azimuth - o.Azimuth, Elevation: p.Elevation - o.Elevation}
}

// RMS returns the root-mean-square of the pose components, the scalar the
// gaze gate compares to its threshold.
func (p Pose) RMS() float64 {
	v := []float64{p.Azimuth, p.Elevation}
	return floats.Norm(v, 2) / math.Sqrt(float64(len(v)))
}

// Calibration holds the head offset recorded while the subject fixates the
// central speaker. The zero value is an uncalibrated setup.
type Calibration struct {
	Offset     Pose `json:"offset"`
	Calibrated bool `json:"calibrated"`
}

// Apply subtracts the offset from p when calibrated.
func (c Calibration) Apply(p Pose) Pose {
	if !c.Calibrated {
		return p
	}
	return p.Sub(c.Offset)
}
