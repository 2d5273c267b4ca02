// Package headpose estimates head orientation from fiducial markers seen by
// one or more cameras.
//
// Each camera contributes one scalar angle (azimuth or elevation) computed
// from all markers it detects: every marker pose is converted to Euler
// angles, outliers are rejected with a median-absolute-deviation test and the
// remaining samples are averaged.
package headpose

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Axis selects one component of an angle triple.
type Axis int

const (
	AxisRoll Axis = iota
	AxisPitch
	AxisYaw
)

func (a Axis) String() string {
	switch a {
	case AxisRoll:
		return "roll"
	case AxisPitch:
		return "pitch"
	case AxisYaw:
		return "yaw"
	default:
		return "unknown"
	}
}

// Angles is an orientation in degrees.
// Convention: R = Rz(Roll) * Ry(Yaw) * Rx(Pitch).
type Angles struct {
	Roll, Pitch, Yaw float64
}

// Component returns the angle for the given axis.
func (a Angles) Component(axis Axis) float64 {
	switch axis {
	case AxisPitch:
		return a.Pitch
	case AxisYaw:
		return a.Yaw
	default:
		return a.Roll
	}
}

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// RotationMatrix converts a rotation vector (axis * angle) into a 3x3
// rotation matrix using the Rodrigues formula.
func RotationMatrix(rvec [3]float64) *mat.Dense {
	theta := floats.Norm(rvec[:], 2)
	if theta < 1e-12 {
		return identity()
	}

	k := mat.NewVecDense(3, []float64{rvec[0] / theta, rvec[1] / theta, rvec[2] / theta})
	kx, ky, kz := k.AtVec(0), k.AtVec(1), k.AtVec(2)
	cross := mat.NewDense(3, 3, []float64{
		0, -kz, ky,
		kz, 0, -kx,
		-ky, kx, 0,
	})

	c, s := math.Cos(theta), math.Sin(theta)

	var r mat.Dense
	r.Scale(c, identity())

	var outer mat.Dense
	outer.Outer(1-c, k, k)
	r.Add(&r, &outer)

	var skew mat.Dense
	skew.Scale(s, cross)
	r.Add(&r, &skew)

	return &r
}

// EulerAngles decomposes a rotation matrix into Angles (degrees).
func EulerAngles(r mat.Matrix) Angles {
	sinYaw := -r.At(2, 0)
	sinYaw = math.Max(-1, math.Min(1, sinYaw))
	yaw := math.Asin(sinYaw)

	var roll, pitch float64
	if math.Abs(math.Cos(yaw)) > 1e-9 {
		pitch = math.Atan2(r.At(2, 1), r.At(2, 2))
		roll = math.Atan2(r.At(1, 0), r.At(0, 0))
	} else {
		// Gimbal lock: roll and pitch share an axis, attribute it to pitch.
		pitch = math.Atan2(-r.At(1, 2), r.At(1, 1))
	}

	return Angles{
		Roll:  Degrees(roll),
		Pitch: Degrees(pitch),
		Yaw:   Degrees(yaw),
	}
}

// ComposeRotation builds R = Rz(roll) * Ry(yaw) * Rx(pitch) from degrees.
func ComposeRotation(a Angles) *mat.Dense {
	cr, sr := math.Cos(Radians(a.Roll)), math.Sin(Radians(a.Roll))
	cy, sy := math.Cos(Radians(a.Yaw)), math.Sin(Radians(a.Yaw))
	cp, sp := math.Cos(Radians(a.Pitch)), math.Sin(Radians(a.Pitch))

	rz := mat.NewDense(3, 3, []float64{cr, -sr, 0, sr, cr, 0, 0, 0, 1})
	ry := mat.NewDense(3, 3, []float64{cy, 0, sy, 0, 1, 0, -sy, 0, cy})
	rx := mat.NewDense(3, 3, []float64{1, 0, 0, 0, cp, -sp, 0, sp, cp})

	var zy, out mat.Dense
	zy.Mul(rz, ry)
	out.Mul(&zy, rx)
	return &out
}

// RotationVector converts a rotation matrix back into axis * angle form.
func RotationVector(r mat.Matrix) [3]float64 {
	trace := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cosTheta := math.Max(-1, math.Min(1, (trace-1)/2))
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return [3]float64{}
	}

	sinTheta := math.Sin(theta)
	if sinTheta < 1e-6 {
		// theta close to pi: recover the axis from the diagonal.
		x := math.Sqrt(math.Max(0, (r.At(0, 0)+1)/2))
		y := math.Sqrt(math.Max(0, (r.At(1, 1)+1)/2))
		z := math.Sqrt(math.Max(0, (r.At(2, 2)+1)/2))
		if r.At(0, 1) < 0 {
			y = -y
		}
		if r.At(0, 2) < 0 {
			z = -z
		}
		return [3]float64{x * theta, y * theta, z * theta}
	}

	f := theta / (2 * sinTheta)
	return [3]float64{
		(r.At(2, 1) - r.At(1, 2)) * f,
		(r.At(0, 2) - r.At(2, 0)) * f,
		(r.At(1, 0) - r.At(0, 1)) * f,
	}
}

func identity() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
