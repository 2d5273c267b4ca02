package headpose

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const angleTolerance = 1e-6

func angleEquals(a, b float64) bool {
	return math.Abs(a-b) < angleTolerance
}

func TestEulerAngles_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Angles
	}{
		{"zero", Angles{}},
		{"roll only", Angles{Roll: 25}},
		{"pitch only", Angles{Pitch: -12.5}},
		{"yaw only", Angles{Yaw: 40}},
		{"mixed", Angles{Roll: -30, Pitch: 15, Yaw: 20}},
		{"large roll", Angles{Roll: 170, Pitch: 5, Yaw: -10}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EulerAngles(ComposeRotation(tc.in))
			if !angleEquals(got.Roll, tc.in.Roll) || !angleEquals(got.Pitch, tc.in.Pitch) || !angleEquals(got.Yaw, tc.in.Yaw) {
				t.Errorf("EulerAngles: got %+v, want %+v", got, tc.in)
			}
		})
	}
}

func TestRotationMatrix_AboutZ(t *testing.T) {
	r := RotationMatrix([3]float64{0, 0, math.Pi / 2})
	a := EulerAngles(r)

	if !angleEquals(a.Roll, 90) {
		t.Errorf("Roll: got %v, want 90", a.Roll)
	}
	if !angleEquals(a.Pitch, 0) || !angleEquals(a.Yaw, 0) {
		t.Errorf("Pitch/Yaw: got %v/%v, want 0/0", a.Pitch, a.Yaw)
	}
}

func TestRotationMatrix_ZeroVectorIsIdentity(t *testing.T) {
	r := RotationMatrix([3]float64{})
	if !mat.EqualApprox(r, identity(), 1e-12) {
		t.Errorf("expected identity, got %v", mat.Formatted(r))
	}
}

func TestRotationVector_RoundTrip(t *testing.T) {
	vectors := [][3]float64{
		{0.1, 0.2, 0.3},
		{-0.5, 0, 0.25},
		{0, 1.2, 0},
	}
	for _, v := range vectors {
		got := RotationVector(RotationMatrix(v))
		for i := range v {
			if !angleEquals(got[i], v[i]) {
				t.Errorf("RotationVector(RotationMatrix(%v)) = %v", v, got)
				break
			}
		}
	}
}

func TestRotationMatrix_IsOrthonormal(t *testing.T) {
	r := RotationMatrix([3]float64{0.3, -0.7, 1.1})

	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	if !mat.EqualApprox(&rtr, identity(), 1e-9) {
		t.Errorf("R^T R is not identity: %v", mat.Formatted(&rtr))
	}
	if det := mat.Det(r); !angleEquals(det, 1) {
		t.Errorf("det(R): got %v, want 1", det)
	}
}

func TestAngles_Component(t *testing.T) {
	a := Angles{Roll: 1, Pitch: 2, Yaw: 3}
	if a.Component(AxisRoll) != 1 || a.Component(AxisPitch) != 2 || a.Component(AxisYaw) != 3 {
		t.Errorf("Component returned wrong axis values for %+v", a)
	}
}
