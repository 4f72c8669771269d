package flight

import (
	"fmt"

	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DroneState is the filtered vehicle state supplied by state estimation.
// AngularVelocity is expressed in the body frame, everything else in the
// world frame (z up).
type DroneState struct {
	Position        r3.Vec
	Velocity        r3.Vec
	Attitude        quat.Number
	AngularVelocity r3.Vec
	Timestamp       float64
}

// NewStateFromEuler builds a state at rest at position p with the given
// ZYX Euler attitude.
func NewStateFromEuler(p r3.Vec, roll, pitch, yaw float64) DroneState {
	return DroneState{
		Position: p,
		Attitude: geom.QuatFromEuler(roll, pitch, yaw),
	}
}

// Hover returns a level state at rest at p.
func Hover(p r3.Vec) DroneState {
	return DroneState{Position: p, Attitude: geom.Identity}
}

func (s DroneState) Validate() error {
	switch {
	case !geom.Finite(s.Position):
		return fmt.Errorf("%w: position %v", ErrInvalidInput, s.Position)
	case !geom.Finite(s.Velocity):
		return fmt.Errorf("%w: velocity %v", ErrInvalidInput, s.Velocity)
	case !geom.QuatFinite(s.Attitude):
		return fmt.Errorf("%w: attitude %v", ErrInvalidInput, s.Attitude)
	case !geom.Finite(s.AngularVelocity):
		return fmt.Errorf("%w: angular velocity %v", ErrInvalidInput, s.AngularVelocity)
	}
	return nil
}

func (s DroneState) Rotation() *mat.Dense {
	return geom.RotationFromQuat(s.Attitude)
}

func (s DroneState) Yaw() float64 {
	_, _, yaw := geom.EulerFromQuat(s.Attitude)
	return yaw
}
