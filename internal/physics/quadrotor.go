package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	DefaultMass    = 1.0
	DefaultGravity = 9.81
)

// State layout: px py pz vx vy vz qw qx qy qz wx wy wz.
type State [13]float64

func FromDroneState(s flight.DroneState) State {
	q := geom.NormalizeQuat(s.Attitude)
	return State{
		s.Position.X, s.Position.Y, s.Position.Z,
		s.Velocity.X, s.Velocity.Y, s.Velocity.Z,
		q.Real, q.Imag, q.Jmag, q.Kmag,
		s.AngularVelocity.X, s.AngularVelocity.Y, s.AngularVelocity.Z,
	}
}

// DroneState converts x to the estimator-facing state at time t.
func (x State) DroneState(t float64) flight.DroneState {
	return flight.DroneState{
		Position:        x.Position(),
		Velocity:        x.Velocity(),
		Attitude:        x.Attitude(),
		AngularVelocity: x.AngularVelocity(),
		Timestamp:       t,
	}
}

func (x State) Position() r3.Vec        { return r3.Vec{X: x[0], Y: x[1], Z: x[2]} }
func (x State) Velocity() r3.Vec        { return r3.Vec{X: x[3], Y: x[4], Z: x[5]} }
func (x State) Attitude() quat.Number   { return quat.Number{Real: x[6], Imag: x[7], Jmag: x[8], Kmag: x[9]} }
func (x State) AngularVelocity() r3.Vec { return r3.Vec{X: x[10], Y: x[11], Z: x[12]} }

func (x State) IsValid() bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Quadrotor is a rigid body driven by collective thrust along body z and a
// body torque, with linear translational and rotational drag.
type Quadrotor struct {
	Mass      float64
	Inertia   r3.Vec
	Gravity   float64
	DragCoeff float64
	AngDrag   float64

	k1, k2, k3, k4 State
}

func NewQuadrotor() *Quadrotor {
	return &Quadrotor{
		Mass:      DefaultMass,
		Inertia:   r3.Vec{X: 0.0082, Y: 0.0082, Z: 0.0149},
		Gravity:   DefaultGravity,
		DragCoeff: 0.05,
		AngDrag:   0.001,
	}
}

func (q *Quadrotor) HoverThrust() float64 {
	return q.Mass * q.Gravity
}

func (q *Quadrotor) Validate() error {
	if !(q.Mass > 0) || !(q.Gravity > 0) {
		return fmt.Errorf("physics: mass and gravity must be positive, got %v, %v", q.Mass, q.Gravity)
	}
	if !(q.Inertia.X > 0 && q.Inertia.Y > 0 && q.Inertia.Z > 0) {
		return fmt.Errorf("physics: inertia must be positive, got %v", q.Inertia)
	}
	return nil
}

// Derive returns dx/dt. Negative thrust is treated as zero; rotors cannot
// push downward.
func (q *Quadrotor) Derive(x State, u flight.ControlCommand) State {
	thrust := math.Max(0, u.Thrust)
	w, qx, qy, qz := x[6], x[7], x[8], x[9]
	wx, wy, wz := x[10], x[11], x[12]

	// Body z-axis in world coordinates: third column of R(q).
	zx := 2 * (qx*qz + w*qy)
	zy := 2 * (qy*qz - w*qx)
	zz := 1 - 2*(qx*qx+qy*qy)

	f := thrust / q.Mass
	drag := q.DragCoeff / q.Mass
	ax := f*zx - drag*x[3]
	ay := f*zy - drag*x[4]
	az := f*zz - q.Gravity - drag*x[5]

	qd := geom.QuatRate(x.Attitude(), x.AngularVelocity())

	J := q.Inertia
	ax2 := (u.Torque.X - (J.Z-J.Y)*wy*wz - q.AngDrag*wx) / J.X
	ay2 := (u.Torque.Y - (J.X-J.Z)*wz*wx - q.AngDrag*wy) / J.Y
	az2 := (u.Torque.Z - (J.Y-J.X)*wx*wy - q.AngDrag*wz) / J.Z

	return State{
		x[3], x[4], x[5],
		ax, ay, az,
		qd.Real, qd.Imag, qd.Jmag, qd.Kmag,
		ax2, ay2, az2,
	}
}

// Step advances x by dt with RK4 under a zero-order-hold command.
func (q *Quadrotor) Step(x State, u flight.ControlCommand, dt float64) State {
	var scratch State

	q.k1 = q.Derive(x, u)
	for i := range scratch {
		scratch[i] = x[i] + dt*0.5*q.k1[i]
	}
	q.k2 = q.Derive(scratch, u)
	for i := range scratch {
		scratch[i] = x[i] + dt*0.5*q.k2[i]
	}
	q.k3 = q.Derive(scratch, u)
	for i := range scratch {
		scratch[i] = x[i] + dt*q.k3[i]
	}
	q.k4 = q.Derive(scratch, u)

	var out State
	dt6 := dt / 6.0
	for i := range out {
		out[i] = x[i] + dt6*(q.k1[i]+2*q.k2[i]+2*q.k3[i]+q.k4[i])
	}

	n := geom.NormalizeQuat(out.Attitude())
	out[6], out[7], out[8], out[9] = n.Real, n.Imag, n.Jmag, n.Kmag
	return out
}

// Energy is kinetic (translational and rotational) plus potential energy.
func (q *Quadrotor) Energy(x State) float64 {
	v := x.Velocity()
	w := x.AngularVelocity()
	ke := 0.5 * q.Mass * r3.Norm2(v)
	keRot := 0.5 * (q.Inertia.X*w.X*w.X + q.Inertia.Y*w.Y*w.Y + q.Inertia.Z*w.Z*w.Z)
	pe := q.Mass * q.Gravity * x[2]
	return ke + keRot + pe
}
