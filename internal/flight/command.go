package flight

import (
	"math"

	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// ControlCommand is the actuator request for one control tick: collective
// thrust in newtons and body-frame torque in newton-metres.
type ControlCommand struct {
	Thrust float64
	Torque r3.Vec
}

func (c ControlCommand) IsFinite() bool {
	return !math.IsNaN(c.Thrust) && !math.IsInf(c.Thrust, 0) && geom.Finite(c.Torque)
}

// Setpoint is the desired flat output the controller tracks on one tick.
type Setpoint struct {
	Position     r3.Vec
	Velocity     r3.Vec
	Acceleration r3.Vec
	Yaw          float64
	YawRate      float64
}

// HoldAt is a setpoint that holds position p at the given yaw.
func HoldAt(p r3.Vec, yaw float64) Setpoint {
	return Setpoint{Position: p, Yaw: yaw}
}

// Obstacle is a spherical keep-out region reported by perception.
type Obstacle struct {
	Center r3.Vec
	Radius float64
}

// Clearance is the distance from p to the obstacle surface, negative inside.
func (o Obstacle) Clearance(p r3.Vec) float64 {
	return r3.Norm(r3.Sub(p, o.Center)) - o.Radius
}

func (o Obstacle) Valid() bool {
	return geom.Finite(o.Center) && o.Radius > 0 && !math.IsInf(o.Radius, 0)
}
