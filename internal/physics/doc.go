// Package physics provides the rigid-body quadrotor used to close the loop
// around the planner and controller in simulation.
//
// The state is a fixed 13-vector: world position, world velocity, attitude
// quaternion (scalar first) and body angular velocity. [Quadrotor.Step]
// advances it with classic RK4 and renormalises the quaternion.
//
//	q := physics.NewQuadrotor()
//	x := physics.FromDroneState(flight.Hover(r3.Vec{Z: 1}))
//	x = q.Step(x, flight.ControlCommand{Thrust: q.HoverThrust()}, 0.002)
package physics
