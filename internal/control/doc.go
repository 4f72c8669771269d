// Package control provides the geometric SE(3) tracking controller.
//
// [Geometric] converts the vehicle state and a desired flat output
// (position, velocity, acceleration, yaw, yaw rate) into collective thrust
// and body torque:
//
//   - position loop: [PositionPID] feedback plus a separate feedforward
//     gain group on position error and desired acceleration
//   - thrust vector: smooth saturation into the actuator range and a tilt
//     limit on the desired body z-axis
//   - attitude loop: rotation error on SO(3), eR = ½·vee(RdᵀR − RᵀRd)
//
// # Failsafe
//
// The controller never returns NaN or an out-of-range command. Invalid
// timing, non-finite inputs and recovered panics switch it to failsafe at
// once; sustained tracking divergence switches it through a hysteresis
// counter. In failsafe it holds the last valid thrust with zero torque.
//
//	ctrl, _ := control.New(control.DefaultConfig())
//	cmd := ctrl.ComputeControl(state, traj.SetpointAt(t), dt)
//	if ctrl.Status().FailsafeActive { ... }
//
// A Geometric is owned by one control loop and is not safe for concurrent
// use.
package control
