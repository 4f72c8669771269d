// Package flight holds the value types exchanged between the trajectory
// optimizer and the tracking controller.
//
// A [Trajectory] is built once by [NewTrajectory] and is read-only after
// that; the planner hands a new one to the controller through a [Handoff],
// which swaps a pointer atomically so a reader never sees a partially
// written trajectory.
package flight
