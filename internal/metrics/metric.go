// Package metrics scores closed-loop flights. Each metric folds one
// Observation per control tick into a single number.
package metrics

import "github.com/san-kum/edgeflight/internal/flight"

// Observation is what a metric sees on one control tick.
type Observation struct {
	T        float64
	State    flight.DroneState
	Setpoint flight.Setpoint
	Command  flight.ControlCommand
}
