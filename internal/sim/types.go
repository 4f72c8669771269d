package sim

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/metrics"
	"github.com/san-kum/edgeflight/internal/planner"
)

type Metric interface {
	Name() string
	Observe(o metrics.Observation)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(o metrics.Observation)
}

// Config sets the closed-loop timing. The planner runs every PlanEvery
// controller ticks.
type Config struct {
	ControlDt     float64
	PlanEvery     int
	Duration      float64
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		ControlDt:     0.01,
		PlanEvery:     10,
		Duration:      10,
		ValidateState: true,
	}
}

type Result struct {
	RunID     uuid.UUID
	States    []flight.DroneState
	Commands  []flight.ControlCommand
	Setpoints []flight.Setpoint
	Times     []float64
	Metrics   map[string]float64

	StepsTaken          int
	Replans             int
	Fallbacks           int
	FailsafeActivations int
	PlannerStats        planner.Stats
	Errors              []error
}

// Final returns the last recorded state.
func (r *Result) Final() flight.DroneState {
	return r.States[len(r.States)-1]
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("sim error at t=%.4f (step %d): %s", e.Time, e.Step, e.Message)
}
