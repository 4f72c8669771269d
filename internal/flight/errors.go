package flight

import (
	"errors"
	"fmt"
)

// Planning failures. The optimizer recovers from all of them with a
// fallback trajectory and reports the cause in its plan report.
var (
	// ErrInfeasible indicates no iterate satisfied the keep-out and
	// actuator constraints within the iteration budget.
	ErrInfeasible = errors.New("planner: constraints not satisfied")

	// ErrNumericalDivergence indicates a non-finite or implausible iterate.
	ErrNumericalDivergence = errors.New("planner: numerical divergence")

	// ErrInvalidInput indicates a non-finite state, goal or obstacle.
	ErrInvalidInput = errors.New("planner: invalid input")
)

// Control failures. The controller recovers from both by holding the last
// valid thrust with zero torque.
var (
	// ErrInvalidTiming indicates a non-positive or stalled control period.
	ErrInvalidTiming = errors.New("control: invalid timing")

	// ErrNumericalFault indicates a non-finite input or output, or a
	// recovered panic inside the control law.
	ErrNumericalFault = errors.New("control: numerical fault")
)

// PlanningError wraps a planning failure with solver context.
type PlanningError struct {
	Mode       string
	Iterations int
	Detail     string
	Wrapped    error
}

func (e *PlanningError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (mode=%s, iterations=%d)", e.Wrapped, e.Mode, e.Iterations)
	}
	return fmt.Sprintf("%v: %s (mode=%s, iterations=%d)", e.Wrapped, e.Detail, e.Mode, e.Iterations)
}

func (e *PlanningError) Unwrap() error {
	return e.Wrapped
}

// ControlError wraps a control failure with the tick it occurred on.
type ControlError struct {
	Tick    uint64
	Dt      float64
	Detail  string
	Wrapped error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("tick %d (dt=%.6f): %v: %s", e.Tick, e.Dt, e.Wrapped, e.Detail)
}

func (e *ControlError) Unwrap() error {
	return e.Wrapped
}
