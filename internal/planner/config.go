package planner

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig is returned by New when the tuning is unusable.
var ErrInvalidConfig = errors.New("planner: invalid config")

// Config is the immutable optimizer tuning.
type Config struct {
	Horizon int
	Dt      float64

	Mass    float64
	Gravity float64

	MaxVelocity float64
	MinThrust   float64
	MaxThrust   float64
	MaxTilt     float64

	ObstacleMargin  float64
	// ClearanceBuffer inflates keep-out radii inside the solver. It leaves
	// room for the final thrust projection and for tracking error in flight.
	ClearanceBuffer float64

	PositionWeight   float64
	TerminalWeight   float64
	VelocityWeight   float64
	SmoothnessWeight float64
	EffortWeight     float64

	MaxIterations        int
	FastReplanIterations int
	Tolerance            float64

	PenaltyInitial float64
	PenaltyGrowth  float64
	PenaltyMax     float64

	GoalChangeThreshold float64
	ResetJumpThreshold  float64
	// WarmSegment is how many shifted prior steps a fast replan keeps.
	WarmSegment         int
	// ArrivalRadius is the goal distance inside which a plan that starts
	// to recede from the goal is settled into a stop. Zero disables it.
	ArrivalRadius       float64

	MaxStepDisplacement   float64
	VelocityTolerance     float64
	FallbackSpeedFraction float64

	StatsWindow   int
	LatencyBudget time.Duration
}

func DefaultConfig() Config {
	return Config{
		Horizon: 50,
		Dt:      0.1,

		Mass:    1.0,
		Gravity: 9.81,

		MaxVelocity: 5.0,
		MinThrust:   2.0,
		MaxThrust:   30.0,
		MaxTilt:     0.6,

		ObstacleMargin:  0.5,
		ClearanceBuffer: 0.3,

		PositionWeight:   1.0,
		TerminalWeight:   10.0,
		VelocityWeight:   0.3,
		SmoothnessWeight: 0.05,
		EffortWeight:     0.005,

		MaxIterations:        15,
		FastReplanIterations: 8,
		Tolerance:            5e-2,

		PenaltyInitial: 10,
		PenaltyGrowth:  5,
		PenaltyMax:     1e6,

		GoalChangeThreshold: 0.75,
		ResetJumpThreshold:  10.0,
		WarmSegment:         10,
		ArrivalRadius:       0.5,

		MaxStepDisplacement:   1.0,
		VelocityTolerance:     0.05,
		FallbackSpeedFraction: 0.5,

		StatsWindow:   100,
		LatencyBudget: 15 * time.Millisecond,
	}
}

// HoverThrust is the thrust magnitude that cancels gravity.
func (c Config) HoverThrust() float64 {
	return c.Mass * c.Gravity
}

func (c Config) Validate() error {
	var errs []error
	if c.Horizon < 2 {
		errs = append(errs, fmt.Errorf("horizon must be at least 2, got %d", c.Horizon))
	}
	if !(c.Dt > 0) || math.IsInf(c.Dt, 0) {
		errs = append(errs, fmt.Errorf("dt must be positive, got %v", c.Dt))
	}
	if !(c.Mass > 0) || !(c.Gravity > 0) {
		errs = append(errs, fmt.Errorf("mass and gravity must be positive, got %v, %v", c.Mass, c.Gravity))
	}
	if !(c.MaxVelocity > 0) {
		errs = append(errs, fmt.Errorf("max velocity must be positive, got %v", c.MaxVelocity))
	}
	if !(c.MinThrust >= 0 && c.MaxThrust > c.MinThrust) {
		errs = append(errs, fmt.Errorf("thrust range [%v, %v] invalid", c.MinThrust, c.MaxThrust))
	}
	if c.HoverThrust() < c.MinThrust || c.HoverThrust() > c.MaxThrust {
		errs = append(errs, fmt.Errorf("hover thrust %v outside [%v, %v]", c.HoverThrust(), c.MinThrust, c.MaxThrust))
	}
	if !(c.MaxTilt > 0 && c.MaxTilt < math.Pi/2) {
		errs = append(errs, fmt.Errorf("max tilt must be in (0, pi/2), got %v", c.MaxTilt))
	}
	if c.ObstacleMargin < 0 || c.ClearanceBuffer < 0 {
		errs = append(errs, errors.New("obstacle margin and clearance buffer must be non-negative"))
	}
	if !(c.EffortWeight > 0) {
		errs = append(errs, fmt.Errorf("effort weight must be positive, got %v", c.EffortWeight))
	}
	if c.PositionWeight < 0 || c.TerminalWeight < 0 || c.VelocityWeight < 0 || c.SmoothnessWeight < 0 {
		errs = append(errs, errors.New("cost weights must be non-negative"))
	}
	if c.MaxIterations < 1 || c.FastReplanIterations < 1 {
		errs = append(errs, fmt.Errorf("iteration budgets must be positive, got %d, %d", c.MaxIterations, c.FastReplanIterations))
	}
	if !(c.Tolerance > 0) {
		errs = append(errs, fmt.Errorf("tolerance must be positive, got %v", c.Tolerance))
	}
	if !(c.PenaltyInitial > 0) || c.PenaltyGrowth < 1 || c.PenaltyMax < c.PenaltyInitial {
		errs = append(errs, errors.New("penalty schedule invalid"))
	}
	if !(c.GoalChangeThreshold > 0) || !(c.ResetJumpThreshold > 0) {
		errs = append(errs, errors.New("goal change and reset thresholds must be positive"))
	}
	if !(c.ArrivalRadius >= 0) {
		errs = append(errs, fmt.Errorf("arrival radius must be non-negative, got %v", c.ArrivalRadius))
	}
	if c.WarmSegment < 0 {
		errs = append(errs, fmt.Errorf("warm segment must be non-negative, got %d", c.WarmSegment))
	}
	if !(c.MaxStepDisplacement > 0) {
		errs = append(errs, fmt.Errorf("max step displacement must be positive, got %v", c.MaxStepDisplacement))
	}
	if !(c.FallbackSpeedFraction > 0 && c.FallbackSpeedFraction <= 1) {
		errs = append(errs, fmt.Errorf("fallback speed fraction must be in (0, 1], got %v", c.FallbackSpeedFraction))
	}
	if c.StatsWindow < 1 {
		errs = append(errs, fmt.Errorf("stats window must be positive, got %d", c.StatsWindow))
	}
	return errors.Join(errs...)
}
