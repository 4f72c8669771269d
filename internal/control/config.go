package control

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	DefaultMass      = 1.0
	DefaultGravity   = 9.81
	DefaultMinThrust = 2.0
	DefaultMaxThrust = 30.0
	DefaultMaxTilt   = 0.6
	DefaultMaxTorque = 0.5
)

// Config is the immutable controller tuning. Gains are per axis.
type Config struct {
	Mass    float64
	Gravity float64

	MinThrust float64
	MaxThrust float64
	// ThrustSoftBand is the width of the smooth knee at each thrust bound.
	ThrustSoftBand float64
	MaxTilt        float64
	MaxTorque      float64

	KpPos r3.Vec
	KiPos r3.Vec
	KdPos r3.Vec
	// FFPos and FFVel form the feedforward group. FFPos acts on the same
	// position error as KpPos; the two are tuned together.
	FFPos r3.Vec
	FFVel r3.Vec

	KpAtt r3.Vec
	KdAtt r3.Vec

	IntegralLimit          float64
	IntegralBleedThreshold float64
	IntegralBleedFactor    float64

	// MaxDt is the longest control period accepted before the loop is
	// considered stalled.
	MaxDt float64

	PositionErrorThreshold float64
	VelocityErrorThreshold float64
	HysteresisTicks        int
}

func DefaultConfig() Config {
	return Config{
		Mass:           DefaultMass,
		Gravity:        DefaultGravity,
		MinThrust:      DefaultMinThrust,
		MaxThrust:      DefaultMaxThrust,
		ThrustSoftBand: 1.0,
		MaxTilt:        DefaultMaxTilt,
		MaxTorque:      DefaultMaxTorque,

		KpPos: r3.Vec{X: 4, Y: 4, Z: 6},
		KiPos: r3.Vec{X: 0.4, Y: 0.4, Z: 0.8},
		KdPos: r3.Vec{X: 3, Y: 3, Z: 4},
		FFPos: r3.Vec{X: 0.5, Y: 0.5, Z: 0.5},
		FFVel: r3.Vec{X: 1, Y: 1, Z: 1},

		KpAtt: r3.Vec{X: 2, Y: 2, Z: 1},
		KdAtt: r3.Vec{X: 0.25, Y: 0.25, Z: 0.15},

		IntegralLimit:          2.0,
		IntegralBleedThreshold: 1.0,
		IntegralBleedFactor:    0.9,

		MaxDt: 0.05,

		PositionErrorThreshold: 3.0,
		VelocityErrorThreshold: 3.0,
		HysteresisTicks:        100,
	}
}

// HoverThrust is m·g limited to the thrust range.
func (c Config) HoverThrust() float64 {
	return math.Max(c.MinThrust, math.Min(c.MaxThrust, c.Mass*c.Gravity))
}

func (c Config) Validate() error {
	var errs []error
	if !(c.Mass > 0) {
		errs = append(errs, fmt.Errorf("mass must be positive, got %v", c.Mass))
	}
	if !(c.Gravity > 0) {
		errs = append(errs, fmt.Errorf("gravity must be positive, got %v", c.Gravity))
	}
	if !(c.MinThrust >= 0 && c.MaxThrust > c.MinThrust) {
		errs = append(errs, fmt.Errorf("thrust range [%v, %v] invalid", c.MinThrust, c.MaxThrust))
	}
	if !(c.MaxTilt > 0 && c.MaxTilt < math.Pi/2) {
		errs = append(errs, fmt.Errorf("max tilt must be in (0, pi/2), got %v", c.MaxTilt))
	}
	if !(c.MaxTorque > 0) {
		errs = append(errs, fmt.Errorf("max torque must be positive, got %v", c.MaxTorque))
	}
	if !(c.IntegralLimit >= 0) {
		errs = append(errs, fmt.Errorf("integral limit must be non-negative, got %v", c.IntegralLimit))
	}
	if !(c.IntegralBleedFactor >= 0 && c.IntegralBleedFactor <= 1) {
		errs = append(errs, fmt.Errorf("integral bleed factor must be in [0, 1], got %v", c.IntegralBleedFactor))
	}
	if !(c.MaxDt > 0) {
		errs = append(errs, fmt.Errorf("max dt must be positive, got %v", c.MaxDt))
	}
	if c.HysteresisTicks < 1 {
		errs = append(errs, fmt.Errorf("hysteresis ticks must be at least 1, got %d", c.HysteresisTicks))
	}
	return errors.Join(errs...)
}
