package control

import (
	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// PositionPID is the feedback part of the position loop. The integral of
// position error is clamped per axis to Limit and bled by BleedFactor on
// every update while |error| exceeds BleedThreshold.
type PositionPID struct {
	Kp, Ki, Kd     r3.Vec
	Limit          float64
	BleedThreshold float64
	BleedFactor    float64

	integral r3.Vec
}

func NewPositionPID(cfg Config) *PositionPID {
	return &PositionPID{
		Kp:             cfg.KpPos,
		Ki:             cfg.KiPos,
		Kd:             cfg.KdPos,
		Limit:          cfg.IntegralLimit,
		BleedThreshold: cfg.IntegralBleedThreshold,
		BleedFactor:    cfg.IntegralBleedFactor,
	}
}

// Update integrates posErr over dt and returns the feedback acceleration
// Kp·e + Ki·∫e + Kd·ė, with velErr standing in for ė.
func (p *PositionPID) Update(posErr, velErr r3.Vec, dt float64) r3.Vec {
	p.integral = geom.ClampAbs(r3.Add(p.integral, r3.Scale(dt, posErr)), p.Limit)
	if r3.Norm(posErr) > p.BleedThreshold {
		p.integral = r3.Scale(p.BleedFactor, p.integral)
	}

	out := geom.Hadamard(p.Kp, posErr)
	out = r3.Add(out, geom.Hadamard(p.Ki, p.integral))
	return r3.Add(out, geom.Hadamard(p.Kd, velErr))
}

func (p *PositionPID) Integral() r3.Vec {
	return p.integral
}

// Reset clears the integral.
func (p *PositionPID) Reset() {
	p.integral = r3.Vec{}
}
