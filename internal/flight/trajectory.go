package flight

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Source records how a trajectory was produced.
type Source int

const (
	SourceOptimized Source = iota
	SourceFallbackStraight
	SourceFallbackDecelerate
	SourceHover
)

func (s Source) String() string {
	switch s {
	case SourceOptimized:
		return "optimized"
	case SourceFallbackStraight:
		return "fallback_straight"
	case SourceFallbackDecelerate:
		return "fallback_decelerate"
	case SourceHover:
		return "hover"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Fallback reports whether the trajectory was synthesised analytically
// rather than returned by the solver.
func (s Source) Fallback() bool {
	return s != SourceOptimized
}

// Sample is one knot of a trajectory. Thrust is the world-frame thrust
// vector in newtons; BodyZ and BodyRate are the attitude projections derived
// from it when the trajectory is built. BodyRate is the rate at which the
// thrust axis turns toward the next sample, expressed in the body frame
// given by BodyZ and Yaw. It carries no yaw component.
type Sample struct {
	T            float64
	Position     r3.Vec
	Velocity     r3.Vec
	Acceleration r3.Vec
	Thrust       r3.Vec
	Yaw          float64
	BodyZ        r3.Vec
	BodyRate     r3.Vec
}

// Trajectory is an immutable, fixed-length sequence of samples spaced by Dt.
type Trajectory struct {
	seq     uint64
	dt      float64
	source  Source
	samples []Sample
}

// NewTrajectory validates samples and freezes them into a Trajectory. The
// slice is copied; the caller may reuse it.
func NewTrajectory(samples []Sample, dt float64, source Source, seq uint64) (*Trajectory, error) {
	if len(samples) == 0 {
		return nil, errors.New("trajectory: no samples")
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("trajectory: dt must be positive, got %v", dt)
	}

	tol := 1e-9 * math.Max(1, math.Abs(samples[len(samples)-1].T))
	for i := range samples {
		s := samples[i]
		if !geom.Finite(s.Position) || !geom.Finite(s.Velocity) || !geom.Finite(s.Acceleration) {
			return nil, fmt.Errorf("trajectory: sample %d not finite", i)
		}
		if i == 0 {
			continue
		}
		if step := s.T - samples[i-1].T; math.Abs(step-dt) > tol {
			return nil, fmt.Errorf("trajectory: sample %d spaced %v, want %v", i, step, dt)
		}
	}

	out := make([]Sample, len(samples))
	copy(out, samples)
	for i := range out {
		out[i].BodyZ = geom.UnitOr(out[i].Thrust, 1e-9, geom.Up)
	}
	for i := 0; i+1 < len(out); i++ {
		world := r3.Scale(1/dt, r3.Cross(out[i].BodyZ, out[i+1].BodyZ))
		frame := geom.FrameFromZYaw(out[i].BodyZ, out[i].Yaw)
		out[i].BodyRate = geom.MulVec(frame.T(), world)
	}
	if n := len(out); n > 1 {
		out[n-1].BodyRate = out[n-2].BodyRate
	}

	return &Trajectory{seq: seq, dt: dt, source: source, samples: out}, nil
}

func (t *Trajectory) Len() int           { return len(t.samples) }
func (t *Trajectory) Dt() float64        { return t.dt }
func (t *Trajectory) Source() Source     { return t.source }
func (t *Trajectory) Seq() uint64        { return t.seq }
func (t *Trajectory) At(i int) Sample    { return t.samples[i] }
func (t *Trajectory) Final() Sample      { return t.samples[len(t.samples)-1] }
func (t *Trajectory) StartTime() float64 { return t.samples[0].T }
func (t *Trajectory) EndTime() float64   { return t.Final().T }

// Samples returns a copy of the samples.
func (t *Trajectory) Samples() []Sample {
	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	return out
}

// Positions returns a copy of the sample positions.
func (t *Trajectory) Positions() []r3.Vec {
	out := make([]r3.Vec, len(t.samples))
	for i, s := range t.samples {
		out[i] = s.Position
	}
	return out
}

// SetpointAt interpolates the trajectory at absolute time tm. Before the
// first sample it returns sample 0; past the last it holds the final
// position with zero velocity and acceleration.
func (t *Trajectory) SetpointAt(tm float64) Setpoint {
	first := t.samples[0]
	if tm <= first.T || len(t.samples) == 1 {
		return setpointOf(first)
	}
	last := t.Final()
	if tm >= last.T {
		return HoldAt(last.Position, last.Yaw)
	}

	i := int((tm - first.T) / t.dt)
	if i >= len(t.samples)-1 {
		i = len(t.samples) - 2
	}
	a, b := t.samples[i], t.samples[i+1]
	f := geom.Clamp((tm-a.T)/t.dt, 0, 1)

	return Setpoint{
		Position:     lerp(a.Position, b.Position, f),
		Velocity:     lerp(a.Velocity, b.Velocity, f),
		Acceleration: lerp(a.Acceleration, b.Acceleration, f),
		Yaw:          a.Yaw + f*(b.Yaw-a.Yaw),
		YawRate:      (b.Yaw - a.Yaw) / t.dt,
	}
}

func setpointOf(s Sample) Setpoint {
	return Setpoint{
		Position:     s.Position,
		Velocity:     s.Velocity,
		Acceleration: s.Acceleration,
		Yaw:          s.Yaw,
	}
}

func lerp(a, b r3.Vec, f float64) r3.Vec {
	return r3.Add(a, r3.Scale(f, r3.Sub(b, a)))
}
