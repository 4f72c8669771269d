package planner

import (
	"fmt"
	"math"

	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// InitMode is how a plan call seeds the solver. It is chosen once per call.
type InitMode int

const (
	ColdStart InitMode = iota
	WarmStart
	FastReplan
)

func (m InitMode) String() string {
	switch m {
	case ColdStart:
		return "cold"
	case WarmStart:
		return "warm"
	case FastReplan:
		return "fast_replan"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const (
	// guideTau is the velocity time constant of the guidance profile.
	guideTau = 0.5

	// correctionRate is the natural frequency of the warm-start PD
	// correction, which also sets how fast it fades along the horizon.
	correctionRate = 2.0

	coldSpeedFraction = 0.8
)

// prior is the last returned solution, kept for warm starts.
type prior struct {
	solution
	goal r3.Vec
}

// selectMode picks the initialisation from the prior solution, the jump
// between the new state and where the prior expected it, and whether the
// goal moved.
func selectMode(p *prior, p0 r3.Vec, goalChanged bool, resetJump float64) InitMode {
	switch {
	case p == nil:
		return ColdStart
	case !(r3.Norm(r3.Sub(p0, p.pos[1])) <= resetJump):
		return ColdStart
	case goalChanged:
		return FastReplan
	default:
		return WarmStart
	}
}

// initialGuess seeds the solver for mode. A warm or fast-replan guess that
// the new state has pushed into a keep-out zone gives way to fresh guidance
// when that is clearer.
func (s *solver) initialGuess(mode InitMode, p *prior, pr problem) []r3.Vec {
	speed := coldSpeedFraction * s.cfg.MaxVelocity
	var acc []r3.Vec
	switch mode {
	case WarmStart:
		acc = s.shifted(p, pr, s.n-1, speed)
	case FastReplan:
		acc = s.shifted(p, pr, s.cfg.WarmSegment, speed)
	default:
		return s.guide(pr.p0, pr.v0, pr.goal, pr.obstacles, speed, s.n)
	}
	if len(pr.obstacles) == 0 {
		return acc
	}
	kept := s.clearance(pr, s.candidate(pr, s.project(acc)))
	if kept >= 0 {
		return acc
	}
	fresh := s.guide(pr.p0, pr.v0, pr.goal, pr.obstacles, speed, s.n)
	if s.clearance(pr, s.candidate(pr, fresh)) > kept {
		return fresh
	}
	return acc
}

// shifted advances the prior one step, keeps its first keep accelerations
// with a fading PD correction toward the new state, and fills the rest with
// guidance toward the goal.
func (s *solver) shifted(p *prior, pr problem, keep int, speed float64) []r3.Vec {
	n := s.n
	dt := s.cfg.Dt
	keep = min(max(keep, 0), n-1)

	dp := r3.Sub(pr.p0, p.pos[1])
	dv := r3.Sub(pr.v0, p.vel[1])
	w := correctionRate
	corr := r3.Scale(-1, r3.Add(r3.Scale(w*w, dp), r3.Scale(2*w, dv)))

	acc := make([]r3.Vec, 0, n)
	pos, vel := pr.p0, pr.v0
	for k := 0; k < keep; k++ {
		a := r3.Add(p.acc[k+1], r3.Scale(math.Exp(-w*float64(k)*dt), corr))
		acc = append(acc, a)
		pos, vel = s.advance(pos, vel, a)
	}
	return append(acc, s.guide(pos, vel, pr.goal, pr.obstacles, speed, n-keep)...)
}

// guide is a speed-limited approach to goal that brakes to arrive at rest.
// It skirts the first keep-out sphere in its way along the tangent and
// stops on the surface of any sphere that contains goal. Its accelerations
// stay well inside the thrust and tilt limits.
func (s *solver) guide(pos, vel, goal r3.Vec, obstacles []flight.Obstacle, speed float64, steps int) []r3.Vec {
	aMax := s.guideAccel()
	brake := 0.5 * aMax
	radii := s.guideRadii(obstacles)
	target := reachable(pos, goal, obstacles, radii)
	acc := make([]r3.Vec, steps)
	for k := range acc {
		e := r3.Sub(target, pos)
		dist := r3.Norm(e)
		var want r3.Vec
		if dist > 1e-6 {
			dir := r3.Scale(1/dist, e)
			if i, ok := blocking(pos, target, obstacles, radii); ok {
				dir = detour(pos, target, obstacles[i].Center, radii[i])
			}
			want = r3.Scale(math.Min(speed, math.Sqrt(2*brake*dist)), dir)
		}
		acc[k] = geom.ClampNorm(r3.Scale(1/guideTau, r3.Sub(want, vel)), aMax)
		pos, vel = s.advance(pos, vel, acc[k])
	}
	return acc
}

// decelerate brings vel to rest as fast as the guidance envelope allows.
func (s *solver) decelerate(vel r3.Vec, steps int) []r3.Vec {
	aMax := s.guideAccel()
	dt := s.cfg.Dt
	acc := make([]r3.Vec, steps)
	for k := range acc {
		acc[k] = geom.ClampNorm(r3.Scale(-1/dt, vel), aMax)
		vel = r3.Add(vel, r3.Scale(dt, acc[k]))
	}
	return acc
}

func (s *solver) guideAccel() float64 {
	c := s.cfg
	a := 0.5 * c.Gravity * math.Tan(c.MaxTilt)
	// keep the downward case above minimum thrust
	return math.Min(a, 0.5*(c.Gravity-c.MinThrust/c.Mass))
}

func (s *solver) advance(pos, vel, a r3.Vec) (r3.Vec, r3.Vec) {
	dt := s.cfg.Dt
	pos = r3.Add(pos, r3.Add(r3.Scale(dt, vel), r3.Scale(0.5*dt*dt, a)))
	return pos, r3.Add(vel, r3.Scale(dt, a))
}
