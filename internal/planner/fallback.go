package planner

import (
	"fmt"
	"math"

	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// check decides whether a rolled-out solution may be flown: finite, no
// single step longer than MaxStepDisplacement, every sample after the first
// outside radius+margin of every obstacle, and speeds within tolerance.
func (s *solver) check(pr problem, sol solution) error {
	c := s.cfg
	for k := 0; k < s.n; k++ {
		if !geom.Finite(sol.pos[k]) || !geom.Finite(sol.vel[k]) || !geom.Finite(sol.acc[k]) {
			return fmt.Errorf("%w: sample %d not finite", flight.ErrNumericalDivergence, k)
		}
	}
	vmax := c.MaxVelocity * (1 + c.VelocityTolerance)
	for k := 1; k < s.n; k++ {
		if d := r3.Norm(r3.Sub(sol.pos[k], sol.pos[k-1])); d > c.MaxStepDisplacement {
			return fmt.Errorf("%w: step %d moves %.3f m", flight.ErrNumericalDivergence, k, d)
		}
		if v := r3.Norm(sol.vel[k]); v > vmax {
			return fmt.Errorf("%w: speed %.3f m/s at sample %d", flight.ErrInfeasible, v, k)
		}
		for i, o := range pr.obstacles {
			if o.Clearance(sol.pos[k]) < c.ObstacleMargin {
				return fmt.Errorf("%w: sample %d inside obstacle %d", flight.ErrInfeasible, k, i)
			}
		}
	}
	return nil
}

// fallback synthesises a conservative trajectory: the guided approach at
// FallbackSpeedFraction of MaxVelocity when it keeps clear of every
// obstacle, otherwise whichever of that approach and a stop in place keeps
// the larger clearance.
func (s *solver) fallback(pr problem) (solution, flight.Source) {
	speed := s.cfg.FallbackSpeedFraction * s.cfg.MaxVelocity
	approach := s.candidate(pr, s.guide(pr.p0, pr.v0, pr.goal, pr.obstacles, speed, s.n))
	ca := s.clearance(pr, approach)
	if ca >= 0 {
		return approach, flight.SourceFallbackStraight
	}

	stop := s.candidate(pr, s.decelerate(pr.v0, s.n))
	if s.clearance(pr, stop) >= ca {
		return stop, flight.SourceFallbackDecelerate
	}
	return approach, flight.SourceFallbackStraight
}

func (s *solver) candidate(pr problem, acc []r3.Vec) solution {
	sol := solution{acc: acc}
	sol.pos, sol.vel = s.rollout(pr.p0, pr.v0, acc)
	return sol
}

// clearance is the smallest distance by which a sample after the first
// stays outside radius+margin of an obstacle; negative means an intrusion.
func (s *solver) clearance(pr problem, sol solution) float64 {
	worst := math.Inf(1)
	for k := 1; k < s.n; k++ {
		for _, o := range pr.obstacles {
			worst = math.Min(worst, o.Clearance(sol.pos[k])-s.cfg.ObstacleMargin)
		}
	}
	return worst
}

// arrive settles the tail of sol into a stop once the plan has come within
// ArrivalRadius of the goal and would start drifting away again. The stop
// begins at the latest sample from which the distance to the goal keeps
// shrinking or holds.
func (s *solver) arrive(pr problem, sol solution) solution {
	const slack = 1e-12
	dist := func(p r3.Vec) float64 { return r3.Norm(r3.Sub(p, pr.goal)) }

	turn := -1
	for k := 1; k < s.n; k++ {
		if d := dist(sol.pos[k-1]); d <= s.cfg.ArrivalRadius && dist(sol.pos[k]) > d+slack {
			turn = k
			break
		}
	}
	if turn < 0 {
		return sol
	}

	wasClear := s.clearance(pr, sol) >= 0
	for j := turn - 1; j >= 1; j-- {
		acc := append(append([]r3.Vec(nil), sol.acc[:j]...), s.decelerate(sol.vel[j], s.n-j)...)
		cand := s.candidate(pr, acc)
		settled := true
		for k := j + 1; k < s.n && settled; k++ {
			settled = dist(cand.pos[k]) <= dist(cand.pos[k-1])+slack
		}
		if settled && (!wasClear || s.clearance(pr, cand) >= 0) {
			return cand
		}
	}
	return sol
}

// hover holds p for the whole horizon.
func (s *solver) hover(p r3.Vec) solution {
	sol := solution{
		acc: make([]r3.Vec, s.n),
		pos: make([]r3.Vec, s.n),
		vel: make([]r3.Vec, s.n),
	}
	for k := range sol.pos {
		sol.pos[k] = p
	}
	return sol
}

// sanitize replaces non-finite parts of a state: position falls back to
// last, everything else to rest.
func sanitize(st flight.DroneState, last r3.Vec) flight.DroneState {
	if !geom.Finite(st.Position) {
		st.Position = last
	}
	if !geom.Finite(st.Velocity) {
		st.Velocity = r3.Vec{}
	}
	if !geom.QuatFinite(st.Attitude) {
		st.Attitude = geom.Identity
	}
	if !geom.Finite(st.AngularVelocity) {
		st.AngularVelocity = r3.Vec{}
	}
	if math.IsNaN(st.Timestamp) || math.IsInf(st.Timestamp, 0) {
		st.Timestamp = 0
	}
	return st
}
