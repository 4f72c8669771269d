package planner

import (
	"math"

	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// guideClearance is how far outside the solver keep-out radius the guidance
// law routes around an obstacle.
const guideClearance = 0.35

// guideRadii are the keep-out radii the guidance law steers around.
func (s *solver) guideRadii(obstacles []flight.Obstacle) []float64 {
	c := s.cfg
	radii := make([]float64, len(obstacles))
	for i, o := range obstacles {
		radii[i] = o.Radius + c.ObstacleMargin + c.ClearanceBuffer + guideClearance
	}
	return radii
}

// reachable moves goal out of every keep-out sphere that contains it, onto
// the sphere surface on the goal's side (or the side facing from).
func reachable(from, goal r3.Vec, obstacles []flight.Obstacle, radii []float64) r3.Vec {
	for pass := 0; pass < 3; pass++ {
		moved := false
		for i, o := range obstacles {
			off := r3.Sub(goal, o.Center)
			if r3.Norm(off) >= radii[i] {
				continue
			}
			out := geom.UnitOr(off, 1e-9, geom.UnitOr(r3.Sub(from, o.Center), 1e-9, geom.Up))
			goal = r3.Add(o.Center, r3.Scale(radii[i], out))
			moved = true
		}
		if !moved {
			break
		}
	}
	return goal
}

// blocking returns the first obstacle along the segment from pos to target
// whose keep-out sphere the segment enters.
func blocking(pos, target r3.Vec, obstacles []flight.Obstacle, radii []float64) (int, bool) {
	seg := r3.Sub(target, pos)
	l2 := r3.Norm2(seg)
	first, best := -1, math.Inf(1)
	for i, o := range obstacles {
		var t float64
		if l2 > 0 {
			t = geom.Clamp(r3.Dot(r3.Sub(o.Center, pos), seg)/l2, 0, 1)
		}
		closest := r3.Add(pos, r3.Scale(t, seg))
		if r3.Norm(r3.Sub(o.Center, closest)) < radii[i] && t < best {
			first, best = i, t
		}
	}
	return first, first >= 0
}

// detour is the unit direction that skirts the sphere of radius r around
// center on the way to target: the tangent from pos when outside, turning
// outward in proportion to the depth when inside.
func detour(pos, target, center r3.Vec, r float64) r3.Vec {
	toC := r3.Sub(center, pos)
	dc := r3.Norm(toC)
	toT := r3.Sub(target, pos)
	c := geom.UnitOr(toC, 1e-9, geom.UnitOr(toT, 1e-9, r3.Vec{X: 1}))

	// side is the part of the way to target across the obstacle; straight
	// at the center it is the horizontal right-hand side
	across := r3.Sub(toT, r3.Scale(r3.Dot(toT, c), c))
	side := geom.UnitOr(across, 1e-6, geom.UnitOr(r3.Cross(c, geom.Up), 1e-6, r3.Vec{Y: 1}))

	if dc > r {
		sinB := r / dc
		cosB := math.Sqrt(1 - sinB*sinB)
		return r3.Add(r3.Scale(cosB, c), r3.Scale(sinB, side))
	}
	out := math.Min((r-dc)/(0.1*r), 1)
	return r3.Unit(r3.Sub(r3.Scale(1-out, side), r3.Scale(out, c)))
}
