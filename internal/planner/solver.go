package planner

import (
	"errors"
	"math"

	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	lineSearchSteps = 6

	// alignedNormal is the |cos| above which a keep-out normal is treated
	// as parallel to the direction of travel and biased sideways.
	alignedNormal = 0.95
	lateralBias   = 0.5
)

// problem is one snapshot of the inputs to a solve.
type problem struct {
	p0, v0    r3.Vec
	goal      r3.Vec
	obstacles []flight.Obstacle
	budget    int
}

// limits are the solver-side constraint bounds, tightened against the
// configured ones so the final projection stays admissible.
type limits struct {
	vel     float64
	accMin  float64
	accMax  float64
	tanTilt float64
	radii   []float64
}

type solution struct {
	acc, pos, vel []r3.Vec
}

type solveResult struct {
	solution
	iterations int
	converged  bool
	cost       float64
	violation  float64
	err        error
}

type merit struct {
	cost      float64
	penalty   float64
	violation float64
}

func (m merit) total(rho float64) float64 {
	return m.cost + rho*m.penalty
}

// solver holds everything that depends only on the configuration: the
// position sensitivities of the condensed rollout and the constant part of
// the per-axis Gauss-Newton Hessian.
type solver struct {
	cfg Config
	n   int
	sp  []float64
	h0  []float64
}

func newSolver(cfg Config) *solver {
	n := cfg.Horizon
	dt := cfg.Dt
	s := &solver{
		cfg: cfg,
		n:   n,
		sp:  make([]float64, n*n),
		h0:  make([]float64, n*n),
	}

	// p_k = p0 + k·dt·v0 + Σ_{j<k} dt²(k-j-½)·a_j
	for k := 1; k < n; k++ {
		for j := 0; j < k; j++ {
			s.sp[k*n+j] = dt * dt * (float64(k-j) - 0.5)
		}
	}

	wv := cfg.VelocityWeight * dt * dt
	for k := 1; k < n; k++ {
		w := s.weight(k)
		row := s.sp[k*n : k*n+k]
		for j := 0; j < k; j++ {
			for l := 0; l < k; l++ {
				s.h0[j*n+l] += w*row[j]*row[l] + wv
			}
		}
	}
	ws := cfg.SmoothnessWeight
	for k := 1; k < n; k++ {
		s.h0[k*n+k] += ws
		s.h0[(k-1)*n+k-1] += ws
		s.h0[k*n+k-1] -= ws
		s.h0[(k-1)*n+k] -= ws
	}
	we := cfg.EffortWeight * cfg.Mass * cfg.Mass
	for j := 0; j < n; j++ {
		s.h0[j*n+j] += we
	}
	return s
}

func (s *solver) weight(k int) float64 {
	if k == s.n-1 {
		return s.cfg.TerminalWeight
	}
	return s.cfg.PositionWeight
}

func (s *solver) limits(obstacles []flight.Obstacle) limits {
	c := s.cfg
	l := limits{
		vel:     0.97 * c.MaxVelocity,
		accMin:  1.02 * c.MinThrust / c.Mass,
		accMax:  0.98 * c.MaxThrust / c.Mass,
		tanTilt: math.Tan(0.97 * c.MaxTilt),
		radii:   make([]float64, len(obstacles)),
	}
	for i, o := range obstacles {
		l.radii[i] = o.Radius + c.ObstacleMargin + c.ClearanceBuffer
	}
	return l
}

// rollout integrates the exact discrete dynamics from p0, v0.
func (s *solver) rollout(p0, v0 r3.Vec, acc []r3.Vec) (pos, vel []r3.Vec) {
	dt := s.cfg.Dt
	pos = make([]r3.Vec, s.n)
	vel = make([]r3.Vec, s.n)
	pos[0], vel[0] = p0, v0
	for k := 0; k+1 < s.n; k++ {
		pos[k+1] = r3.Add(pos[k], r3.Add(r3.Scale(dt, vel[k]), r3.Scale(0.5*dt*dt, acc[k])))
		vel[k+1] = r3.Add(vel[k], r3.Scale(dt, acc[k]))
	}
	return pos, vel
}

func (s *solver) cost(pr problem, sol solution) float64 {
	c := s.cfg
	var f float64
	for k := 1; k < s.n; k++ {
		f += s.weight(k)*r3.Norm2(r3.Sub(sol.pos[k], pr.goal)) + c.VelocityWeight*r3.Norm2(sol.vel[k])
	}
	for k := 1; k < s.n; k++ {
		f += c.SmoothnessWeight * r3.Norm2(r3.Sub(sol.acc[k], sol.acc[k-1]))
	}
	we := c.EffortWeight * c.Mass * c.Mass
	for _, a := range sol.acc {
		f += we * r3.Norm2(a)
	}
	return f
}

func (s *solver) evaluate(pr problem, lim limits, sol solution) merit {
	m := merit{cost: s.cost(pr, sol)}
	add := func(c float64) {
		if c > 0 {
			m.penalty += c * c
			m.violation = math.Max(m.violation, c)
		}
	}
	for k := 1; k < s.n; k++ {
		add(r3.Norm(sol.vel[k]) - lim.vel)
		for i, o := range pr.obstacles {
			add(lim.radii[i] - r3.Norm(r3.Sub(sol.pos[k], o.Center)))
		}
	}
	g := s.cfg.Gravity
	for _, a := range sol.acc {
		b := r3.Add(a, r3.Vec{Z: g})
		nb := r3.Norm(b)
		add(nb - lim.accMax)
		add(lim.accMin - nb)
		add(math.Hypot(b.X, b.Y) - lim.tanTilt*b.Z)
	}
	return m
}

// system is the per-axis Gauss-Newton model: H·Δ = -g for each axis.
type system struct {
	h [3][]float64
	g [3][]float64
}

func (s *solver) assemble(pr problem, lim limits, sol solution, rho float64) *system {
	n := s.n
	c := s.cfg
	dt := c.Dt
	sys := &system{}
	for ax := 0; ax < 3; ax++ {
		sys.h[ax] = append([]float64(nil), s.h0...)
		sys.g[ax] = make([]float64, n)
	}

	for k := 1; k < n; k++ {
		e := comps(r3.Sub(sol.pos[k], pr.goal))
		v := comps(sol.vel[k])
		w := s.weight(k)
		row := s.sp[k*n : k*n+k]
		for ax := 0; ax < 3; ax++ {
			g := sys.g[ax]
			for j := 0; j < k; j++ {
				g[j] += w*row[j]*e[ax] + c.VelocityWeight*dt*v[ax]
			}
		}
	}
	for k := 1; k < n; k++ {
		d := comps(r3.Sub(sol.acc[k], sol.acc[k-1]))
		for ax := 0; ax < 3; ax++ {
			sys.g[ax][k] += c.SmoothnessWeight * d[ax]
			sys.g[ax][k-1] -= c.SmoothnessWeight * d[ax]
		}
	}
	we := c.EffortWeight * c.Mass * c.Mass
	for j, a := range sol.acc {
		ac := comps(a)
		for ax := 0; ax < 3; ax++ {
			sys.g[ax][j] += we * ac[ax]
		}
	}

	s.addVelocityPenalty(sys, lim, sol, rho)
	s.addObstaclePenalty(sys, pr, lim, sol, rho)
	s.addActuatorPenalty(sys, lim, sol, rho)
	return sys
}

func (s *solver) addVelocityPenalty(sys *system, lim limits, sol solution, rho float64) {
	n := s.n
	dt := s.cfg.Dt
	for k := 1; k < n; k++ {
		speed := r3.Norm(sol.vel[k])
		viol := speed - lim.vel
		if viol <= 0 {
			continue
		}
		u := comps(r3.Scale(1/speed, sol.vel[k]))
		for ax := 0; ax < 3; ax++ {
			hh := rho * u[ax] * u[ax] * dt * dt
			h, g := sys.h[ax], sys.g[ax]
			for j := 0; j < k; j++ {
				g[j] += rho * viol * u[ax] * dt
				for l := 0; l < k; l++ {
					h[j*n+l] += hh
				}
			}
		}
	}
}

func (s *solver) addObstaclePenalty(sys *system, pr problem, lim limits, sol solution, rho float64) {
	if len(pr.obstacles) == 0 {
		return
	}
	n := s.n
	travel := r3.Sub(pr.goal, pr.p0)
	dir := geom.UnitOr(travel, 1e-6, r3.Vec{})
	side := geom.UnitOr(r3.Cross(dir, geom.Up), 1e-6, r3.Vec{Y: 1})

	for i, o := range pr.obstacles {
		for k := 1; k < n; k++ {
			off := r3.Sub(sol.pos[k], o.Center)
			d := r3.Norm(off)
			viol := lim.radii[i] - d
			if viol <= 0 {
				continue
			}
			normal := side
			if d > 1e-6 {
				normal = r3.Scale(1/d, off)
				if math.Abs(r3.Dot(normal, dir)) > alignedNormal {
					normal = r3.Unit(r3.Add(normal, r3.Scale(lateralBias, side)))
				}
			}
			u := comps(normal)
			row := s.sp[k*n : k*n+k]
			for ax := 0; ax < 3; ax++ {
				h, g := sys.h[ax], sys.g[ax]
				for j := 0; j < k; j++ {
					gj := -u[ax] * row[j]
					g[j] += rho * viol * gj
					for l := 0; l < k; l++ {
						h[j*n+l] += rho * gj * (-u[ax] * row[l])
					}
				}
			}
		}
	}
}

func (s *solver) addActuatorPenalty(sys *system, lim limits, sol solution, rho float64) {
	n := s.n
	gz := s.cfg.Gravity
	addDiag := func(j int, viol float64, grad [3]float64) {
		for ax := 0; ax < 3; ax++ {
			sys.g[ax][j] += rho * viol * grad[ax]
			sys.h[ax][j*n+j] += rho * grad[ax] * grad[ax]
		}
	}
	for j, a := range sol.acc {
		b := r3.Add(a, r3.Vec{Z: gz})
		nb := r3.Norm(b)
		u := comps(geom.UnitOr(b, 1e-9, geom.Up))
		if viol := nb - lim.accMax; viol > 0 {
			addDiag(j, viol, u)
		}
		if viol := lim.accMin - nb; viol > 0 {
			addDiag(j, viol, [3]float64{-u[0], -u[1], -u[2]})
		}
		hb := math.Hypot(b.X, b.Y)
		if viol := hb - lim.tanTilt*b.Z; viol > 0 {
			grad := [3]float64{0, 0, -lim.tanTilt}
			if hb > 1e-9 {
				grad[0], grad[1] = b.X/hb, b.Y/hb
			}
			addDiag(j, viol, grad)
		}
	}
}

var errSingular = errors.New("singular normal equations")

// step solves the three per-axis systems and returns the search direction.
func (s *solver) step(sys *system) ([]r3.Vec, error) {
	n := s.n
	dir := make([]r3.Vec, n)
	for ax := 0; ax < 3; ax++ {
		x, err := solveSPD(n, sys.h[ax], sys.g[ax])
		if err != nil {
			return nil, err
		}
		for j := range dir {
			dir[j] = geom.SetAxis(dir[j], ax, x[j])
		}
	}
	return dir, nil
}

// solveSPD solves h·x = -g. h is consumed.
func solveSPD(n int, h, g []float64) ([]float64, error) {
	var chol mat.Cholesky
	if !chol.Factorize(mat.NewSymDense(n, h)) {
		return nil, errSingular
	}
	rhs := make([]float64, n)
	for i, v := range g {
		rhs[i] = -v
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, mat.NewVecDense(n, rhs)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}

func (s *solver) solve(pr problem, init []r3.Vec) solveResult {
	cfg := s.cfg
	lim := s.limits(pr.obstacles)

	sol := solution{acc: append([]r3.Vec(nil), init...)}
	sol.pos, sol.vel = s.rollout(pr.p0, pr.v0, sol.acc)

	res := solveResult{}
	envelope := s.measure(pr, sol.acc)
	rho := cfg.PenaltyInitial
	for it := 0; it < pr.budget; it++ {
		if it > 0 {
			rho = math.Min(rho*cfg.PenaltyGrowth, cfg.PenaltyMax)
		}
		base := s.evaluate(pr, lim, sol).total(rho)
		if !finite(base) {
			res.err = flight.ErrNumericalDivergence
			break
		}

		dir, err := s.step(s.assemble(pr, lim, sol, rho))
		if err != nil {
			res.err = errors.Join(flight.ErrNumericalDivergence, err)
			break
		}

		var moved float64
		alpha := 1.0
		for ls := 0; ls < lineSearchSteps; ls++ {
			cand := solution{acc: make([]r3.Vec, s.n)}
			for j := range cand.acc {
				cand.acc[j] = r3.Add(sol.acc[j], r3.Scale(alpha, dir[j]))
			}
			cand.pos, cand.vel = s.rollout(pr.p0, pr.v0, cand.acc)
			if m := s.evaluate(pr, lim, cand).total(rho); finite(m) && m < base {
				if b := s.measure(pr, cand.acc); b.noWorseThan(envelope) {
					sol, envelope = cand, b
					moved = alpha * maxAbs(dir)
					break
				}
			}
			alpha *= 0.5
		}
		res.iterations = it + 1

		if moved < cfg.Tolerance && s.evaluate(pr, lim, sol).violation <= cfg.Tolerance {
			res.converged = true
			break
		}
	}

	res.solution = sol
	m := s.evaluate(pr, lim, sol)
	res.cost, res.violation = m.cost, m.violation
	return res
}

// breach is how far a projected rollout strays outside the envelope the
// acceptance check enforces: depth inside radius+margin plus half the
// clearance buffer of any obstacle, and speed above the hard limit.
type breach struct {
	keepOut float64
	speed   float64
}

func (b breach) noWorseThan(o breach) bool {
	return b.keepOut <= o.keepOut && b.speed <= o.speed
}

// measure evaluates acc after projection. A solve never accepts a step that
// deepens either part, so a guess inside the envelope yields a result
// inside it too.
func (s *solver) measure(pr problem, acc []r3.Vec) breach {
	c := s.cfg
	pos, vel := s.rollout(pr.p0, pr.v0, s.project(acc))
	floor := c.ObstacleMargin + 0.5*c.ClearanceBuffer
	vmax := c.MaxVelocity * (1 + c.VelocityTolerance)
	var b breach
	for k := 1; k < s.n; k++ {
		b.speed = math.Max(b.speed, r3.Norm(vel[k])-vmax)
		for _, o := range pr.obstacles {
			b.keepOut = math.Max(b.keepOut, floor-o.Clearance(pos[k]))
		}
	}
	return b
}

// project maps every acceleration onto the admissible thrust set: inside
// the tilt cone, then magnitude within [MinThrust, MaxThrust]/m.
func (s *solver) project(acc []r3.Vec) []r3.Vec {
	c := s.cfg
	lo, hi := c.MinThrust/c.Mass, c.MaxThrust/c.Mass
	tanTilt := math.Tan(c.MaxTilt)
	out := make([]r3.Vec, len(acc))
	for j, a := range acc {
		b := r3.Add(a, r3.Vec{Z: c.Gravity})
		if !(b.Z > 0) {
			b = r3.Vec{Z: lo}
		}
		if hb := math.Hypot(b.X, b.Y); hb > tanTilt*b.Z {
			f := tanTilt * b.Z / hb
			b.X *= f
			b.Y *= f
		}
		if nb := r3.Norm(b); nb > hi {
			b = r3.Scale(hi/nb, b)
		} else if nb < lo {
			b = r3.Scale(lo/nb, b)
		}
		out[j] = r3.Sub(b, r3.Vec{Z: c.Gravity})
	}
	return out
}

func comps(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func maxAbs(vs []r3.Vec) float64 {
	var m float64
	for _, v := range vs {
		m = math.Max(m, geom.MaxAbs(v))
	}
	return m
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
