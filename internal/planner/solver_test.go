package planner

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func newTestSolver() *solver {
	return newSolver(DefaultConfig())
}

func TestSensitivitiesMatchRollout(t *testing.T) {
	s := newTestSolver()
	rng := rand.New(rand.NewSource(3))
	acc := make([]r3.Vec, s.n)
	for j := range acc {
		acc[j] = r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	}
	p0 := r3.Vec{X: 1, Y: 2, Z: 3}
	v0 := r3.Vec{X: -0.5, Z: 0.25}

	pos, vel := s.rollout(p0, v0, acc)
	for k := 0; k < s.n; k++ {
		tk := float64(k) * s.cfg.Dt
		want := r3.Add(p0, r3.Scale(tk, v0))
		wantVel := v0
		for j := 0; j < k; j++ {
			want = r3.Add(want, r3.Scale(s.sp[k*s.n+j], acc[j]))
			wantVel = r3.Add(wantVel, r3.Scale(s.cfg.Dt, acc[j]))
		}
		assert.InDelta(t, 0, r3.Norm(r3.Sub(want, pos[k])), 1e-9, "position %d", k)
		assert.InDelta(t, 0, r3.Norm(r3.Sub(wantVel, vel[k])), 1e-9, "velocity %d", k)
	}
}

func TestProjectOntoThrustSet(t *testing.T) {
	s := newTestSolver()
	c := s.cfg
	in := []r3.Vec{
		{},
		{X: 50},
		{Z: -20},
		{Z: 40},
		{X: 3, Y: -3, Z: -9},
		{X: math.Tan(c.MaxTilt) * c.Gravity * 0.5},
	}
	out := s.project(in)

	assert.Equal(t, in[0], out[0], "hover is already admissible")
	assert.InDelta(t, 0, r3.Norm(r3.Sub(in[5], out[5])), 1e-12, "inside the cone is untouched")
	for i, a := range out {
		b := r3.Add(a, r3.Vec{Z: c.Gravity})
		mag := r3.Norm(b) * c.Mass
		assert.GreaterOrEqual(t, mag, c.MinThrust-1e-9, "case %d", i)
		assert.LessOrEqual(t, mag, c.MaxThrust+1e-9, "case %d", i)
		assert.LessOrEqual(t, geom.TiltAngle(r3.Unit(b)), c.MaxTilt+1e-9, "case %d", i)
	}
	assert.Greater(t, out[1].X, 0.0, "horizontal direction is kept")
}

func TestGuideStaysInsideEnvelope(t *testing.T) {
	s := newTestSolver()
	pr := problem{p0: r3.Vec{}, v0: r3.Vec{X: -2}, goal: r3.Vec{X: 10, Y: 5, Z: -3}}
	acc := s.guide(pr.p0, pr.v0, pr.goal, nil, 4, s.n)

	for i, a := range acc {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(a, s.project([]r3.Vec{a})[0])), 1e-12, "step %d needs no projection", i)
	}
	pos, vel := s.rollout(pr.p0, pr.v0, acc)
	assert.Less(t, r3.Norm(r3.Sub(pos[s.n-1], pr.goal)), r3.Norm(pr.goal))
	for k := 1; k < s.n; k++ {
		assert.LessOrEqual(t, r3.Norm(vel[k]), 4.0+1e-9)
	}
}

func TestDecelerateComesToRest(t *testing.T) {
	s := newTestSolver()
	v0 := r3.Vec{X: 4, Z: -1}
	acc := s.decelerate(v0, s.n)
	_, vel := s.rollout(r3.Vec{}, v0, acc)
	assert.InDelta(t, 0, r3.Norm(vel[s.n-1]), 1e-12)
	for k := 1; k < s.n; k++ {
		assert.LessOrEqual(t, r3.Norm(vel[k]), r3.Norm(vel[k-1])+1e-12)
	}
}

func TestCheck(t *testing.T) {
	s := newTestSolver()
	pr := problem{goal: r3.Vec{X: 10}}
	good := solution{acc: s.guide(r3.Vec{}, r3.Vec{}, pr.goal, nil, 2, s.n)}
	good.pos, good.vel = s.rollout(r3.Vec{}, r3.Vec{}, good.acc)
	require.NoError(t, s.check(pr, good))

	blocked := pr
	blocked.obstacles = []flight.Obstacle{{Center: r3.Vec{X: 5}, Radius: 1}}
	assert.ErrorIs(t, s.check(blocked, good), flight.ErrInfeasible)

	nan := solution{acc: append([]r3.Vec(nil), good.acc...)}
	nan.acc[7].Y = math.NaN()
	nan.pos, nan.vel = s.rollout(r3.Vec{}, r3.Vec{}, nan.acc)
	assert.ErrorIs(t, s.check(pr, nan), flight.ErrNumericalDivergence)

	jump := solution{acc: append([]r3.Vec(nil), good.acc...)}
	jump.acc[3].X = 500
	jump.pos, jump.vel = s.rollout(r3.Vec{}, r3.Vec{}, jump.acc)
	assert.Error(t, s.check(pr, jump))
}

func TestFallbackChoice(t *testing.T) {
	s := newTestSolver()
	pr := problem{v0: r3.Vec{X: 1}, goal: r3.Vec{X: 10}}

	sol, src := s.fallback(pr)
	assert.Equal(t, flight.SourceFallbackStraight, src)
	speed := s.cfg.FallbackSpeedFraction * s.cfg.MaxVelocity
	for k := 1; k < s.n; k++ {
		assert.LessOrEqual(t, r3.Norm(sol.vel[k]), speed+1e-9)
	}

	// the approach steers around an obstacle in its way
	pr.obstacles = []flight.Obstacle{{Center: r3.Vec{X: 4}, Radius: 1}}
	sol, src = s.fallback(pr)
	assert.Equal(t, flight.SourceFallbackStraight, src)
	assert.NoError(t, s.check(pr, sol))
}

func TestFallbackKeepsLargestClearance(t *testing.T) {
	s := newTestSolver()
	// at rest in front of a wall of obstacles
	pr := problem{goal: r3.Vec{X: 10}}
	for y := -6.0; y <= 6; y++ {
		pr.obstacles = append(pr.obstacles, flight.Obstacle{Center: r3.Vec{X: 2, Y: y}, Radius: 1})
	}

	speed := s.cfg.FallbackSpeedFraction * s.cfg.MaxVelocity
	approach := s.candidate(pr, s.guide(pr.p0, pr.v0, pr.goal, pr.obstacles, speed, s.n))
	stop := s.candidate(pr, s.decelerate(pr.v0, s.n))

	sol, src := s.fallback(pr)
	if s.clearance(pr, approach) >= 0 {
		assert.Equal(t, flight.SourceFallbackStraight, src)
	} else {
		assert.Equal(t, math.Max(s.clearance(pr, approach), s.clearance(pr, stop)), s.clearance(pr, sol))
	}
	assert.GreaterOrEqual(t, s.clearance(pr, sol), 0.0)
}

func TestFallbackDecelerateIsChecked(t *testing.T) {
	s := newTestSolver()
	// rushing at an obstacle too close to stop or turn in time
	pr := problem{v0: r3.Vec{X: 4}, goal: r3.Vec{X: 10}}
	pr.obstacles = []flight.Obstacle{{Center: r3.Vec{X: 2.2}, Radius: 1}}

	speed := s.cfg.FallbackSpeedFraction * s.cfg.MaxVelocity
	approach := s.candidate(pr, s.guide(pr.p0, pr.v0, pr.goal, pr.obstacles, speed, s.n))
	stop := s.candidate(pr, s.decelerate(pr.v0, s.n))
	require.Less(t, s.clearance(pr, stop), 0.0)

	sol, _ := s.fallback(pr)
	assert.GreaterOrEqual(t, s.clearance(pr, sol), math.Max(s.clearance(pr, approach), s.clearance(pr, stop)))
}

func TestGuideSkirtsObstacle(t *testing.T) {
	s := newTestSolver()
	start := r3.Vec{Z: 2}
	goal := r3.Vec{X: 10, Z: 2}
	ob := flight.Obstacle{Center: r3.Vec{X: 5, Z: 2}, Radius: 2}
	pr := problem{p0: start, goal: goal, obstacles: []flight.Obstacle{ob}}

	sol := s.candidate(pr, s.guide(start, r3.Vec{}, goal, pr.obstacles, 4, s.n))
	minClear := math.Inf(1)
	for k := 1; k < s.n; k++ {
		minClear = math.Min(minClear, ob.Clearance(sol.pos[k]))
		assert.InDelta(t, 2, sol.pos[k].Z, 1e-9, "detour stays level at %d", k)
	}
	assert.GreaterOrEqual(t, minClear, s.cfg.ObstacleMargin+s.cfg.ClearanceBuffer)
	assert.Greater(t, sol.pos[s.n-1].X, ob.Center.X, "gets past the obstacle")
}

func TestGuideStopsOutsideObstacleOnGoal(t *testing.T) {
	s := newTestSolver()
	goal := r3.Vec{X: 8}
	ob := flight.Obstacle{Center: goal, Radius: 1}
	pr := problem{goal: goal, obstacles: []flight.Obstacle{ob}}

	sol := s.candidate(pr, s.guide(r3.Vec{}, r3.Vec{}, goal, pr.obstacles, 4, s.n))
	assert.GreaterOrEqual(t, s.clearance(pr, sol), 0.0)
	assert.Less(t, r3.Norm(r3.Sub(sol.pos[s.n-1], goal)), 3.0)
}

func TestDetour(t *testing.T) {
	center := r3.Vec{X: 5}

	dir := detour(r3.Vec{}, r3.Vec{X: 10}, center, 3)
	assert.InDelta(t, 1, r3.Norm(dir), 1e-12)
	assert.InDelta(t, 0.8, dir.X, 1e-12, "tangent to the sphere")
	assert.InDelta(t, 0.6, math.Abs(dir.Y), 1e-12)
	assert.Zero(t, dir.Z)

	// deep inside the sphere the direction points straight out
	dir = detour(r3.Vec{X: 4}, r3.Vec{X: 10}, center, 3)
	assert.InDelta(t, -1, dir.X, 1e-12)

	i, ok := blocking(r3.Vec{}, r3.Vec{X: 10}, []flight.Obstacle{{Center: r3.Vec{X: 7}}, {Center: center}}, []float64{1, 1})
	require.True(t, ok)
	assert.Equal(t, 1, i, "nearest along the path")
	_, ok = blocking(r3.Vec{}, r3.Vec{X: 10}, []flight.Obstacle{{Center: r3.Vec{X: 5, Y: 2}}}, []float64{1.5})
	assert.False(t, ok)

	moved := reachable(r3.Vec{}, r3.Vec{X: 5}, []flight.Obstacle{{Center: center}}, []float64{2})
	assert.Equal(t, r3.Vec{X: 3}, moved)
}

func TestArriveSettlesOvershoot(t *testing.T) {
	s := newTestSolver()
	// coasting at 0.5 m/s through a goal 0.5 m ahead
	pr := problem{p0: r3.Vec{X: 9.5}, v0: r3.Vec{X: 0.5}, goal: r3.Vec{X: 10}}
	coast := s.candidate(pr, make([]r3.Vec, s.n))

	got := s.arrive(pr, coast)
	for k := 1; k < s.n; k++ {
		d0 := r3.Norm(r3.Sub(got.pos[k-1], pr.goal))
		d1 := r3.Norm(r3.Sub(got.pos[k], pr.goal))
		assert.LessOrEqual(t, d1, d0+1e-12, "distance grew at %d", k)
	}
	assert.InDelta(t, 0, r3.Norm(got.vel[s.n-1]), 1e-12)
	assert.Equal(t, coast.pos[:5], got.pos[:5], "approach is kept")
	assert.Less(t, r3.Norm(r3.Sub(got.pos[s.n-1], pr.goal)), 0.05)

	// far from the goal a receding plan is left alone
	away := problem{p0: r3.Vec{}, v0: r3.Vec{X: -1}, goal: r3.Vec{X: 10}}
	drift := s.candidate(away, make([]r3.Vec, s.n))
	assert.Equal(t, drift, s.arrive(away, drift))
}

func TestSolveKeepsGuessClear(t *testing.T) {
	s := newTestSolver()
	ob := flight.Obstacle{Center: r3.Vec{X: 5, Z: 2}, Radius: 2}
	pr := problem{
		p0:        r3.Vec{Z: 2},
		goal:      r3.Vec{X: 10, Z: 2},
		obstacles: []flight.Obstacle{ob},
		budget:    s.cfg.MaxIterations,
	}
	init := s.guide(pr.p0, pr.v0, pr.goal, pr.obstacles, 4, s.n)
	require.Equal(t, breach{}, s.measure(pr, init))

	res := s.solve(pr, init)
	assert.Equal(t, breach{}, s.measure(pr, res.acc))
	final := s.candidate(pr, s.project(res.acc))
	assert.NoError(t, s.check(pr, final))
}

func TestSelectMode(t *testing.T) {
	p := &prior{solution: newTestSolver().hover(r3.Vec{X: 1})}

	assert.Equal(t, ColdStart, selectMode(nil, r3.Vec{}, false, 10))
	assert.Equal(t, WarmStart, selectMode(p, r3.Vec{X: 1.5}, false, 10))
	assert.Equal(t, FastReplan, selectMode(p, r3.Vec{X: 1.5}, true, 10))
	assert.Equal(t, ColdStart, selectMode(p, r3.Vec{X: 12}, true, 10))
	assert.Equal(t, ColdStart, selectMode(p, r3.Vec{X: math.NaN()}, false, 10))
	assert.Equal(t, "fast_replan", FastReplan.String())
}

func TestSolveSPD(t *testing.T) {
	h := []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	}
	g := []float64{-1, -2, -3}
	x, err := solveSPD(3, append([]float64(nil), h...), g)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		var row float64
		for j := 0; j < 3; j++ {
			row += h[i*3+j] * x[j]
		}
		assert.InDelta(t, -g[i], row, 1e-12)
	}

	_, err = solveSPD(2, []float64{1, 2, 2, 1}, []float64{1, 1})
	assert.True(t, errors.Is(err, errSingular))
}

func TestRollingStats(t *testing.T) {
	r := newRollingStats(4)
	assert.Zero(t, r.snapshot().SuccessRate)

	for i, ms := range []int{5, 1, 3, 2, 9, 4} {
		r.record(Report{
			Mode:      WarmStart,
			Converged: i%2 == 0,
			Latency:   time.Duration(ms) * time.Millisecond,
		})
	}
	st := r.snapshot()
	assert.Equal(t, uint64(6), st.Plans)
	assert.Equal(t, uint64(6), st.WarmStarts)
	assert.Equal(t, uint64(3), st.Converged)
	// window holds 3, 2, 9, 4 ms
	assert.InDelta(t, 0.5, st.SuccessRate, 1e-12)
	assert.Equal(t, 9*time.Millisecond, st.LatencyMax)
	assert.Equal(t, 9*time.Millisecond, st.LatencyP99)
	assert.Equal(t, 3*time.Millisecond, st.LatencyP50)
}
