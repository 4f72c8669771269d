package planner

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/geom"
	"github.com/san-kum/edgeflight/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// Report describes one Plan call. Err is nil when the solver's own iterate
// was returned, otherwise a *flight.PlanningError naming the cause.
type Report struct {
	Mode         InitMode
	Iterations   int
	Converged    bool
	Fallback     bool
	Source       flight.Source
	Cost         float64
	MaxViolation float64
	Latency      time.Duration
	Err          error
}

// Optimizer plans trajectories toward a goal around spherical obstacles.
// Goal and obstacle updates may come from any goroutine; Plan calls are
// serialised and each works on a snapshot taken at its start.
type Optimizer struct {
	cfg    Config
	solver *solver
	clock  timeutil.Clock

	mu          sync.Mutex
	goal        r3.Vec
	hasGoal     bool
	goalChanged bool
	obstacles   []flight.Obstacle

	planMu  sync.Mutex
	prior   *prior
	lastPos r3.Vec
	seq     uint64
	stats   *rollingStats
}

type Option func(*Optimizer)

// WithClock sets the clock used to measure plan latency.
func WithClock(c timeutil.Clock) Option {
	return func(o *Optimizer) {
		o.clock = c
	}
}

func New(cfg Config, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	o := &Optimizer{
		cfg:    cfg,
		solver: newSolver(cfg),
		clock:  timeutil.RealClock{},
		stats:  newRollingStats(cfg.StatsWindow),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Optimizer) Config() Config {
	return o.cfg
}

// SetGoal replaces the goal. Moving it by more than GoalChangeThreshold
// drops warm-start continuity: the next plan is a fast replan.
func (o *Optimizer) SetGoal(goal r3.Vec) error {
	if !geom.Finite(goal) {
		return fmt.Errorf("%w: goal %v", flight.ErrInvalidInput, goal)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setGoalLocked(goal)
	return nil
}

func (o *Optimizer) setGoalLocked(goal r3.Vec) {
	if !o.hasGoal || r3.Norm(r3.Sub(goal, o.goal)) > o.cfg.GoalChangeThreshold {
		o.goalChanged = true
	}
	o.goal = goal
	o.hasGoal = true
}

// Goal returns the current goal and whether one has been set.
func (o *Optimizer) Goal() (r3.Vec, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.goal, o.hasGoal
}

func (o *Optimizer) AddObstacle(center r3.Vec, radius float64) error {
	ob := flight.Obstacle{Center: center, Radius: radius}
	if !ob.Valid() {
		return fmt.Errorf("%w: obstacle at %v radius %v", flight.ErrInvalidInput, center, radius)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obstacles = append(o.obstacles, ob)
	return nil
}

func (o *Optimizer) ClearObstacles() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obstacles = nil
}

// Obstacles returns a copy of the obstacle set.
func (o *Optimizer) Obstacles() []flight.Obstacle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]flight.Obstacle(nil), o.obstacles...)
}

// Reset discards the warm-start cache so the next plan is a cold start.
func (o *Optimizer) Reset() {
	o.planMu.Lock()
	defer o.planMu.Unlock()
	o.prior = nil
}

func (o *Optimizer) Stats() Stats {
	o.planMu.Lock()
	defer o.planMu.Unlock()
	return o.stats.snapshot()
}

// Plan sets goal and plans from state. It always returns a trajectory of
// Horizon samples starting at state.
func (o *Optimizer) Plan(state flight.DroneState, goal r3.Vec) (*flight.Trajectory, Report) {
	o.planMu.Lock()
	defer o.planMu.Unlock()
	start := o.clock.Now()

	var traj *flight.Trajectory
	var rep Report
	if geom.Finite(goal) {
		o.mu.Lock()
		o.setGoalLocked(goal)
		o.mu.Unlock()
		traj, rep = o.plan(state, o.snapshot())
	} else {
		traj, rep = o.hold(state, fmt.Sprintf("goal %v", goal))
	}
	return traj, o.finish(rep, start)
}

// Replan plans from state toward the goal last given to SetGoal or Plan.
// Without a goal it holds the current position.
func (o *Optimizer) Replan(state flight.DroneState) (*flight.Trajectory, Report) {
	o.planMu.Lock()
	defer o.planMu.Unlock()
	start := o.clock.Now()

	snap := o.snapshot()
	if !snap.hasGoal {
		snap.goal = state.Position
	}
	traj, rep := o.plan(state, snap)
	return traj, o.finish(rep, start)
}

type snapshot struct {
	goal        r3.Vec
	hasGoal     bool
	goalChanged bool
	obstacles   []flight.Obstacle
}

// snapshot copies goal and obstacles and consumes the goal-changed flag.
func (o *Optimizer) snapshot() snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := snapshot{
		goal:        o.goal,
		hasGoal:     o.hasGoal,
		goalChanged: o.goalChanged,
		obstacles:   append([]flight.Obstacle(nil), o.obstacles...),
	}
	o.goalChanged = false
	return s
}

func (o *Optimizer) finish(rep Report, start time.Time) Report {
	rep.Latency = o.clock.Since(start)
	o.stats.record(rep)
	return rep
}

func (o *Optimizer) plan(state flight.DroneState, snap snapshot) (*flight.Trajectory, Report) {
	if err := state.Validate(); err != nil {
		return o.hold(state, err.Error())
	}
	if !geom.Finite(snap.goal) {
		return o.hold(state, fmt.Sprintf("goal %v", snap.goal))
	}
	s := o.solver
	pr := problem{
		p0:        state.Position,
		v0:        state.Velocity,
		goal:      snap.goal,
		obstacles: snap.obstacles,
		budget:    o.cfg.MaxIterations,
	}

	mode := selectMode(o.prior, pr.p0, snap.goalChanged, o.cfg.ResetJumpThreshold)
	if mode == ColdStart {
		o.prior = nil
	}
	if mode == FastReplan {
		pr.budget = o.cfg.FastReplanIterations
	}

	res := s.solve(pr, s.initialGuess(mode, o.prior, pr))
	final := s.arrive(pr, s.candidate(pr, s.project(res.acc)))

	rep := Report{
		Mode:         mode,
		Iterations:   res.iterations,
		Converged:    res.converged,
		Source:       flight.SourceOptimized,
		MaxViolation: res.violation,
	}
	cause := res.err
	if cause == nil {
		cause = s.check(pr, final)
	}
	if cause != nil {
		final, rep.Source = s.fallback(pr)
		rep.Converged = false
		rep.Fallback = true
		rep.Err = &flight.PlanningError{
			Mode:       mode.String(),
			Iterations: res.iterations,
			Detail:     "using " + rep.Source.String(),
			Wrapped:    cause,
		}
	}
	rep.Cost = s.cost(pr, final)

	traj, err := o.build(state, final, rep.Source)
	if err != nil {
		return o.hold(state, err.Error())
	}
	o.prior = &prior{solution: final, goal: pr.goal}
	o.lastPos = state.Position
	return traj, rep
}

// hold answers invalid input with a hover at the sanitised position and
// forgets the warm-start cache.
func (o *Optimizer) hold(state flight.DroneState, detail string) (*flight.Trajectory, Report) {
	st := sanitize(state, o.lastPos)
	o.prior = nil
	traj, err := o.build(st, o.solver.hover(st.Position), flight.SourceHover)
	if err != nil {
		// only reachable with a non-finite timestamp step
		st.Timestamp = 0
		traj, _ = o.build(st, o.solver.hover(st.Position), flight.SourceHover)
	}
	return traj, Report{
		Mode:     ColdStart,
		Fallback: true,
		Source:   flight.SourceHover,
		Err: &flight.PlanningError{
			Mode:    ColdStart.String(),
			Detail:  detail,
			Wrapped: flight.ErrInvalidInput,
		},
	}
}

func (o *Optimizer) build(state flight.DroneState, sol solution, src flight.Source) (*flight.Trajectory, error) {
	c := o.cfg
	yaw := state.Yaw()
	if math.IsNaN(yaw) {
		yaw = 0
	}
	samples := make([]flight.Sample, o.solver.n)
	for k := range samples {
		samples[k] = flight.Sample{
			T:            state.Timestamp + float64(k)*c.Dt,
			Position:     sol.pos[k],
			Velocity:     sol.vel[k],
			Acceleration: sol.acc[k],
			Thrust:       r3.Scale(c.Mass, r3.Add(sol.acc[k], r3.Vec{Z: c.Gravity})),
			Yaw:          yaw,
		}
	}
	o.seq++
	return flight.NewTrajectory(samples, c.Dt, src, o.seq)
}
