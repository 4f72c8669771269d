package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/san-kum/edgeflight/internal/control"
	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/metrics"
	"github.com/san-kum/edgeflight/internal/monitoring"
	"github.com/san-kum/edgeflight/internal/physics"
	"github.com/san-kum/edgeflight/internal/planner"
	"gonum.org/v1/gonum/spatial/r3"
)

// Simulator flies the planner and controller against the rigid-body model.
// The planner publishes through a Handoff and the controller only ever
// reads from it, as on the vehicle.
type Simulator struct {
	plant      *physics.Quadrotor
	planner    *planner.Optimizer
	controller *control.Geometric
	handoff    flight.Handoff
	metrics    []Metric
	observers  []Observer
}

func New(plant *physics.Quadrotor, p *planner.Optimizer, c *control.Geometric) *Simulator {
	return &Simulator{
		plant:      plant,
		planner:    p,
		controller: c,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Handoff exposes the trajectory slot the simulator publishes to.
func (s *Simulator) Handoff() *flight.Handoff { return &s.handoff }

// Run flies from initial toward goal for cfg.Duration. It stops early on
// context cancellation, returning the partial result with ctx.Err().
func (s *Simulator) Run(ctx context.Context, initial flight.DroneState, goal r3.Vec, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}

	steps := int(math.Round(cfg.Duration / cfg.ControlDt))
	result := &Result{
		RunID:     uuid.New(),
		States:    make([]flight.DroneState, 0, steps+1),
		Commands:  make([]flight.ControlCommand, 0, steps),
		Setpoints: make([]flight.Setpoint, 0, steps),
		Times:     make([]float64, 0, steps+1),
		Metrics:   make(map[string]float64),
	}
	run := result.RunID.String()[:8]

	for _, m := range s.metrics {
		m.Reset()
	}

	x := physics.FromDroneState(initial)
	t := initial.Timestamp
	dt := cfg.ControlDt
	failsafe := s.controller.FailsafeActive()

	result.States = append(result.States, x.DroneState(t))
	result.Times = append(result.Times, t)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			result.PlannerStats = s.planner.Stats()
			return result, ctx.Err()
		default:
		}

		state := x.DroneState(t)
		if i%cfg.PlanEvery == 0 {
			traj, rep := s.planner.Plan(state, goal)
			s.handoff.Publish(traj)
			result.Replans++
			if rep.Fallback {
				result.Fallbacks++
				monitoring.Emit(monitoring.Event{
					Source: "planner/" + run,
					Kind:   rep.Source.String(),
					Time:   t,
					Detail: fmt.Sprint(rep.Err),
				})
			}
		}

		traj := s.handoff.Load()
		sp := traj.SetpointAt(t)
		u := s.controller.ComputeControl(state, sp, dt)

		if active := s.controller.FailsafeActive(); active != failsafe {
			st := s.controller.Status()
			if active {
				result.FailsafeActivations++
			}
			monitoring.Emit(monitoring.Event{
				Source: "control/" + run,
				Kind:   st.Mode.String(),
				Time:   t,
				Detail: fmt.Sprintf("counter=%d last_error=%v", st.Counter, st.LastError),
			})
			failsafe = active
		}

		o := metrics.Observation{T: t, State: state, Setpoint: sp, Command: u}
		for _, m := range s.metrics {
			m.Observe(o)
		}
		for _, obs := range s.observers {
			obs.OnStep(o)
		}

		newX := s.plant.Step(x, u, dt)
		if cfg.ValidateState && !newX.IsValid() {
			result.Errors = append(result.Errors, SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"})
			break
		}

		x = newX
		t += dt
		result.StepsTaken++

		result.States = append(result.States, x.DroneState(t))
		result.Commands = append(result.Commands, u)
		result.Setpoints = append(result.Setpoints, sp)
		result.Times = append(result.Times, t)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	result.PlannerStats = s.planner.Stats()
	return result, nil
}

func (s *Simulator) validateConfig(cfg Config) error {
	if !(cfg.ControlDt > 0) {
		return fmt.Errorf("control dt must be positive, got %f", cfg.ControlDt)
	}
	if cfg.ControlDt > s.controller.Config().MaxDt {
		return fmt.Errorf("control dt %f exceeds controller max dt %f", cfg.ControlDt, s.controller.Config().MaxDt)
	}
	if !(cfg.Duration > 0) {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.PlanEvery < 1 {
		return fmt.Errorf("plan every must be at least 1, got %d", cfg.PlanEvery)
	}
	return nil
}
