// Package config maps a yaml flight configuration onto the immutable
// planner, controller, vehicle and simulator configs.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/san-kum/edgeflight/internal/control"
	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/physics"
	"github.com/san-kum/edgeflight/internal/planner"
	"github.com/san-kum/edgeflight/internal/sim"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Vec3 is an x, y, z triple written as a yaml flow sequence.
type Vec3 [3]float64

func (v Vec3) R3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

func vec3(v r3.Vec) Vec3 { return Vec3{v.X, v.Y, v.Z} }

type Config struct {
	Vehicle    VehicleParams    `yaml:"vehicle"`
	Planner    PlannerParams    `yaml:"planner"`
	Controller ControllerParams `yaml:"controller"`
	Sim        SimParams        `yaml:"sim"`
	Mission    Mission          `yaml:"mission"`
}

// VehicleParams are the airframe and actuator limits shared by every
// component.
type VehicleParams struct {
	Mass        float64 `yaml:"mass"`
	Gravity     float64 `yaml:"gravity"`
	Inertia     Vec3    `yaml:"inertia,flow"`
	DragCoeff   float64 `yaml:"drag_coeff"`
	AngularDrag float64 `yaml:"angular_drag"`
	MinThrust   float64 `yaml:"min_thrust"`
	MaxThrust   float64 `yaml:"max_thrust"`
	MaxTilt     float64 `yaml:"max_tilt"`
	MaxTorque   float64 `yaml:"max_torque"`
	MaxVelocity float64 `yaml:"max_velocity"`
}

type Weights struct {
	Position   float64 `yaml:"position"`
	Terminal   float64 `yaml:"terminal"`
	Velocity   float64 `yaml:"velocity"`
	Smoothness float64 `yaml:"smoothness"`
	Effort     float64 `yaml:"effort"`
}

type PlannerParams struct {
	Horizon               int     `yaml:"horizon"`
	Dt                    float64 `yaml:"dt"`
	ObstacleMargin        float64 `yaml:"obstacle_margin"`
	ClearanceBuffer       float64 `yaml:"clearance_buffer"`
	Weights               Weights `yaml:"weights"`
	MaxIterations         int     `yaml:"max_iterations"`
	FastReplanIterations  int     `yaml:"fast_replan_iterations"`
	Tolerance             float64 `yaml:"tolerance"`
	GoalChangeThreshold   float64 `yaml:"goal_change_threshold"`
	ResetJumpThreshold    float64 `yaml:"reset_jump_threshold"`
	WarmSegment           int     `yaml:"warm_segment"`
	ArrivalRadius         float64 `yaml:"arrival_radius"`
	FallbackSpeedFraction float64 `yaml:"fallback_speed_fraction"`
	StatsWindow           int     `yaml:"stats_window"`
	LatencyBudgetMs       float64 `yaml:"latency_budget_ms"`
}

type ControllerParams struct {
	KpPos                  Vec3    `yaml:"kp_pos,flow"`
	KiPos                  Vec3    `yaml:"ki_pos,flow"`
	KdPos                  Vec3    `yaml:"kd_pos,flow"`
	FFPos                  Vec3    `yaml:"ff_pos,flow"`
	FFVel                  Vec3    `yaml:"ff_vel,flow"`
	KpAtt                  Vec3    `yaml:"kp_att,flow"`
	KdAtt                  Vec3    `yaml:"kd_att,flow"`
	ThrustSoftBand         float64 `yaml:"thrust_soft_band"`
	IntegralLimit          float64 `yaml:"integral_limit"`
	IntegralBleedThreshold float64 `yaml:"integral_bleed_threshold"`
	IntegralBleedFactor    float64 `yaml:"integral_bleed_factor"`
	MaxDt                  float64 `yaml:"max_dt"`
	PositionErrorThreshold float64 `yaml:"position_error_threshold"`
	VelocityErrorThreshold float64 `yaml:"velocity_error_threshold"`
	HysteresisTicks        int     `yaml:"hysteresis_ticks"`
}

type SimParams struct {
	ControlDt     float64 `yaml:"control_dt"`
	PlanEvery     int     `yaml:"plan_every"`
	Duration      float64 `yaml:"duration"`
	ValidateState bool    `yaml:"validate_state"`
}

type ObstacleParams struct {
	Center Vec3    `yaml:"center,flow"`
	Radius float64 `yaml:"radius"`
}

// Mission is the start, goal and obstacle field of a simulated flight.
type Mission struct {
	Start     Vec3             `yaml:"start,flow"`
	Yaw       float64          `yaml:"yaw"`
	Goal      Vec3             `yaml:"goal,flow"`
	Obstacles []ObstacleParams `yaml:"obstacles"`
}

func DefaultConfig() *Config {
	pc := planner.DefaultConfig()
	cc := control.DefaultConfig()
	q := physics.NewQuadrotor()
	sc := sim.DefaultConfig()

	return &Config{
		Vehicle: VehicleParams{
			Mass:        q.Mass,
			Gravity:     q.Gravity,
			Inertia:     vec3(q.Inertia),
			DragCoeff:   q.DragCoeff,
			AngularDrag: q.AngDrag,
			MinThrust:   cc.MinThrust,
			MaxThrust:   cc.MaxThrust,
			MaxTilt:     cc.MaxTilt,
			MaxTorque:   cc.MaxTorque,
			MaxVelocity: pc.MaxVelocity,
		},
		Planner: PlannerParams{
			Horizon:         pc.Horizon,
			Dt:              pc.Dt,
			ObstacleMargin:  pc.ObstacleMargin,
			ClearanceBuffer: pc.ClearanceBuffer,
			Weights: Weights{
				Position:   pc.PositionWeight,
				Terminal:   pc.TerminalWeight,
				Velocity:   pc.VelocityWeight,
				Smoothness: pc.SmoothnessWeight,
				Effort:     pc.EffortWeight,
			},
			MaxIterations:         pc.MaxIterations,
			FastReplanIterations:  pc.FastReplanIterations,
			Tolerance:             pc.Tolerance,
			GoalChangeThreshold:   pc.GoalChangeThreshold,
			ResetJumpThreshold:    pc.ResetJumpThreshold,
			WarmSegment:           pc.WarmSegment,
			ArrivalRadius:         pc.ArrivalRadius,
			FallbackSpeedFraction: pc.FallbackSpeedFraction,
			StatsWindow:           pc.StatsWindow,
			LatencyBudgetMs:       float64(pc.LatencyBudget) / float64(time.Millisecond),
		},
		Controller: ControllerParams{
			KpPos:                  vec3(cc.KpPos),
			KiPos:                  vec3(cc.KiPos),
			KdPos:                  vec3(cc.KdPos),
			FFPos:                  vec3(cc.FFPos),
			FFVel:                  vec3(cc.FFVel),
			KpAtt:                  vec3(cc.KpAtt),
			KdAtt:                  vec3(cc.KdAtt),
			ThrustSoftBand:         cc.ThrustSoftBand,
			IntegralLimit:          cc.IntegralLimit,
			IntegralBleedThreshold: cc.IntegralBleedThreshold,
			IntegralBleedFactor:    cc.IntegralBleedFactor,
			MaxDt:                  cc.MaxDt,
			PositionErrorThreshold: cc.PositionErrorThreshold,
			VelocityErrorThreshold: cc.VelocityErrorThreshold,
			HysteresisTicks:        cc.HysteresisTicks,
		},
		Sim: SimParams{
			ControlDt:     sc.ControlDt,
			PlanEvery:     sc.PlanEvery,
			Duration:      sc.Duration,
			ValidateState: sc.ValidateState,
		},
		Mission: Mission{
			Start: Vec3{0, 0, 1},
			Goal:  Vec3{5, 0, 1},
		},
	}
}

// Load reads a yaml file over the defaults, so a file only needs the keys
// it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.PlannerConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("planner: %w", err))
	}
	if err := c.ControllerConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("controller: %w", err))
	}
	if err := c.VehicleModel().Validate(); err != nil {
		errs = append(errs, err)
	}
	if s := c.Sim; !(s.ControlDt > 0) || !(s.Duration > 0) || s.PlanEvery < 1 {
		errs = append(errs, fmt.Errorf("sim: control_dt, duration and plan_every must be positive"))
	} else if s.ControlDt > c.Controller.MaxDt {
		errs = append(errs, fmt.Errorf("sim: control_dt %v exceeds controller max_dt %v", s.ControlDt, c.Controller.MaxDt))
	}
	for i, o := range c.Obstacles() {
		if !o.Valid() {
			errs = append(errs, fmt.Errorf("mission: obstacle %d: %w", i, flight.ErrInvalidInput))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) PlannerConfig() planner.Config {
	v, p := c.Vehicle, c.Planner
	cfg := planner.DefaultConfig()

	cfg.Horizon = p.Horizon
	cfg.Dt = p.Dt
	cfg.Mass = v.Mass
	cfg.Gravity = v.Gravity
	cfg.MaxVelocity = v.MaxVelocity
	cfg.MinThrust = v.MinThrust
	cfg.MaxThrust = v.MaxThrust
	cfg.MaxTilt = v.MaxTilt
	cfg.ObstacleMargin = p.ObstacleMargin
	cfg.ClearanceBuffer = p.ClearanceBuffer
	cfg.PositionWeight = p.Weights.Position
	cfg.TerminalWeight = p.Weights.Terminal
	cfg.VelocityWeight = p.Weights.Velocity
	cfg.SmoothnessWeight = p.Weights.Smoothness
	cfg.EffortWeight = p.Weights.Effort
	cfg.MaxIterations = p.MaxIterations
	cfg.FastReplanIterations = p.FastReplanIterations
	cfg.Tolerance = p.Tolerance
	cfg.GoalChangeThreshold = p.GoalChangeThreshold
	cfg.ResetJumpThreshold = p.ResetJumpThreshold
	cfg.WarmSegment = p.WarmSegment
	cfg.ArrivalRadius = p.ArrivalRadius
	cfg.FallbackSpeedFraction = p.FallbackSpeedFraction
	cfg.StatsWindow = p.StatsWindow
	cfg.LatencyBudget = time.Duration(p.LatencyBudgetMs * float64(time.Millisecond))
	// a step may cover at most twice the distance the speed limit allows
	cfg.MaxStepDisplacement = 2 * v.MaxVelocity * p.Dt
	return cfg
}

func (c *Config) ControllerConfig() control.Config {
	v, k := c.Vehicle, c.Controller
	return control.Config{
		Mass:           v.Mass,
		Gravity:        v.Gravity,
		MinThrust:      v.MinThrust,
		MaxThrust:      v.MaxThrust,
		ThrustSoftBand: k.ThrustSoftBand,
		MaxTilt:        v.MaxTilt,
		MaxTorque:      v.MaxTorque,

		KpPos: k.KpPos.R3(),
		KiPos: k.KiPos.R3(),
		KdPos: k.KdPos.R3(),
		FFPos: k.FFPos.R3(),
		FFVel: k.FFVel.R3(),

		KpAtt: k.KpAtt.R3(),
		KdAtt: k.KdAtt.R3(),

		IntegralLimit:          k.IntegralLimit,
		IntegralBleedThreshold: k.IntegralBleedThreshold,
		IntegralBleedFactor:    k.IntegralBleedFactor,

		MaxDt: k.MaxDt,

		PositionErrorThreshold: k.PositionErrorThreshold,
		VelocityErrorThreshold: k.VelocityErrorThreshold,
		HysteresisTicks:        k.HysteresisTicks,
	}
}

// VehicleModel builds the rigid-body model the simulator flies.
func (c *Config) VehicleModel() *physics.Quadrotor {
	q := physics.NewQuadrotor()
	q.Mass = c.Vehicle.Mass
	q.Gravity = c.Vehicle.Gravity
	q.Inertia = c.Vehicle.Inertia.R3()
	q.DragCoeff = c.Vehicle.DragCoeff
	q.AngDrag = c.Vehicle.AngularDrag
	return q
}

func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		ControlDt:     c.Sim.ControlDt,
		PlanEvery:     c.Sim.PlanEvery,
		Duration:      c.Sim.Duration,
		ValidateState: c.Sim.ValidateState,
	}
}

func (c *Config) StartState() flight.DroneState {
	return flight.NewStateFromEuler(c.Mission.Start.R3(), 0, 0, c.Mission.Yaw)
}

func (c *Config) Goal() r3.Vec {
	return c.Mission.Goal.R3()
}

func (c *Config) Obstacles() []flight.Obstacle {
	out := make([]flight.Obstacle, len(c.Mission.Obstacles))
	for i, o := range c.Mission.Obstacles {
		out[i] = flight.Obstacle{Center: o.Center.R3(), Radius: o.Radius}
	}
	return out
}

// NewSimulator wires planner, controller and vehicle model from c and loads
// the mission obstacles into the planner.
func (c *Config) NewSimulator() (*sim.Simulator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	p, err := planner.New(c.PlannerConfig())
	if err != nil {
		return nil, err
	}
	for _, o := range c.Obstacles() {
		if err := p.AddObstacle(o.Center, o.Radius); err != nil {
			return nil, err
		}
	}
	ctrl, err := control.New(c.ControllerConfig())
	if err != nil {
		return nil, err
	}
	return sim.New(c.VehicleModel(), p, ctrl), nil
}
