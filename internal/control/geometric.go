package control

import (
	"fmt"
	"math"

	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/geom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Geometric is the SE(3) tracking controller for one vehicle.
type Geometric struct {
	cfg Config
	pid *PositionPID
	fs  failsafe

	ticks    uint64
	lastGood flight.ControlCommand
	hasGood  bool
	lastErr  error
}

func New(cfg Config) (*Geometric, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}
	return &Geometric{
		cfg: cfg,
		pid: NewPositionPID(cfg),
		fs:  failsafe{limit: cfg.HysteresisTicks},
	}, nil
}

func (g *Geometric) Config() Config { return g.cfg }

// ComputeControl runs one control tick. The returned command always has
// thrust in [MinThrust, MaxThrust] and every torque component within
// ±MaxTorque.
func (g *Geometric) ComputeControl(s flight.DroneState, sp flight.Setpoint, dt float64) (cmd flight.ControlCommand) {
	g.ticks++
	defer func() {
		if r := recover(); r != nil {
			cmd = g.fault(flight.ErrNumericalFault, dt, fmt.Sprintf("recovered: %v", r))
		}
	}()

	if !(dt > 0) || dt > g.cfg.MaxDt {
		return g.fault(flight.ErrInvalidTiming, dt, "control period out of range")
	}
	if err := s.Validate(); err != nil {
		return g.fault(flight.ErrNumericalFault, dt, err.Error())
	}
	if !setpointFinite(sp) {
		return g.fault(flight.ErrNumericalFault, dt, "setpoint not finite")
	}

	posErr := r3.Sub(sp.Position, s.Position)
	velErr := r3.Sub(sp.Velocity, s.Velocity)

	diverged := r3.Norm(posErr) > g.cfg.PositionErrorThreshold &&
		r3.Norm(velErr) > g.cfg.VelocityErrorThreshold
	if g.fs.observe(diverged) == transitionTrip {
		g.pid.Reset()
	}
	if g.fs.active {
		return g.hold()
	}

	cmd = g.track(s, sp, posErr, velErr, dt)
	if !cmd.IsFinite() {
		return g.fault(flight.ErrNumericalFault, dt, "command not finite")
	}
	g.lastGood = cmd
	g.hasGood = true
	return cmd
}

// Track samples traj at time t and runs one tick. With no trajectory the
// vehicle is braked to a hold at its current position.
func (g *Geometric) Track(s flight.DroneState, traj *flight.Trajectory, t, dt float64) flight.ControlCommand {
	if traj == nil {
		return g.ComputeControl(s, flight.HoldAt(s.Position, s.Yaw()), dt)
	}
	return g.ComputeControl(s, traj.SetpointAt(t), dt)
}

// Reset clears the integrator, the failsafe state and the command history.
func (g *Geometric) Reset() {
	g.pid.Reset()
	g.fs.reset()
	g.ticks = 0
	g.lastGood = flight.ControlCommand{}
	g.hasGood = false
	g.lastErr = nil
}

func (g *Geometric) track(s flight.DroneState, sp flight.Setpoint, posErr, velErr r3.Vec, dt float64) flight.ControlCommand {
	cfg := g.cfg

	feedback := g.pid.Update(posErr, velErr, dt)
	feedforward := r3.Add(geom.Hadamard(cfg.FFPos, posErr), geom.Hadamard(cfg.FFVel, sp.Acceleration))
	accel := r3.Add(feedback, feedforward)

	thrustVec := r3.Scale(cfg.Mass, r3.Add(accel, r3.Scale(cfg.Gravity, geom.Up)))
	thrust := geom.SoftClamp(r3.Norm(thrustVec), cfg.MinThrust, cfg.MaxThrust, cfg.ThrustSoftBand)

	zDes := geom.LimitTilt(geom.UnitOr(thrustVec, 1e-6, geom.Up), cfg.MaxTilt)
	rDes := geom.FrameFromZYaw(zDes, sp.Yaw)
	eR := attitudeError(rDes, s.Rotation())
	eOmega := r3.Sub(s.AngularVelocity, r3.Vec{Z: sp.YawRate})

	torque := r3.Add(geom.Hadamard(cfg.KpAtt, eR), geom.Hadamard(cfg.KdAtt, eOmega))
	torque = geom.ClampAbs(r3.Scale(-1, torque), cfg.MaxTorque)

	return flight.ControlCommand{Thrust: thrust, Torque: torque}
}

// attitudeError is ½·vee(RdᵀR − RᵀRd).
func attitudeError(rDes, r mat.Matrix) r3.Vec {
	var a, b mat.Dense
	a.Mul(rDes.T(), r)
	b.Mul(r.T(), rDes)
	a.Sub(&a, &b)
	return r3.Scale(0.5, geom.Vee(&a))
}

func (g *Geometric) fault(kind error, dt float64, detail string) flight.ControlCommand {
	g.lastErr = &flight.ControlError{Tick: g.ticks, Dt: dt, Detail: detail, Wrapped: kind}
	if g.fs.trip() == transitionTrip {
		g.pid.Reset()
	}
	return g.hold()
}

// hold is the failsafe output: last valid thrust, zero torque.
func (g *Geometric) hold() flight.ControlCommand {
	if g.hasGood {
		return flight.ControlCommand{Thrust: g.lastGood.Thrust}
	}
	return flight.ControlCommand{Thrust: g.cfg.HoverThrust()}
}

func setpointFinite(sp flight.Setpoint) bool {
	return geom.Finite(sp.Position) && geom.Finite(sp.Velocity) && geom.Finite(sp.Acceleration) &&
		!math.IsNaN(sp.Yaw) && !math.IsInf(sp.Yaw, 0) &&
		!math.IsNaN(sp.YawRate) && !math.IsInf(sp.YawRate, 0)
}
