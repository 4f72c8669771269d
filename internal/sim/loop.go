package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/edgeflight/internal/control"
	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/monitoring"
	"github.com/san-kum/edgeflight/internal/planner"
	"github.com/san-kum/edgeflight/internal/timeutil"
	"golang.org/x/sync/errgroup"
)

// Loop is the real-time driver: a planner task and a controller task, each
// on its own ticker, sharing nothing but the trajectory hand-off. A slow
// plan never delays a control tick.
type Loop struct {
	Planner    *planner.Optimizer
	Controller *control.Geometric
	Clock      timeutil.Clock

	PlanPeriod    time.Duration
	ControlPeriod time.Duration

	// ReadState returns the latest estimated state. It is called from both
	// tasks and must be safe for concurrent use.
	ReadState func() flight.DroneState
	// WriteCommand delivers a command to the actuators. An error stops the
	// loop.
	WriteCommand func(flight.ControlCommand) error

	handoff flight.Handoff
}

func (l *Loop) validate() error {
	switch {
	case l.Planner == nil || l.Controller == nil:
		return errors.New("loop: planner and controller are required")
	case l.ReadState == nil || l.WriteCommand == nil:
		return errors.New("loop: state and command functions are required")
	case l.PlanPeriod <= 0 || l.ControlPeriod <= 0:
		return fmt.Errorf("loop: periods must be positive, got %v, %v", l.PlanPeriod, l.ControlPeriod)
	}
	return nil
}

// Handoff exposes the trajectory slot shared by the two tasks.
func (l *Loop) Handoff() *flight.Handoff { return &l.handoff }

// Run blocks until ctx is cancelled or WriteCommand fails. Cancellation is
// a clean stop and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.validate(); err != nil {
		return err
	}
	if l.Clock == nil {
		l.Clock = timeutil.RealClock{}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.planTask(ctx) })
	g.Go(func() error { return l.controlTask(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (l *Loop) planTask(ctx context.Context) error {
	ticker := l.Clock.NewTicker(l.PlanPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			st := l.ReadState()
			traj, rep := l.Planner.Replan(st)
			l.handoff.Publish(traj)
			if rep.Fallback {
				monitoring.Emit(monitoring.Event{
					Source: "planner",
					Kind:   rep.Source.String(),
					Time:   st.Timestamp,
					Detail: fmt.Sprint(rep.Err),
				})
			}
		}
	}
}

func (l *Loop) controlTask(ctx context.Context) error {
	ticker := l.Clock.NewTicker(l.ControlPeriod)
	defer ticker.Stop()

	last := l.Clock.Now()
	failsafe := l.Controller.FailsafeActive()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			dt := now.Sub(last).Seconds()
			last = now

			st := l.ReadState()
			cmd := l.Controller.Track(st, l.handoff.Load(), st.Timestamp, dt)
			if active := l.Controller.FailsafeActive(); active != failsafe {
				status := l.Controller.Status()
				monitoring.Emit(monitoring.Event{
					Source: "control",
					Kind:   status.Mode.String(),
					Time:   st.Timestamp,
					Detail: fmt.Sprint(status.LastError),
				})
				failsafe = active
			}
			if err := l.WriteCommand(cmd); err != nil {
				return fmt.Errorf("loop: write command: %w", err)
			}
		}
	}
}
