package control_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/edgeflight/internal/control"
	"github.com/san-kum/edgeflight/internal/flight"
	"gonum.org/v1/gonum/spatial/r3"
)

var _ = Describe("Geometric controller", func() {
	var (
		cfg  control.Config
		ctrl *control.Geometric
		home flight.DroneState
	)

	BeforeEach(func() {
		cfg = control.DefaultConfig()
		var err error
		ctrl, err = control.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		home = flight.Hover(r3.Vec{Z: 2})
	})

	healthy := func(n int) {
		for i := 0; i < n; i++ {
			ctrl.ComputeControl(home, flight.HoldAt(home.Position, 0), 0.001)
		}
	}
	diverging := func(n int) {
		sp := flight.Setpoint{Position: r3.Vec{X: 20, Z: 2}, Velocity: r3.Vec{X: 10}}
		for i := 0; i < n; i++ {
			ctrl.ComputeControl(home, sp, 0.001)
		}
	}

	Context("holding the current position", func() {
		It("settles on hover thrust with zero torque and never trips", func() {
			var cmd flight.ControlCommand
			for i := 0; i < 1000; i++ {
				cmd = ctrl.ComputeControl(home, flight.HoldAt(home.Position, 0), 0.001)
				Expect(ctrl.FailsafeActive()).To(BeFalse())
			}
			Expect(cmd.Thrust).To(BeNumerically("~", cfg.Mass*cfg.Gravity, 1e-9))
			Expect(r3.Norm(cmd.Torque)).To(BeNumerically("<", 1e-9))
			Expect(ctrl.Status().FailsafeActivations).To(BeZero())
		})
	})

	Context("when dt is zero", func() {
		It("returns hover thrust on the first call", func() {
			cmd := ctrl.ComputeControl(home, flight.HoldAt(home.Position, 0), 0)
			Expect(cmd.Thrust).To(BeNumerically("~", cfg.HoverThrust(), 1e-12))
			Expect(cmd.Torque).To(Equal(r3.Vec{}))
			Expect(ctrl.FailsafeActive()).To(BeTrue())
		})

		It("repeats the previous valid thrust", func() {
			prev := ctrl.ComputeControl(home, flight.HoldAt(r3.Vec{Z: 3}, 0), 0.001)
			Expect(prev.Thrust).NotTo(BeNumerically("~", cfg.HoverThrust(), 1e-6))

			cmd := ctrl.ComputeControl(home, flight.HoldAt(r3.Vec{Z: 3}, 0), 0)
			Expect(cmd.Thrust).To(Equal(prev.Thrust))
			Expect(cmd.Torque).To(Equal(r3.Vec{}))
			Expect(ctrl.FailsafeActive()).To(BeTrue())
			Expect(ctrl.Status().LastError).To(MatchError(flight.ErrInvalidTiming))
		})

		It("recovers only after a full window of healthy ticks", func() {
			ctrl.ComputeControl(home, flight.HoldAt(home.Position, 0), 0)
			healthy(cfg.HysteresisTicks - 1)
			Expect(ctrl.FailsafeActive()).To(BeTrue())
			healthy(1)
			Expect(ctrl.FailsafeActive()).To(BeFalse())
		})
	})

	Context("under sustained tracking divergence", func() {
		It("trips after the hysteresis window and clears after the same window", func() {
			diverging(cfg.HysteresisTicks - 1)
			Expect(ctrl.FailsafeActive()).To(BeFalse())
			diverging(1)
			Expect(ctrl.FailsafeActive()).To(BeTrue())
			Expect(ctrl.Status().FailsafeActivations).To(Equal(uint64(1)))

			diverging(50)
			cmd := ctrl.ComputeControl(home, flight.HoldAt(home.Position, 0), 0.001)
			Expect(cmd.Torque).To(Equal(r3.Vec{}))

			healthy(cfg.HysteresisTicks - 2)
			Expect(ctrl.FailsafeActive()).To(BeTrue())
			healthy(1)
			Expect(ctrl.FailsafeActive()).To(BeFalse())
			Expect(ctrl.Status().Mode).To(Equal(control.ModeNominal))
		})

		It("does not chatter on intermittent divergence", func() {
			for i := 0; i < 500; i++ {
				diverging(1)
				healthy(1)
			}
			Expect(ctrl.FailsafeActive()).To(BeFalse())
			Expect(ctrl.Status().FailsafeActivations).To(BeZero())
		})
	})

	Context("with a trajectory", func() {
		It("tracks the interpolated setpoint and holds without one", func() {
			samples := []flight.Sample{
				{T: 0, Position: home.Position, Thrust: r3.Vec{Z: cfg.Mass * cfg.Gravity}},
				{T: 0.1, Position: home.Position, Thrust: r3.Vec{Z: cfg.Mass * cfg.Gravity}},
			}
			traj, err := flight.NewTrajectory(samples, 0.1, flight.SourceOptimized, 1)
			Expect(err).NotTo(HaveOccurred())

			cmd := ctrl.Track(home, traj, 0.05, 0.001)
			Expect(cmd.Thrust).To(BeNumerically("~", cfg.Mass*cfg.Gravity, 1e-9))

			cmd = ctrl.Track(home, nil, 0.05, 0.001)
			Expect(cmd.Thrust).To(BeNumerically("~", cfg.Mass*cfg.Gravity, 1e-9))
			Expect(ctrl.FailsafeActive()).To(BeFalse())
		})
	})
})
