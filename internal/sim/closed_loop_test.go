package sim_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/edgeflight/internal/config"
	"github.com/san-kum/edgeflight/internal/control"
	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/metrics"
	"github.com/san-kum/edgeflight/internal/monitoring"
	"github.com/san-kum/edgeflight/internal/physics"
	"github.com/san-kum/edgeflight/internal/planner"
	"github.com/san-kum/edgeflight/internal/sim"
	"gonum.org/v1/gonum/spatial/r3"
)

var _ = Describe("Closed loop", func() {
	var (
		opt       *planner.Optimizer
		flightSim *sim.Simulator
		plant     *physics.Quadrotor
		cfg       sim.Config
		logs      []string
	)

	BeforeEach(func() {
		logs = nil
		monitoring.SetLogger(func(format string, v ...interface{}) {
			logs = append(logs, format)
		})
		DeferCleanup(func() { monitoring.SetLogger(nil) })

		var err error
		opt, err = planner.New(planner.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		ctrl, err := control.New(control.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		plant = physics.NewQuadrotor()
		flightSim = sim.New(plant, opt, ctrl)
		flightSim.AddMetric(metrics.NewTrackingRMS())
		flightSim.AddMetric(metrics.NewThrustSaturation(2, 30))
		flightSim.AddMetric(metrics.NewControlEffort(plant.HoverThrust()))

		cfg = sim.DefaultConfig()
		cfg.Duration = 12
	})

	It("flies to a goal 5 m away without tripping the failsafe", func() {
		goal := r3.Vec{X: 5, Z: 1}
		res, err := flightSim.Run(context.Background(), flight.Hover(r3.Vec{Z: 1}), goal, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(r3.Norm(r3.Sub(res.Final().Position, goal))).To(BeNumerically("<", 1.0))
		Expect(res.FailsafeActivations).To(BeZero())
		Expect(res.Errors).To(BeEmpty())
		Expect(res.Metrics).To(HaveKey("tracking_rms"))
		Expect(res.Metrics["thrust_saturation"]).To(BeNumerically("<", 0.5))
		Expect(res.PlannerStats.Plans).To(BeEquivalentTo(res.Replans))
		Expect(res.PlannerStats.ColdStarts).To(BeEquivalentTo(1))
	})

	It("stays clear of an obstacle between start and goal", func() {
		obstacle := flight.Obstacle{Center: r3.Vec{X: 4, Z: 1}, Radius: 1}
		Expect(opt.AddObstacle(obstacle.Center, obstacle.Radius)).To(Succeed())

		res, err := flightSim.Run(context.Background(), flight.Hover(r3.Vec{Z: 1}), r3.Vec{X: 8, Z: 1}, cfg)
		Expect(err).NotTo(HaveOccurred())

		margin := planner.DefaultConfig().ObstacleMargin
		for _, s := range res.States {
			Expect(obstacle.Clearance(s.Position)).To(BeNumerically(">=", margin))
		}
		Expect(res.FailsafeActivations).To(BeZero())
	})

	It("flies around a large obstacle on the straight line to the goal", func() {
		c := config.DefaultConfig()
		c.Mission.Start = config.Vec3{0, 0, 2}
		c.Mission.Goal = config.Vec3{10, 0, 2}
		c.Mission.Obstacles = []config.ObstacleParams{{Center: config.Vec3{5, 0, 2}, Radius: 2}}
		c.Sim.Duration = 12

		detourSim, err := c.NewSimulator()
		Expect(err).NotTo(HaveOccurred())
		res, err := detourSim.Run(context.Background(), c.StartState(), c.Goal(), c.SimConfig())
		Expect(err).NotTo(HaveOccurred())

		obstacle := c.Obstacles()[0]
		for _, s := range res.States {
			Expect(obstacle.Clearance(s.Position)).To(BeNumerically(">=", c.Planner.ObstacleMargin))
		}
		Expect(res.Fallbacks).To(BeNumerically("<=", res.Replans/10))
		Expect(res.FailsafeActivations).To(BeZero())
		Expect(r3.Norm(r3.Sub(res.Final().Position, c.Goal()))).To(BeNumerically("<", 1.0))
	})

	It("holds position and logs every plan when the goal is unusable", func() {
		cfg.Duration = 0.5
		home := flight.Hover(r3.Vec{Z: 1})

		res, err := flightSim.Run(context.Background(), home, r3.Vec{X: math.NaN()}, cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(res.Fallbacks).To(Equal(res.Replans))
		Expect(logs).To(HaveLen(res.Fallbacks))
		Expect(r3.Norm(r3.Sub(res.Final().Position, home.Position))).To(BeNumerically("<", 1e-6))
	})
})
