package optim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/edgeflight/internal/config"
	"github.com/san-kum/edgeflight/internal/metrics"
	"gonum.org/v1/gonum/spatial/r3"
)

// Gain scale names understood by ControllerGains. Each scales the base
// per-axis gain vector, keeping the axis ratios.
const (
	KpPos = "kp_pos"
	KdPos = "kd_pos"
	KpAtt = "kp_att"
	KdAtt = "kd_att"
)

// ControllerGains flies the mission in base with scaled controller gains
// and scores the run by the named metric. Runs that enter failsafe score
// +Inf.
func ControllerGains(base *config.Config, metric string) Evaluator {
	return func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg := *base
		cfg.Mission.Obstacles = append([]config.ObstacleParams(nil), base.Mission.Obstacles...)
		for name, scale := range params {
			g, err := gainField(&cfg.Controller, name)
			if err != nil {
				return 0, err
			}
			v := r3.Scale(scale, g.R3())
			*g = config.Vec3{v.X, v.Y, v.Z}
		}

		s, err := cfg.NewSimulator()
		if err != nil {
			return 0, err
		}
		s.AddMetric(metrics.NewTrackingRMS())
		s.AddMetric(metrics.NewControlEffort(cfg.Vehicle.Mass * cfg.Vehicle.Gravity))
		s.AddMetric(metrics.NewThrustSaturation(cfg.Vehicle.MinThrust, cfg.Vehicle.MaxThrust))
		s.AddMetric(metrics.NewStability(cfg.Controller.PositionErrorThreshold))
		s.AddMetric(metrics.NewEnergy(cfg.VehicleModel()))

		res, err := s.Run(ctx, cfg.StartState(), cfg.Goal(), cfg.SimConfig())
		if err != nil {
			return 0, err
		}
		if res.FailsafeActivations > 0 {
			return math.Inf(1), nil
		}
		val, ok := res.Metrics[metric]
		if !ok {
			return 0, fmt.Errorf("optim: unknown metric %q", metric)
		}
		return val, nil
	}
}

func gainField(c *config.ControllerParams, name string) (*config.Vec3, error) {
	switch name {
	case KpPos:
		return &c.KpPos, nil
	case KdPos:
		return &c.KdPos, nil
	case KpAtt:
		return &c.KpAtt, nil
	case KdAtt:
		return &c.KdAtt, nil
	}
	return nil, fmt.Errorf("optim: unknown gain %q", name)
}
