package metrics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ControlEffort is the mean deviation of the command from hover: thrust
// away from hover plus torque magnitude.
type ControlEffort struct {
	name    string
	hover   float64
	sum     float64
	samples int
}

func NewControlEffort(hoverThrust float64) *ControlEffort {
	return &ControlEffort{
		name:  "control_effort",
		hover: hoverThrust,
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(o Observation) {
	c.sum += math.Abs(o.Command.Thrust-c.hover) + r3.Norm(o.Command.Torque)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}
