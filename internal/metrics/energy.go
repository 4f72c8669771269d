package metrics

import (
	"github.com/san-kum/edgeflight/internal/physics"
)

// Energy is the mean mechanical energy of the airframe over the flight.
type Energy struct {
	name        string
	model       *physics.Quadrotor
	samples     int
	totalEnergy float64
}

func NewEnergy(model *physics.Quadrotor) *Energy {
	return &Energy{
		name:  "energy",
		model: model,
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(o Observation) {
	e.totalEnergy += e.model.Energy(physics.FromDroneState(o.State))
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}
