package metrics

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Stability is the fraction of ticks on which the vehicle stayed within
// threshold metres of its setpoint.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(o Observation) {
	s.samples++
	if r3.Norm(r3.Sub(o.State.Position, o.Setpoint.Position)) > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
