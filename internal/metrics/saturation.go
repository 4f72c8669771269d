package metrics

// ThrustSaturation is the fraction of ticks whose thrust command sat within
// tolerance of either actuator bound.
type ThrustSaturation struct {
	name      string
	min, max  float64
	tolerance float64
	saturated int
	samples   int
}

func NewThrustSaturation(minThrust, maxThrust float64) *ThrustSaturation {
	return &ThrustSaturation{
		name:      "thrust_saturation",
		min:       minThrust,
		max:       maxThrust,
		tolerance: 1e-3 * (maxThrust - minThrust),
	}
}

func (s *ThrustSaturation) Name() string {
	return s.name
}

func (s *ThrustSaturation) Observe(o Observation) {
	s.samples++
	if o.Command.Thrust <= s.min+s.tolerance || o.Command.Thrust >= s.max-s.tolerance {
		s.saturated++
	}
}

func (s *ThrustSaturation) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.saturated) / float64(s.samples)
}

func (s *ThrustSaturation) Reset() {
	s.saturated = 0
	s.samples = 0
}
