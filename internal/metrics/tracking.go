package metrics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// TrackingRMS is the root-mean-square distance between the vehicle and the
// setpoint it was commanded toward.
type TrackingRMS struct {
	name    string
	sumSq   float64
	samples int
}

func NewTrackingRMS() *TrackingRMS {
	return &TrackingRMS{
		name: "tracking_rms",
	}
}

func (m *TrackingRMS) Name() string {
	return m.name
}

func (m *TrackingRMS) Observe(o Observation) {
	m.sumSq += r3.Norm2(r3.Sub(o.State.Position, o.Setpoint.Position))
	m.samples++
}

func (m *TrackingRMS) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return math.Sqrt(m.sumSq / float64(m.samples))
}

func (m *TrackingRMS) Reset() {
	m.sumSq = 0
	m.samples = 0
}
