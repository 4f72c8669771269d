package control

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

type Mode int

const (
	ModeNominal Mode = iota
	ModeFailsafe
)

func (m Mode) String() string {
	switch m {
	case ModeNominal:
		return "nominal"
	case ModeFailsafe:
		return "failsafe"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type transition int

const (
	transitionNone transition = iota
	transitionTrip
	transitionClear
)

// failsafe is the NOMINAL/FAILSAFE machine. counter rises on divergent
// ticks and falls on healthy ones, saturating at [0, limit]; the machine
// trips when counter reaches limit and clears when it returns to zero.
type failsafe struct {
	limit       int
	counter     int
	active      bool
	activations uint64
}

func (f *failsafe) observe(diverged bool) transition {
	if diverged {
		f.counter = min(f.counter+1, f.limit)
	} else {
		f.counter = max(f.counter-1, 0)
	}

	switch {
	case !f.active && f.counter >= f.limit:
		f.active = true
		f.activations++
		return transitionTrip
	case f.active && f.counter == 0:
		f.active = false
		return transitionClear
	}
	return transitionNone
}

// trip forces failsafe immediately and saturates the counter so recovery
// takes a full hysteresis window.
func (f *failsafe) trip() transition {
	f.counter = f.limit
	if f.active {
		return transitionNone
	}
	f.active = true
	f.activations++
	return transitionTrip
}

func (f *failsafe) reset() {
	f.counter = 0
	f.active = false
	f.activations = 0
}

// Status is the controller's observable state for telemetry.
type Status struct {
	Mode                Mode
	FailsafeActive      bool
	FailsafeActivations uint64
	Counter             int
	Ticks               uint64
	Integral            r3.Vec
	LastError           error
}

func (g *Geometric) Status() Status {
	mode := ModeNominal
	if g.fs.active {
		mode = ModeFailsafe
	}
	return Status{
		Mode:                mode,
		FailsafeActive:      g.fs.active,
		FailsafeActivations: g.fs.activations,
		Counter:             g.fs.counter,
		Ticks:               g.ticks,
		Integral:            g.pid.Integral(),
		LastError:           g.lastErr,
	}
}

// FailsafeActive reports whether the controller is holding thrust.
func (g *Geometric) FailsafeActive() bool {
	return g.fs.active
}
