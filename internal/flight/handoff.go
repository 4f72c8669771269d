package flight

import "sync/atomic"

// Handoff carries the latest trajectory from the planner to the
// controller. Publish and Load may run on different goroutines; Load
// returns either nil (nothing published yet) or a complete trajectory.
type Handoff struct {
	current    atomic.Pointer[Trajectory]
	generation atomic.Uint64
}

// Publish replaces the current trajectory. nil is ignored so a reader never
// loses a trajectory it could still track.
func (h *Handoff) Publish(t *Trajectory) {
	if t == nil {
		return
	}
	h.current.Store(t)
	h.generation.Add(1)
}

func (h *Handoff) Load() *Trajectory {
	return h.current.Load()
}

// Generation counts publications.
func (h *Handoff) Generation() uint64 {
	return h.generation.Load()
}
