package planner

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Stats summarises planner health. Rates and latency quantiles cover the
// last StatsWindow plans; counts cover the optimizer's lifetime.
type Stats struct {
	Plans       uint64
	Converged   uint64
	Fallbacks   uint64
	ColdStarts  uint64
	WarmStarts  uint64
	FastReplans uint64

	SuccessRate float64
	LatencyP50  time.Duration
	LatencyP99  time.Duration
	LatencyMax  time.Duration
}

type rollingStats struct {
	totals    Stats
	window    int
	next      int
	filled    int
	success   []bool
	latencies []float64
}

func newRollingStats(window int) *rollingStats {
	return &rollingStats{
		window:    window,
		success:   make([]bool, window),
		latencies: make([]float64, window),
	}
}

func (r *rollingStats) record(rep Report) {
	r.totals.Plans++
	if rep.Converged {
		r.totals.Converged++
	}
	if rep.Fallback {
		r.totals.Fallbacks++
	}
	switch rep.Mode {
	case ColdStart:
		r.totals.ColdStarts++
	case WarmStart:
		r.totals.WarmStarts++
	case FastReplan:
		r.totals.FastReplans++
	}

	r.success[r.next] = rep.Converged && !rep.Fallback
	r.latencies[r.next] = rep.Latency.Seconds()
	r.next = (r.next + 1) % r.window
	if r.filled < r.window {
		r.filled++
	}
}

func (r *rollingStats) snapshot() Stats {
	out := r.totals
	if r.filled == 0 {
		return out
	}

	var ok int
	for _, s := range r.success[:r.filled] {
		if s {
			ok++
		}
	}
	out.SuccessRate = float64(ok) / float64(r.filled)

	lat := append([]float64(nil), r.latencies[:r.filled]...)
	sort.Float64s(lat)
	out.LatencyP50 = seconds(stat.Quantile(0.5, stat.Empirical, lat, nil))
	out.LatencyP99 = seconds(stat.Quantile(0.99, stat.Empirical, lat, nil))
	out.LatencyMax = seconds(lat[len(lat)-1])
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
