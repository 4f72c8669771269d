package optim

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/san-kum/edgeflight/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridSearchFindsMinimum(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{-1, 0, 1, 2}, {0, 3}})

	var calls atomic.Int32
	best, val, err := g.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		calls.Add(1)
		return (p["a"]-1)*(p["a"]-1) + (p["b"]-3)*(p["b"]-3), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(8), calls.Load())
	assert.Equal(t, map[string]float64{"a": 1, "b": 3}, best)
	assert.Equal(t, 0.0, val)
}

func TestGridSearchSkipsFailures(t *testing.T) {
	g := NewGridSearch([]string{"a"}, [][]float64{{1, 2, 3}})
	g.Parallelism = 1

	best, val, err := g.Search(context.Background(), func(_ context.Context, p map[string]float64) (float64, error) {
		switch p["a"] {
		case 1:
			return 0, errors.New("diverged")
		case 2:
			return math.NaN(), nil
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, best["a"])
	assert.Equal(t, 7.0, val)
}

func TestGridSearchNoCandidate(t *testing.T) {
	g := NewGridSearch([]string{"a"}, [][]float64{{1}})
	_, _, err := g.Search(context.Background(), func(context.Context, map[string]float64) (float64, error) {
		return 0, errors.New("nope")
	})
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestGridSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGridSearch([]string{"a"}, [][]float64{{1, 2}})
	_, _, err := g.Search(ctx, func(ctx context.Context, _ map[string]float64) (float64, error) {
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestControllerGains(t *testing.T) {
	if testing.Short() {
		t.Skip("closed-loop simulation")
	}
	base := config.DefaultConfig()
	base.Sim.Duration = 3
	base.Mission.Goal = config.Vec3{2, 0, 1}

	g := NewGridSearch([]string{KpPos}, [][]float64{{0.75, 1}})
	best, val, err := g.Search(context.Background(), ControllerGains(base, "tracking_rms"))
	require.NoError(t, err)
	assert.Contains(t, []float64{0.75, 1}, best[KpPos])
	assert.False(t, math.IsInf(val, 0))

	// the base config is left untouched
	assert.Equal(t, config.DefaultConfig().Controller, base.Controller)
}

func TestControllerGainsMetrics(t *testing.T) {
	if testing.Short() {
		t.Skip("closed-loop simulation")
	}
	base := config.DefaultConfig()
	base.Sim.Duration = 1

	for _, name := range []string{"tracking_rms", "control_effort", "thrust_saturation", "stability", "energy"} {
		val, err := ControllerGains(base, name)(context.Background(), nil)
		require.NoError(t, err, name)
		assert.False(t, math.IsNaN(val), name)
	}

	// stability is a fraction of ticks, so a hover-like start scores near one
	val, err := ControllerGains(base, "stability")(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, val, 1e-9)
}

func TestControllerGainsRejectsUnknown(t *testing.T) {
	eval := ControllerGains(config.DefaultConfig(), "tracking_rms")
	_, err := eval(context.Background(), map[string]float64{"ki_yaw": 2})
	assert.Error(t, err)
}
