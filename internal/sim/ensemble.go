package sim

import (
	"context"
	"math/rand"

	"github.com/san-kum/edgeflight/internal/flight"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Factory builds an independent simulator. Planner, controller and plant
// all carry state, so ensemble members never share them.
type Factory func() (*Simulator, error)

// Ensemble runs the same flight from randomly perturbed starts in parallel.
type Ensemble struct {
	factory   Factory
	numRuns   int
	seedStart int64
	// Spread is the standard deviation, in metres, of the start offset.
	Spread float64
}

func NewEnsemble(factory Factory, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{factory: factory, numRuns: numRuns, seedStart: seedStart, Spread: 0.5}
}

func (e *Ensemble) Run(ctx context.Context, initial flight.DroneState, goal r3.Vec, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < e.numRuns; i++ {
		g.Go(func() error {
			s, err := e.factory()
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(e.seedStart + int64(i)))
			start := initial
			start.Position = r3.Add(start.Position, r3.Scale(e.Spread, r3.Vec{
				X: rng.NormFloat64(),
				Y: rng.NormFloat64(),
				Z: rng.NormFloat64(),
			}))

			res, err := s.Run(ctx, start, goal, cfg)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
