// Package optim tunes flight parameters by exhaustive grid search over
// closed-loop simulations.
package optim

import (
	"context"
	"errors"
	"math"

	"golang.org/x/sync/errgroup"
)

var ErrNoCandidate = errors.New("optim: no parameter set evaluated successfully")

// Evaluator scores one parameter set; lower is better.
type Evaluator func(ctx context.Context, params map[string]float64) (float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	// Parallelism bounds concurrent evaluations; zero or less is unbounded.
	Parallelism int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, Parallelism: 4}
}

// Search evaluates every combination and returns the best one. Failed or
// non-finite evaluations are skipped. Ties go to the earliest combination.
func (g *GridSearch) Search(ctx context.Context, eval Evaluator) (map[string]float64, float64, error) {
	var candidates []map[string]float64
	g.enumerate(0, make(map[string]float64), &candidates)

	scores := make([]float64, len(candidates))
	grp, ctx := errgroup.WithContext(ctx)
	if g.Parallelism > 0 {
		grp.SetLimit(g.Parallelism)
	}
	for i, params := range candidates {
		grp.Go(func() error {
			val, err := eval(ctx, params)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				val = math.Inf(1)
			}
			scores[i] = val
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, 0, err
	}

	best := math.Inf(1)
	bestIdx := -1
	for i, v := range scores {
		if !math.IsNaN(v) && v < best {
			best, bestIdx = v, i
		}
	}
	if bestIdx < 0 {
		return nil, 0, ErrNoCandidate
	}
	return candidates[bestIdx], best, nil
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		params := make(map[string]float64, len(current))
		for k, v := range current {
			params[k] = v
		}
		*out = append(*out, params)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[paramName] = val
		g.enumerate(depth+1, current, out)
	}
	delete(current, paramName)
}
