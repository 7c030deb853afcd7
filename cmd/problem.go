package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/cwbudde/optexplore/internal/bench"
	"github.com/cwbudde/optexplore/internal/config"
	"github.com/cwbudde/optexplore/internal/objective"
	"github.com/cwbudde/optexplore/internal/opt"
	"github.com/cwbudde/optexplore/internal/store"
)

func newSurface(c *config.Config) (objective.Rosenbrock, error) {
	r, err := objective.NewRosenbrockN(c.Objective.A, c.Objective.B, c.Objective.Dim)
	if err != nil {
		return objective.Rosenbrock{}, fmt.Errorf("failed to build objective: %w", err)
	}
	return r, nil
}

// newProblem builds the bounded Rosenbrock problem every driver runs on.
// With maximize the drivers minimize the negated surface. The plain slice
// cost is attached so derivative-free drivers skip the matrix conversion.
func newProblem(c *config.Config, maximize bool) (opt.Problem, objective.Rosenbrock, error) {
	r, err := newSurface(c)
	if err != nil {
		return opt.Problem{}, r, err
	}

	var s objective.Surface = r
	if maximize {
		s = objective.Maximize(r)
	}

	bounded, err := objective.NewBounded(s, c.Bounds.Lower, c.Bounds.Upper, objective.WithSeed(c.Seed))
	if err != nil {
		return opt.Problem{}, r, fmt.Errorf("failed to build bounded objective: %w", err)
	}

	p, err := opt.NewProblem(bounded, c.Init)
	if err != nil {
		return opt.Problem{}, r, err
	}
	p.Plain = objective.NewVec(s)
	return p, r, nil
}

func objectiveInfo(r objective.Rosenbrock, maximize bool) store.ObjectiveInfo {
	return store.ObjectiveInfo{Name: "rosenbrock", A: r.A(), B: r.B(), Dim: r.Dim(), Maximize: maximize}
}

func toStoreRows(rows []bench.Row) []store.Row {
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		out[i] = store.Row{
			Family: r.Family,
			Method: r.Method,
		}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			continue
		}
		out[i].BestCost = r.BestCost
		out[i].BestParams = r.BestParams
		out[i].ElapsedMS = float64(r.Time.Microseconds()) / 1000
		out[i].Iterations = r.Iterations
		out[i].Evaluations = r.Evaluations
		out[i].Termination = r.Termination
	}
	return out
}

func fromStoreRows(rows []store.Row) []bench.Row {
	out := make([]bench.Row, len(rows))
	for i, r := range rows {
		out[i] = bench.Row{
			Family:      r.Family,
			Method:      r.Method,
			BestCost:    r.BestCost,
			BestParams:  r.BestParams,
			Iterations:  r.Iterations,
			Evaluations: r.Evaluations,
			Termination: r.Termination,
		}
		out[i].Time = time.Duration(r.ElapsedMS * float64(time.Millisecond))
		if r.Error != "" {
			out[i].Err = errors.New(r.Error)
		}
	}
	return out
}
