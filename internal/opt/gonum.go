package opt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/optimize"
)

// Gonum runs one of gonum's local optimization methods.
type Gonum struct {
	name   string
	needs  Capability
	method func() optimize.Method
}

// NewBacktracking returns a backtracking (Armijo) line searcher. The
// sufficient-decrease constant c must lie in (0, 1).
func NewBacktracking(c float64) (*optimize.Backtracking, error) {
	if !(c > 0 && c < 1) {
		return nil, fmt.Errorf("%w: sufficient decrease constant must be in (0, 1), got %v", ErrInvalidOption, c)
	}
	return &optimize.Backtracking{DecreaseFactor: c, ContractionFactor: 0.5}, nil
}

func newGonum(name string, needs Capability, method func() optimize.Method) *Gonum {
	return &Gonum{name: name, needs: needs | NeedsCost | NeedsInit, method: method}
}

func (g *Gonum) Name() string { return g.name }

// Needs returns the capabilities the method requires.
func (g *Gonum) Needs() Capability { return g.needs }

// Run minimizes p starting at p.Init.
func (g *Gonum) Run(ctx context.Context, p Problem, s Settings) (*Result, error) {
	if err := p.require(g.name, g.needs); err != nil {
		return nil, err
	}

	eval := &evaluator{p: p}
	problem := optimize.Problem{
		Func: eval.cost,
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			if err := eval.failure(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	if g.needs&NeedsGradient != 0 {
		problem.Grad = eval.grad
	}
	if g.needs&NeedsHessian != 0 {
		problem.Hess = eval.hess
	}

	settings := &optimize.Settings{
		MajorIterations: s.MaxIters,
		Recorder:        &progress{method: g.name, every: s.LogEvery, sink: s.Recorder},
	}

	slog.Debug("Starting gonum method", "method", g.name, "init", p.Init, "max_iters", s.MaxIters)

	start := time.Now()
	res, err := optimize.Minimize(problem, append([]float64(nil), p.Init...), settings, g.method())
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s aborted: %w", g.name, ctxErr)
	}
	if evalErr := eval.failure(); evalErr != nil {
		return nil, fmt.Errorf("%s: objective evaluation failed: %w", g.name, evalErr)
	}
	if res == nil {
		return nil, fmt.Errorf("%s failed: %w", g.name, err)
	}

	status := res.Status.String()
	if err != nil {
		// Line search breakdowns and similar method failures still leave a
		// usable best location; report them as the termination reason.
		slog.Warn("Method terminated with error", "method", g.name, "status", status, "error", err)
		status = fmt.Sprintf("%s: %v", status, err)
	}

	return &Result{
		Method:      g.name,
		BestParams:  res.X,
		BestCost:    res.F,
		Iterations:  res.Stats.MajorIterations,
		Evaluations: eval.count(),
		Elapsed:     elapsed,
		Status:      status,
	}, nil
}

// progress implements optimize.Recorder on top of slog and a Recorder.
type progress struct {
	method string
	every  int
	sink   Recorder
}

func (r *progress) Init() error { return nil }

func (r *progress) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op&optimize.MajorIteration == 0 || r.every <= 0 {
		return nil
	}
	iter := stats.MajorIterations
	if iter%r.every != 0 {
		return nil
	}

	slog.Info("Iteration",
		"method", r.method,
		"iter", iter,
		"cost", loc.F,
		"param", loc.X,
		"func_evals", stats.FuncEvaluations,
		"grad_evals", stats.GradEvaluations,
	)

	if r.sink == nil {
		return nil
	}
	return r.sink.Record(Iteration{
		Iter:   iter,
		Cost:   loc.F,
		Params: append([]float64(nil), loc.X...),
	})
}
