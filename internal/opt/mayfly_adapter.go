package opt

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cwbudde/mayfly"
)

// MinMayflyPopulation is the smallest population mayfly v0.1.0 accepts.
const MinMayflyPopulation = 20

// MayflyAdapter wraps the external Mayfly library as a bounded,
// derivative-free population driver.
type MayflyAdapter struct {
	popSize int
	seed    int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
func NewMayfly(popSize int, seed int64) (*MayflyAdapter, error) {
	if popSize < MinMayflyPopulation {
		return nil, fmt.Errorf("%w: mayfly population must be at least %d, got %d", ErrInvalidOption, MinMayflyPopulation, popSize)
	}
	return &MayflyAdapter{
		popSize: popSize,
		seed:    seed,
	}, nil
}

func (m *MayflyAdapter) Name() string { return "mayfly" }

// Run executes the Mayfly optimization inside p's bounds.
//
// The library only supports one scalar bound for every dimension. When the
// bounds differ between dimensions the search runs on the unit box and
// candidates are mapped onto [Lower, Upper] before evaluation.
func (m *MayflyAdapter) Run(ctx context.Context, p Problem, s Settings) (*Result, error) {
	if err := p.require(m.Name(), NeedsCost|NeedsBounds); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s aborted: %w", m.Name(), err)
	}

	dim := len(p.Lower)
	eval := &evaluator{p: p}
	toBounds := func(u []float64) []float64 { return scaleToBounds(u, p.Lower, p.Upper) }
	lo, hi := 0.0, 1.0
	if uniformBounds(p.Lower, p.Upper) {
		toBounds = func(x []float64) []float64 { return append([]float64(nil), x...) }
		lo, hi = p.Lower[0], p.Upper[0]
	}
	best := math.Inf(1)
	var bestX []float64

	// Progress is reported per batch of popSize evaluations.
	var mu sync.Mutex
	calls, batch := 0, 0
	fn := func(u []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		x := toBounds(u)
		f := eval.cost(x)

		mu.Lock()
		defer mu.Unlock()
		if f < best {
			best = f
			bestX = x
		}
		calls++
		if calls%m.popSize == 0 {
			batch++
			m.report(batch, best, bestX, s)
		}
		return f
	}

	// Create config for external Mayfly library
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = fn
	config.ProblemSize = dim
	config.MaxIterations = s.MaxIters
	config.NPop = m.popSize
	config.LowerBound = lo
	config.UpperBound = hi

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	start := time.Now()
	result, err := mayfly.Optimize(config)
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s aborted: %w", m.Name(), ctxErr)
	}
	if evalErr := eval.failure(); evalErr != nil {
		return nil, fmt.Errorf("%s: objective evaluation failed: %w", m.Name(), evalErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", m.Name(), err)
	}

	return &Result{
		Method:      m.Name(),
		BestParams:  toBounds(result.GlobalBest.Position),
		BestCost:    result.GlobalBest.Cost,
		Iterations:  s.MaxIters,
		Evaluations: eval.count(),
		Elapsed:     elapsed,
		Status:      StatusIterationLimit,
	}, nil
}

func (m *MayflyAdapter) report(batch int, cost float64, x []float64, s Settings) {
	if s.LogEvery <= 0 || batch%s.LogEvery != 0 {
		return
	}
	slog.Info("Iteration", "method", m.Name(), "batch", batch, "cost", cost, "param", x)
	if s.Recorder != nil {
		if err := s.Recorder.Record(Iteration{Iter: batch, Cost: cost, Params: x}); err != nil {
			slog.Warn("Failed to record progress", "method", m.Name(), "error", err)
		}
	}
}

func uniformBounds(lower, upper []float64) bool {
	for i := range lower {
		if lower[i] != lower[0] || upper[i] != upper[0] {
			return false
		}
	}
	return true
}

// scaleToBounds maps u from the unit box onto [lower, upper].
func scaleToBounds(u, lower, upper []float64) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		v = math.Min(math.Max(v, 0), 1)
		x[i] = lower[i] + v*(upper[i]-lower[i])
	}
	return x
}
