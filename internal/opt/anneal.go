package opt

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/optexplore/internal/objective"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"
)

// Schedule maps an iteration number (starting at 1) to a temperature.
type Schedule interface {
	Temperature(k int) float64
}

// FastSchedule cools as T0/k.
type FastSchedule struct {
	T0 float64
}

func (s FastSchedule) Temperature(k int) float64 {
	return s.T0 / float64(k)
}

// ExponentialSchedule cools as T0*Alpha^(k-1).
type ExponentialSchedule struct {
	T0    float64
	Alpha float64
}

func (s ExponentialSchedule) Temperature(k int) float64 {
	return s.T0 * math.Pow(s.Alpha, float64(k-1))
}

// AnnealConfig configures the simulated annealing driver.
type AnnealConfig struct {
	// Temperature is the initial temperature, must be positive.
	Temperature float64

	// Schedule is "fast" (T0/k, the default) or "exponential".
	Schedule string

	// Alpha is the cooling factor of the exponential schedule, in (0, 1).
	Alpha float64

	// Chains is the number of independent chains run concurrently
	// against the same perturbation operator.
	Chains int

	// Seed seeds the acceptance draws; chain i uses Seed+i.
	Seed int64

	Convergence ConvergenceConfig
}

// DefaultAnnealConfig mirrors the benchmark settings.
func DefaultAnnealConfig() AnnealConfig {
	return AnnealConfig{
		Temperature: 15,
		Schedule:    "fast",
		Alpha:       0.95,
		Chains:      1,
		Seed:        42,
		Convergence: DisabledConvergenceConfig(),
	}
}

// Anneal is a simulated annealing driver. Candidates come from the
// problem's Perturber, which is shared by all chains.
type Anneal struct {
	cfg      AnnealConfig
	schedule Schedule
}

// NewAnneal validates cfg.
func NewAnneal(cfg AnnealConfig) (*Anneal, error) {
	if !(cfg.Temperature > 0) || math.IsInf(cfg.Temperature, 0) {
		return nil, fmt.Errorf("%w: initial temperature must be positive and finite, got %v", ErrInvalidOption, cfg.Temperature)
	}
	if cfg.Temperature > objective.MaxTemperature {
		return nil, fmt.Errorf("%w: initial temperature %v exceeds %v", ErrInvalidOption, cfg.Temperature, objective.MaxTemperature)
	}
	if cfg.Chains < 1 {
		return nil, fmt.Errorf("%w: chains must be at least 1, got %d", ErrInvalidOption, cfg.Chains)
	}
	if cfg.Convergence.Enabled && cfg.Convergence.Patience < 1 {
		return nil, fmt.Errorf("%w: convergence patience must be at least 1, got %d", ErrInvalidOption, cfg.Convergence.Patience)
	}

	var schedule Schedule
	switch cfg.Schedule {
	case "", "fast":
		schedule = FastSchedule{T0: cfg.Temperature}
	case "exponential":
		if !(cfg.Alpha > 0 && cfg.Alpha < 1) {
			return nil, fmt.Errorf("%w: cooling factor must be in (0, 1), got %v", ErrInvalidOption, cfg.Alpha)
		}
		schedule = ExponentialSchedule{T0: cfg.Temperature, Alpha: cfg.Alpha}
	default:
		return nil, fmt.Errorf("%w: unknown schedule %q", ErrInvalidOption, cfg.Schedule)
	}

	return &Anneal{cfg: cfg, schedule: schedule}, nil
}

func (a *Anneal) Name() string { return "simulated-annealing" }

type chainResult struct {
	chain      int
	best       *mat.VecDense
	bestCost   float64
	iterations int
	evals      int
	stalled    bool
}

// Run anneals from p.Init. With several chains the best chain wins; ties
// go to the lowest chain index so results are reproducible.
func (a *Anneal) Run(ctx context.Context, p Problem, s Settings) (*Result, error) {
	if err := p.require(a.Name(), NeedsCost|NeedsPerturber|NeedsInit); err != nil {
		return nil, err
	}
	if p.Cost == nil {
		return nil, fmt.Errorf("%s needs a vector cost: %w", a.Name(), ErrMissingCapability)
	}

	start := time.Now()
	chains := pool.NewWithResults[chainResult]().WithContext(ctx).WithCancelOnError()
	for c := 0; c < a.cfg.Chains; c++ {
		chain := c
		chains.Go(func(ctx context.Context) (chainResult, error) {
			return a.runChain(ctx, chain, p, s)
		})
	}
	results, err := chains.Wait()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", a.Name(), err)
	}

	var (
		best  *chainResult
		evals int
	)
	for i := range results {
		r := &results[i]
		evals += r.evals
		if best == nil || r.bestCost < best.bestCost || (r.bestCost == best.bestCost && r.chain < best.chain) {
			best = r
		}
	}

	status := StatusIterationLimit
	if best.stalled {
		status = StatusStalled
	}
	return &Result{
		Method:      a.Name(),
		BestParams:  mat.Col(nil, 0, best.best),
		BestCost:    best.bestCost,
		Iterations:  best.iterations,
		Evaluations: evals,
		Elapsed:     time.Since(start),
		Status:      status,
	}, nil
}

func (a *Anneal) runChain(ctx context.Context, chain int, p Problem, s Settings) (chainResult, error) {
	rng := rand.New(rand.NewSource(a.cfg.Seed + int64(chain)))
	tracker := NewConvergenceTracker(a.cfg.Convergence)

	cur := mat.NewVecDense(len(p.Init), p.feasibleInit())
	curCost, err := p.Cost.Cost(cur)
	if err != nil {
		return chainResult{}, fmt.Errorf("chain %d: initial cost: %w", chain, err)
	}

	res := chainResult{chain: chain, best: cur, bestCost: curCost, evals: 1}
	accepted := 0

	for k := 1; k <= s.MaxIters; k++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		temp := a.schedule.Temperature(k)
		cand, err := p.Perturber.Perturb(cur, temp)
		if err != nil {
			return res, fmt.Errorf("chain %d: perturb: %w", chain, err)
		}
		candCost, err := p.Cost.Cost(cand)
		if err != nil {
			return res, fmt.Errorf("chain %d: cost: %w", chain, err)
		}
		res.evals++
		res.iterations = k

		if accept(curCost, candCost, temp, rng) {
			cur, curCost = cand, candCost
			accepted++
		}
		if curCost < res.bestCost {
			res.best, res.bestCost = cur, curCost
		}

		if s.LogEvery > 0 && k%s.LogEvery == 0 {
			slog.Info("Iteration",
				"method", a.Name(),
				"chain", chain,
				"iter", k,
				"temp", temp,
				"cost", curCost,
				"best_cost", res.bestCost,
				"accepted", accepted,
			)
			// Traces follow the first chain only.
			if chain == 0 && s.Recorder != nil {
				it := Iteration{Iter: k, Cost: res.bestCost, Params: mat.Col(nil, 0, res.best)}
				if err := s.Recorder.Record(it); err != nil {
					return res, fmt.Errorf("chain %d: record: %w", chain, err)
				}
			}
		}

		if tracker.Update(res.bestCost) {
			res.stalled = true
			break
		}
	}
	return res, nil
}

// accept applies the Metropolis criterion.
func accept(cur, cand, temp float64, rng *rand.Rand) bool {
	if cand < cur {
		return true
	}
	if temp <= 0 {
		return false
	}
	return rng.Float64() < math.Exp(-(cand-cur)/temp)
}
