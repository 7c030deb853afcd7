package opt

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/optimize"
)

// ErrInvalidOption is returned when a driver is constructed with an
// out-of-range setting.
var ErrInvalidOption = errors.New("invalid option")

// ErrUnknownMethod is returned by New for names not in Methods().
var ErrUnknownMethod = errors.New("unknown method")

// Options carries the tunables of every known method.
type Options struct {
	// Armijo is the sufficient-decrease constant of the backtracking line search.
	Armijo float64

	// LBFGSStore is the number of correction pairs kept by L-BFGS.
	LBFGSStore int

	// PopSize and Seed configure the population driver.
	PopSize int
	Seed    int64

	Anneal AnnealConfig
}

// DefaultOptions returns the benchmark defaults.
func DefaultOptions() Options {
	return Options{
		Armijo:     1e-4,
		LBFGSStore: 5,
		PopSize:    30,
		Seed:       42,
		Anneal:     DefaultAnnealConfig(),
	}
}

// MethodInfo describes a registered method.
type MethodInfo struct {
	Name   string
	Family string
	Needs  Capability
}

type factory func(o Options) (Optimizer, error)

type entry struct {
	info MethodInfo
	make factory
}

var registry = []entry{
	gonumEntry("steepest-backtracking", "Line search", NeedsGradient, func(o Options) (optimize.Method, error) {
		bt, err := NewBacktracking(o.Armijo)
		if err != nil {
			return nil, err
		}
		return &optimize.GradientDescent{Linesearcher: bt}, nil
	}),
	gonumEntry("steepest-morethuente", "Line search", NeedsGradient, func(Options) (optimize.Method, error) {
		return &optimize.GradientDescent{Linesearcher: &optimize.MoreThuente{}}, nil
	}),
	gonumEntry("steepest-bisection", "Line search", NeedsGradient, func(Options) (optimize.Method, error) {
		return &optimize.GradientDescent{Linesearcher: &optimize.Bisection{}}, nil
	}),
	gonumEntry("cg-polakribiere", "Conjugate gradient", NeedsGradient, func(Options) (optimize.Method, error) {
		return &optimize.CG{
			Linesearcher:           &optimize.MoreThuente{},
			Variant:                &optimize.PolakRibierePolyak{},
			IterationRestartFactor: 5,
		}, nil
	}),
	gonumEntry("newton", "Newton methods", NeedsGradient|NeedsHessian, func(Options) (optimize.Method, error) {
		return &optimize.Newton{}, nil
	}),
	gonumEntry("bfgs", "Quasi-Newton methods", NeedsGradient, func(Options) (optimize.Method, error) {
		return &optimize.BFGS{Linesearcher: &optimize.MoreThuente{}}, nil
	}),
	gonumEntry("lbfgs", "Quasi-Newton methods", NeedsGradient, func(o Options) (optimize.Method, error) {
		if o.LBFGSStore < 1 {
			return nil, fmt.Errorf("%w: L-BFGS store must be at least 1, got %d", ErrInvalidOption, o.LBFGSStore)
		}
		return &optimize.LBFGS{Linesearcher: &optimize.MoreThuente{}, Store: o.LBFGSStore}, nil
	}),
	gonumEntry("nelder-mead", "Derivative-free", 0, func(Options) (optimize.Method, error) {
		return &optimize.NelderMead{}, nil
	}),
	{
		info: MethodInfo{Name: "simulated-annealing", Family: "Stochastic", Needs: NeedsCost | NeedsPerturber | NeedsInit},
		make: func(o Options) (Optimizer, error) { return NewAnneal(o.Anneal) },
	},
	{
		info: MethodInfo{Name: "mayfly", Family: "Population", Needs: NeedsCost | NeedsBounds},
		make: func(o Options) (Optimizer, error) { return NewMayfly(o.PopSize, o.Seed) },
	},
}

// gonumEntry validates the method options once at construction and builds
// a fresh gonum method for every run, since gonum methods keep state.
func gonumEntry(name, family string, needs Capability, method func(Options) (optimize.Method, error)) entry {
	return entry{
		info: MethodInfo{Name: name, Family: family, Needs: needs | NeedsCost | NeedsInit},
		make: func(o Options) (Optimizer, error) {
			if _, err := method(o); err != nil {
				return nil, err
			}
			return newGonum(name, needs, func() optimize.Method {
				m, _ := method(o)
				return m
			}), nil
		},
	}
}

// Methods lists the registered methods in benchmark order.
func Methods() []MethodInfo {
	infos := make([]MethodInfo, len(registry))
	for i, e := range registry {
		infos[i] = e.info
	}
	return infos
}

// MethodNames returns the registered names sorted alphabetically.
func MethodNames() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.info.Name
	}
	sort.Strings(names)
	return names
}

// New constructs the named method.
func New(name string, o Options) (Optimizer, error) {
	for _, e := range registry {
		if e.info.Name == name {
			return e.make(o)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// Lookup returns the description of the named method.
func Lookup(name string) (MethodInfo, bool) {
	for _, e := range registry {
		if e.info.Name == name {
			return e.info, true
		}
	}
	return MethodInfo{}, false
}
