package opt

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/cwbudde/optexplore/internal/objective"
	"gonum.org/v1/gonum/mat"
)

// ErrMissingCapability is returned when a driver needs an objective
// capability the problem does not provide.
var ErrMissingCapability = errors.New("missing capability")

// Capability is a set of objective capabilities a driver depends on.
type Capability uint8

const (
	NeedsCost Capability = 1 << iota
	NeedsGradient
	NeedsHessian
	NeedsPerturber
	NeedsBounds
	NeedsInit
)

func (c Capability) String() string {
	names := []string{"cost", "gradient", "hessian", "perturber", "bounds", "init"}
	var parts []string
	for i, name := range names {
		if c&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "+")
}

// Problem bundles the capabilities of an objective. Drivers use only the
// fields their family needs.
type Problem struct {
	Cost      objective.CostFunction[*mat.VecDense]
	Gradient  objective.Gradient[*mat.VecDense, *mat.VecDense]
	Hessian   objective.Hessian[*mat.VecDense, *mat.Dense]
	Perturber objective.Perturber[*mat.VecDense]

	// Plain, when set, is preferred by drivers that evaluate many raw
	// candidate slices.
	Plain objective.CostFunction[[]float64]

	Lower, Upper []float64
	Init         []float64
}

// NewProblem inspects obj and fills in every capability it implements.
// obj must at least be a CostFunction over *mat.VecDense.
func NewProblem(obj any, init []float64) (Problem, error) {
	var p Problem

	c, ok := obj.(objective.CostFunction[*mat.VecDense])
	if !ok {
		return p, fmt.Errorf("%w: %T does not evaluate cost", ErrMissingCapability, obj)
	}
	p.Cost = c
	if g, ok := obj.(objective.Gradient[*mat.VecDense, *mat.VecDense]); ok {
		p.Gradient = g
	}
	if h, ok := obj.(objective.Hessian[*mat.VecDense, *mat.Dense]); ok {
		p.Hessian = h
	}
	if pt, ok := obj.(objective.Perturber[*mat.VecDense]); ok {
		p.Perturber = pt
	}
	if b, ok := obj.(objective.Bounder); ok {
		p.Lower, p.Upper = b.Bounds()
	}
	if init != nil {
		p.Init = append([]float64(nil), init...)
	}
	return p, nil
}

// Has reports which of the requested capabilities are present.
func (p Problem) Has() Capability {
	var c Capability
	if p.Cost != nil || p.Plain != nil {
		c |= NeedsCost
	}
	if p.Gradient != nil {
		c |= NeedsGradient
	}
	if p.Hessian != nil {
		c |= NeedsHessian
	}
	if p.Perturber != nil {
		c |= NeedsPerturber
	}
	if len(p.Lower) > 0 && len(p.Lower) == len(p.Upper) {
		c |= NeedsBounds
	}
	if len(p.Init) > 0 {
		c |= NeedsInit
	}
	return c
}

// feasibleInit returns a copy of Init projected into the bounds, if any.
func (p Problem) feasibleInit() []float64 {
	x := append([]float64(nil), p.Init...)
	if p.Has()&NeedsBounds == 0 || len(x) != len(p.Lower) {
		return x
	}
	for i := range x {
		x[i] = math.Min(math.Max(x[i], p.Lower[i]), p.Upper[i])
	}
	return x
}

func (p Problem) require(method string, needs Capability) error {
	if missing := needs &^ p.Has(); missing != 0 {
		return fmt.Errorf("%s needs %s: %w", method, missing, ErrMissingCapability)
	}
	return nil
}

// evaluator adapts the problem to the callback style of third-party
// drivers, which cannot return errors. The first failure is kept and the
// failing evaluation reports +Inf.
type evaluator struct {
	p Problem

	mu    sync.Mutex
	err   error
	evals int
}

func (e *evaluator) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *evaluator) failure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *evaluator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evals
}

func (e *evaluator) cost(x []float64) float64 {
	e.mu.Lock()
	e.evals++
	e.mu.Unlock()

	var (
		f   float64
		err error
	)
	if e.p.Plain != nil {
		f, err = e.p.Plain.Cost(x)
	} else {
		f, err = e.p.Cost.Cost(mat.NewVecDense(len(x), x))
	}
	if err != nil {
		e.fail(err)
		return math.Inf(1)
	}
	return f
}

func (e *evaluator) grad(dst, x []float64) {
	g, err := e.p.Gradient.Gradient(mat.NewVecDense(len(x), x))
	if err != nil {
		e.fail(err)
		return
	}
	for i := range dst {
		dst[i] = g.AtVec(i)
	}
}

func (e *evaluator) hess(dst *mat.SymDense, x []float64) {
	h, err := e.p.Hessian.Hessian(mat.NewVecDense(len(x), x))
	if err != nil {
		e.fail(err)
		return
	}
	n := dst.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, h.At(i, j))
		}
	}
}
