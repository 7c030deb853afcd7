package objective

import (
	"fmt"
	"math"
)

// Rosenbrock is the banana-valley benchmark
//
//	f(x, y) = (a-x)^2 + b(y-x^2)^2
//
// For Dim() > 2 the surface is the sum of independent copies over the
// consecutive pairs (x0,x1), (x2,x3), ... so the minimizer stays at
// [a, a^2, a, a^2, ...] with value 0.
type Rosenbrock struct {
	a, b float64
	dim  int
}

// NewRosenbrock returns the two-dimensional surface with shape parameters a and b.
func NewRosenbrock(a, b float64) (Rosenbrock, error) {
	return NewRosenbrockN(a, b, 2)
}

// NewRosenbrockN returns a surface over dim parameters. dim must be even.
func NewRosenbrockN(a, b float64, dim int) (Rosenbrock, error) {
	if !(a > 0) || math.IsInf(a, 0) {
		return Rosenbrock{}, fmt.Errorf("%w: a must be positive and finite, got %v", ErrInvalidConfig, a)
	}
	if !(b > 0) || math.IsInf(b, 0) {
		return Rosenbrock{}, fmt.Errorf("%w: b must be positive and finite, got %v", ErrInvalidConfig, b)
	}
	if dim < 2 || dim%2 != 0 {
		return Rosenbrock{}, fmt.Errorf("%w: dimension must be even and at least 2, got %d", ErrInvalidConfig, dim)
	}
	return Rosenbrock{a: a, b: b, dim: dim}, nil
}

// DefaultRosenbrock returns the classic a=1, b=100 surface in two dimensions.
func DefaultRosenbrock() Rosenbrock {
	return Rosenbrock{a: 1, b: 100, dim: 2}
}

func (r Rosenbrock) A() float64 { return r.a }
func (r Rosenbrock) B() float64 { return r.b }
func (r Rosenbrock) Dim() int   { return r.dim }

// Minimizer returns the unique global minimizer.
func (r Rosenbrock) Minimizer() []float64 {
	m := make([]float64, r.dim)
	for i := 0; i < r.dim; i += 2 {
		m[i] = r.a
		m[i+1] = r.a * r.a
	}
	return m
}

func (r Rosenbrock) Value(x []float64) float64 {
	var sum float64
	for i := 0; i+1 < len(x); i += 2 {
		t0 := r.a - x[i]
		t1 := x[i+1] - x[i]*x[i]
		sum += t0*t0 + r.b*t1*t1
	}
	return sum
}

func (r Rosenbrock) Grad(x []float64) []float64 {
	g := make([]float64, len(x))
	for i := 0; i+1 < len(x); i += 2 {
		t1 := x[i+1] - x[i]*x[i]
		g[i] = -2*(r.a-x[i]) - 4*r.b*x[i]*t1
		g[i+1] = 2 * r.b * t1
	}
	return g
}

func (r Rosenbrock) Hess(x []float64) []float64 {
	n := len(x)
	h := make([]float64, n*n)
	for i := 0; i+1 < n; i += 2 {
		xx, y := x[i], x[i+1]
		off := -4 * r.b * xx
		h[i*n+i] = 2 - 4*r.b*(y-xx*xx) + 8*r.b*xx*xx
		h[i*n+i+1] = off
		h[(i+1)*n+i] = off
		h[(i+1)*n+i+1] = 2 * r.b
	}
	return h
}

func (r Rosenbrock) String() string {
	return fmt.Sprintf("rosenbrock(a=%g, b=%g, dim=%d)", r.a, r.b, r.dim)
}
