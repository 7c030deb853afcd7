package objective

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// MaxStep is the largest absolute change a single perturbation step applies.
const MaxStep = 0.1

// MaxTemperature is the highest temperature Perturb accepts. Steps
// saturates at Steps(MaxTemperature) above it.
const MaxTemperature = 1e5

// Bounded is the Dense representation paired with box constraints and a
// random neighbor generator for annealing-style drivers.
//
// A Bounded must be shared by pointer. Cost, Gradient and Hessian take no
// locks; Perturb serializes on the generator for the whole call.
type Bounded struct {
	Dense

	lower []float64
	upper []float64

	mu  sync.Mutex
	rng *rand.Rand
}

var (
	_ CostFunction[*mat.VecDense]            = (*Bounded)(nil)
	_ Gradient[*mat.VecDense, *mat.VecDense] = (*Bounded)(nil)
	_ Hessian[*mat.VecDense, *mat.Dense]     = (*Bounded)(nil)
	_ Perturber[*mat.VecDense]               = (*Bounded)(nil)
	_ Bounder                                = (*Bounded)(nil)
)

// BoundedOption configures NewBounded.
type BoundedOption func(*boundedOptions)

type boundedOptions struct {
	src rand.Source
}

// WithSeed seeds the generator deterministically.
func WithSeed(seed int64) BoundedOption {
	return func(o *boundedOptions) {
		o.src = rand.NewSource(seed)
	}
}

// WithSource uses src as the generator source. src must not be shared.
func WithSource(src rand.Source) BoundedOption {
	return func(o *boundedOptions) {
		o.src = src
	}
}

// DefaultBounds returns the [-5, 5] box used by the shipped benchmark.
func DefaultBounds() (lower, upper []float64) {
	return []float64{-5, -5}, []float64{5, 5}
}

// NewBounded validates the bounds against s and returns a perturbation
// capable objective. Without options the generator is seeded from the
// operating system's entropy source.
func NewBounded(s Surface, lower, upper []float64, opts ...BoundedOption) (*Bounded, error) {
	n := s.Dim()
	if len(lower) != n || len(upper) != n {
		return nil, fmt.Errorf("%w: bounds have lengths %d/%d, want %d", ErrInvalidConfig, len(lower), len(upper), n)
	}
	for i := range lower {
		if math.IsNaN(lower[i]) || math.IsNaN(upper[i]) || math.IsInf(lower[i], 0) || math.IsInf(upper[i], 0) {
			return nil, fmt.Errorf("%w: bound %d is not finite", ErrInvalidConfig, i)
		}
		if lower[i] > upper[i] {
			return nil, fmt.Errorf("%w: lower bound %d (%v) exceeds upper bound (%v)", ErrInvalidConfig, i, lower[i], upper[i])
		}
	}

	var o boundedOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.src == nil {
		seed, err := entropySeed()
		if err != nil {
			return nil, err
		}
		o.src = rand.NewSource(seed)
	}

	return &Bounded{
		Dense: NewDense(s),
		lower: append([]float64(nil), lower...),
		upper: append([]float64(nil), upper...),
		rng:   rand.New(o.src),
	}, nil
}

// Bounds returns copies of the lower and upper bounds.
func (b *Bounded) Bounds() (lower, upper []float64) {
	return append([]float64(nil), b.lower...), append([]float64(nil), b.upper...)
}

// Contains reports whether x lies inside the bounds.
func (b *Bounded) Contains(x []float64) bool {
	if len(x) != len(b.lower) {
		return false
	}
	for i, v := range x {
		if v < b.lower[i] || v > b.upper[i] {
			return false
		}
	}
	return true
}

// Clamp returns a copy of x with every component moved into the bounds.
// Components beyond the bounds' dimension are copied unchanged.
func (b *Bounded) Clamp(x []float64) []float64 {
	out := append([]float64(nil), x...)
	for i := range out {
		if i >= len(b.lower) {
			break
		}
		out[i] = clamp(out[i], b.lower[i], b.upper[i])
	}
	return out
}

// Steps returns the number of perturbation steps applied at temperature
// temp. It is 1 for temp below one (including NaN) and saturates at
// MaxTemperature.
func Steps(temp float64) int {
	if !(temp > 0) {
		return 1
	}
	if temp >= MaxTemperature {
		return int(MaxTemperature) + 1
	}
	return int(math.Floor(temp)) + 1
}

// Perturb returns a random neighbor of param. It applies Steps(temp)
// sequential moves to a working copy; each move shifts one uniformly chosen
// component by a uniform delta in [-MaxStep, MaxStep] and clamps it back
// into its bounds. param is not modified.
func (b *Bounded) Perturb(param *mat.VecDense, temp float64) (*mat.VecDense, error) {
	if math.IsNaN(temp) || math.IsInf(temp, 0) || temp < 0 {
		return nil, fmt.Errorf("%w: temperature must be finite and non-negative, got %v", ErrInvalidInput, temp)
	}
	if temp > MaxTemperature {
		return nil, fmt.Errorf("%w: temperature %v exceeds %v", ErrInvalidInput, temp, MaxTemperature)
	}
	x, err := b.flatten(param)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(x)
	for step := Steps(temp); step > 0; step-- {
		idx := b.rng.Intn(n)
		delta := (2*b.rng.Float64() - 1) * MaxStep
		x[idx] = clamp(x[idx]+delta, b.lower[idx], b.upper[idx])
	}
	return mat.NewVecDense(n, x), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func entropySeed() (int64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read entropy for seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}
