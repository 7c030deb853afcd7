package objective

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// countingSource counts how many values the generator consumed.
type countingSource struct {
	rand.Source
	calls int
}

func (c *countingSource) Int63() int64 {
	c.calls++
	return c.Source.Int63()
}

func newTestBounded(t *testing.T, opts ...BoundedOption) *Bounded {
	t.Helper()

	lower, upper := DefaultBounds()
	b, err := NewBounded(DefaultRosenbrock(), lower, upper, opts...)
	if err != nil {
		t.Fatalf("NewBounded failed: %v", err)
	}
	return b
}

func TestNewBoundedValidation(t *testing.T) {
	r := DefaultRosenbrock()

	tests := []struct {
		name         string
		lower, upper []float64
	}{
		{"short lower", []float64{-5}, []float64{5, 5}},
		{"long upper", []float64{-5, -5}, []float64{5, 5, 5}},
		{"inverted", []float64{-5, 6}, []float64{5, 5}},
		{"nan", []float64{math.NaN(), -5}, []float64{5, 5}},
		{"infinite", []float64{-5, -5}, []float64{5, math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBounded(r, tt.lower, tt.upper, WithSeed(1))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	// Degenerate box is allowed
	if _, err := NewBounded(r, []float64{1, 1}, []float64{1, 1}); err != nil {
		t.Errorf("Degenerate bounds rejected: %v", err)
	}
}

func TestBoundsReturnsCopies(t *testing.T) {
	b := newTestBounded(t, WithSeed(1))

	lower, upper := b.Bounds()
	lower[0] = 100
	upper[0] = -100

	lower2, upper2 := b.Bounds()
	if lower2[0] != -5 || upper2[0] != 5 {
		t.Errorf("Bounds were modified through returned slices: %v %v", lower2, upper2)
	}
}

func TestSteps(t *testing.T) {
	tests := []struct {
		temp float64
		want int
	}{
		{0, 1},
		{0.99, 1},
		{1, 2},
		{9.5, 10},
		{15, 16},
		{-3, 1},
		{math.NaN(), 1},
		{MaxTemperature, int(MaxTemperature) + 1},
		{1e19, int(MaxTemperature) + 1},
		{1e300, int(MaxTemperature) + 1},
		{math.Inf(1), int(MaxTemperature) + 1},
	}
	for _, tt := range tests {
		if got := Steps(tt.temp); got != tt.want {
			t.Errorf("Steps(%v) = %d, expected %d", tt.temp, got, tt.want)
		}
	}

	prev := Steps(0)
	for temp := 0.0; temp < 50; temp += 0.37 {
		s := Steps(temp)
		if s < prev {
			t.Fatalf("Steps decreased at temp %v: %d < %d", temp, s, prev)
		}
		prev = s
	}
	for _, temp := range []float64{MaxTemperature - 1, MaxTemperature, 9.3e18, 1e19, math.MaxFloat64} {
		s := Steps(temp)
		if s < prev {
			t.Fatalf("Steps decreased at temp %v: %d < %d", temp, s, prev)
		}
		prev = s
	}
}

func TestPerturbDrawsPerStep(t *testing.T) {
	// For a two dimensional parameter each step consumes exactly one value
	// for the index and one for the delta.
	tests := []struct {
		temp  float64
		draws int
	}{
		{0, 2},
		{9.5, 20},
		{3, 8},
	}

	for _, tt := range tests {
		src := &countingSource{Source: rand.NewSource(7)}
		b := newTestBounded(t, WithSource(src))

		if _, err := b.Perturb(mat.NewVecDense(2, []float64{0, 0}), tt.temp); err != nil {
			t.Fatalf("Perturb failed: %v", err)
		}
		if src.calls != tt.draws {
			t.Errorf("temp %v consumed %d values, expected %d", tt.temp, src.calls, tt.draws)
		}
	}
}

func TestPerturbStaysInBounds(t *testing.T) {
	lower := []float64{-1, 0.5}
	upper := []float64{-0.95, 0.55}

	for seed := int64(0); seed < 50; seed++ {
		b, err := NewBounded(DefaultRosenbrock(), lower, upper, WithSeed(seed))
		if err != nil {
			t.Fatalf("NewBounded failed: %v", err)
		}

		x := mat.NewVecDense(2, []float64{-0.96, 0.54})
		for _, temp := range []float64{0, 0.5, 1, 9.5, 40} {
			next, err := b.Perturb(x, temp)
			if err != nil {
				t.Fatalf("Perturb failed: %v", err)
			}
			if next.Len() != 2 {
				t.Fatalf("Perturb returned length %d, expected 2", next.Len())
			}
			if !b.Contains(mat.Col(nil, 0, next)) {
				t.Fatalf("seed %d temp %v: %v outside bounds", seed, temp, mat.Col(nil, 0, next))
			}
			x = next
		}
	}
}

func TestPerturbIsLocal(t *testing.T) {
	b := newTestBounded(t, WithSeed(3))
	x := mat.NewVecDense(2, []float64{0.5, -0.5})

	for _, temp := range []float64{0, 2, 9.5} {
		next, err := b.Perturb(x, temp)
		if err != nil {
			t.Fatalf("Perturb failed: %v", err)
		}
		limit := float64(Steps(temp)) * MaxStep
		for i := 0; i < 2; i++ {
			if d := math.Abs(next.AtVec(i) - x.AtVec(i)); d > limit+1e-12 {
				t.Errorf("temp %v moved component %d by %v, limit %v", temp, i, d, limit)
			}
		}
	}

	// The input is left untouched
	if x.AtVec(0) != 0.5 || x.AtVec(1) != -0.5 {
		t.Errorf("Perturb modified its input: %v", mat.Col(nil, 0, x))
	}
}

func TestPerturbDeterministicWithSeed(t *testing.T) {
	b1 := newTestBounded(t, WithSeed(99))
	b2 := newTestBounded(t, WithSeed(99))
	x := mat.NewVecDense(2, []float64{1, 1})

	for i := 0; i < 20; i++ {
		p1, err := b1.Perturb(x, float64(i))
		if err != nil {
			t.Fatalf("Perturb failed: %v", err)
		}
		p2, _ := b2.Perturb(x, float64(i))
		if !mat.Equal(p1, p2) {
			t.Fatalf("iteration %d: same seed produced %v and %v", i, mat.Col(nil, 0, p1), mat.Col(nil, 0, p2))
		}
	}
}

func TestPerturbInvalidInput(t *testing.T) {
	b := newTestBounded(t, WithSeed(1))

	temps := []float64{-0.1, math.NaN(), math.Inf(1), MaxTemperature + 1, 1e7, 1e19}
	for _, temp := range temps {
		if _, err := b.Perturb(mat.NewVecDense(2, nil), temp); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("temp %v: expected ErrInvalidInput, got %v", temp, err)
		}
	}

	if _, err := b.Perturb(mat.NewVecDense(3, nil), 1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("wrong length: expected ErrInvalidInput, got %v", err)
	}

	// Lock must have been released on the error paths
	if _, err := b.Perturb(mat.NewVecDense(2, nil), 1); err != nil {
		t.Errorf("Perturb after errors failed: %v", err)
	}
}

func TestPerturbConcurrentCallsAreAtomic(t *testing.T) {
	// Calls through one shared generator must consume the same stream as
	// the same calls made sequentially, only in some order. Every call
	// starts from the same point, so the multiset of outputs is fixed as
	// long as no call interleaves its draws with another.
	for _, temp := range []float64{0, 3} {
		t.Run(fmt.Sprintf("temp=%v", temp), func(t *testing.T) {
			checkConcurrentPerturb(t, temp)
		})
	}
}

func checkConcurrentPerturb(t *testing.T, temp float64) {
	t.Helper()
	const callers = 8
	const perCaller = 50

	shared := newTestBounded(t, WithSeed(11))
	x := mat.NewVecDense(2, []float64{0, 0})

	var mu sync.Mutex
	got := make(map[[2]float64]int)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCaller; j++ {
				p, err := shared.Perturb(x, temp)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				got[[2]float64{p.AtVec(0), p.AtVec(1)}]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sequential := newTestBounded(t, WithSeed(11))
	want := make(map[[2]float64]int)
	for i := 0; i < callers*perCaller; i++ {
		p, _ := sequential.Perturb(x, temp)
		want[[2]float64{p.AtVec(0), p.AtVec(1)}]++
	}

	if len(got) != len(want) {
		t.Fatalf("concurrent calls produced %d distinct candidates, sequential %d", len(got), len(want))
	}
	for k, n := range want {
		if got[k] != n {
			t.Errorf("candidate %v seen %d times, expected %d", k, got[k], n)
		}
	}
}

func TestBoundedSharesSurfaceMath(t *testing.T) {
	b := newTestBounded(t, WithSeed(1))
	cost, err := b.Cost(mat.NewVecDense(2, []float64{10, 5}))
	if err != nil {
		t.Fatalf("Cost failed: %v", err)
	}
	if cost != 902581 {
		t.Errorf("Cost([10 5]) = %v, expected 902581", cost)
	}

	clamped := b.Clamp([]float64{-7, 12})
	if clamped[0] != -5 || clamped[1] != 5 {
		t.Errorf("Clamp = %v, expected [-5 5]", clamped)
	}
}

func TestClampLengthMismatch(t *testing.T) {
	b := newTestBounded(t, WithSeed(1))

	long := b.Clamp([]float64{-7, 12, 42})
	if len(long) != 3 {
		t.Fatalf("Expected 3 components, got %d", len(long))
	}
	if long[0] != -5 || long[1] != 5 || long[2] != 42 {
		t.Errorf("Clamp = %v, expected [-5 5 42]", long)
	}

	short := b.Clamp([]float64{9})
	if len(short) != 1 || short[0] != 5 {
		t.Errorf("Clamp = %v, expected [5]", short)
	}
}
