package objective

// Surface is the canonical form of an objective: every formula works on
// flat float64 buffers and the representation adapters (Vec, Dense,
// Bounded) convert at the boundary.
//
// Implementations must not retain or modify x and must be safe for
// concurrent use. Returned slices belong to the caller.
type Surface interface {
	// Dim is the parameter length the surface expects.
	Dim() int

	// Value returns the cost at x.
	Value(x []float64) float64

	// Grad returns the gradient at x, of length Dim().
	Grad(x []float64) []float64

	// Hess returns the second-derivative matrix at x as a row-major flat
	// buffer. Adapters reshape it to Dim() x Dim() and fail with ErrShape
	// when the length does not match.
	Hess(x []float64) []float64
}
