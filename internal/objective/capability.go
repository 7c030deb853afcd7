package objective

// CostFunction evaluates the scalar objective at a parameter.
type CostFunction[P any] interface {
	Cost(param P) (float64, error)
}

// Gradient evaluates the first derivative at a parameter.
type Gradient[P, G any] interface {
	Gradient(param P) (G, error)
}

// Hessian evaluates the second derivative at a parameter.
type Hessian[P, H any] interface {
	Hessian(param P) (H, error)
}

// Perturber produces a random feasible neighbor of param. Larger temp
// values give more aggressive moves.
type Perturber[P any] interface {
	Perturb(param P, temp float64) (P, error)
}

// Bounder exposes the box constraints of an objective.
type Bounder interface {
	Bounds() (lower, upper []float64)
}
