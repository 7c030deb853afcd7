package objective

import "fmt"

// Vec evaluates a surface on plain float64 slices.
type Vec struct {
	s Surface
}

var (
	_ CostFunction[[]float64]         = Vec{}
	_ Gradient[[]float64, []float64]  = Vec{}
	_ Hessian[[]float64, [][]float64] = Vec{}
)

// NewVec returns the slice representation of s.
func NewVec(s Surface) Vec {
	return Vec{s: s}
}

// Surface returns the underlying surface.
func (v Vec) Surface() Surface { return v.s }

func (v Vec) Cost(param []float64) (float64, error) {
	if err := checkDim(v.s, len(param)); err != nil {
		return 0, err
	}
	return v.s.Value(param), nil
}

func (v Vec) Gradient(param []float64) ([]float64, error) {
	if err := checkDim(v.s, len(param)); err != nil {
		return nil, err
	}
	return v.s.Grad(param), nil
}

func (v Vec) Hessian(param []float64) ([][]float64, error) {
	if err := checkDim(v.s, len(param)); err != nil {
		return nil, err
	}
	h, err := Rows(len(param), v.s.Hess(param))
	if err != nil {
		return nil, fmt.Errorf("failed to build hessian: %w", err)
	}
	return h, nil
}
