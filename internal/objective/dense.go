package objective

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Dense evaluates a surface on gonum vectors and returns gonum matrices.
type Dense struct {
	s Surface
}

var (
	_ CostFunction[*mat.VecDense]            = Dense{}
	_ Gradient[*mat.VecDense, *mat.VecDense] = Dense{}
	_ Hessian[*mat.VecDense, *mat.Dense]     = Dense{}
)

// NewDense returns the gonum representation of s.
func NewDense(s Surface) Dense {
	return Dense{s: s}
}

// Surface returns the underlying surface.
func (d Dense) Surface() Surface { return d.s }

func (d Dense) Cost(param *mat.VecDense) (float64, error) {
	x, err := d.flatten(param)
	if err != nil {
		return 0, err
	}
	return d.s.Value(x), nil
}

func (d Dense) Gradient(param *mat.VecDense) (*mat.VecDense, error) {
	x, err := d.flatten(param)
	if err != nil {
		return nil, err
	}
	g := d.s.Grad(x)
	if len(g) != len(x) {
		return nil, &ShapeError{Rows: len(x), Cols: 1, Len: len(g)}
	}
	return mat.NewVecDense(len(g), g), nil
}

func (d Dense) Hessian(param *mat.VecDense) (*mat.Dense, error) {
	x, err := d.flatten(param)
	if err != nil {
		return nil, err
	}
	h, err := Square(len(x), d.s.Hess(x))
	if err != nil {
		return nil, fmt.Errorf("failed to build hessian: %w", err)
	}
	return h, nil
}

// flatten copies param into a fresh slice after checking its length.
func (d Dense) flatten(param *mat.VecDense) ([]float64, error) {
	if param == nil {
		return nil, &DimensionError{Want: d.s.Dim(), Got: 0}
	}
	if err := checkDim(d.s, param.Len()); err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, param), nil
}
