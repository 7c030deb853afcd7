package objective

import (
	"errors"
	"fmt"
)

var (
	// ErrShape is returned when a flat derivative buffer cannot be reshaped
	// into the requested matrix. Use errors.Is(err, ErrShape).
	ErrShape = &ShapeError{}

	// ErrInvalidInput is returned when a parameter does not have the
	// dimensionality the objective expects, or a call argument is out of range.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig is returned by constructors when a construction-time
	// invariant is violated (bad shape parameters, inconsistent bounds).
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ShapeError reports a flat buffer whose length does not match Rows*Cols.
type ShapeError struct {
	Rows, Cols int
	Len        int
}

func (e *ShapeError) Error() string {
	if e.Rows == 0 && e.Cols == 0 {
		return "shape mismatch"
	}
	return fmt.Sprintf("shape mismatch: cannot reshape %d values into %dx%d", e.Len, e.Rows, e.Cols)
}

func (e *ShapeError) Is(target error) bool {
	_, ok := target.(*ShapeError)
	return ok
}

// DimensionError reports a parameter of the wrong length.
type DimensionError struct {
	Want, Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("invalid input: parameter has length %d, want %d", e.Got, e.Want)
}

func (e *DimensionError) Is(target error) bool {
	return target == ErrInvalidInput
}

func checkDim(s Surface, n int) error {
	if n != s.Dim() {
		return &DimensionError{Want: s.Dim(), Got: n}
	}
	return nil
}
