package objective

import "gonum.org/v1/gonum/mat"

// Rows reshapes a row-major flat buffer into an n x n slice of rows.
func Rows(n int, flat []float64) ([][]float64, error) {
	if err := checkSquare(n, flat); err != nil {
		return nil, err
	}
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = flat[i*n : (i+1)*n : (i+1)*n]
	}
	return rows, nil
}

// Square reshapes a row-major flat buffer into an n x n dense matrix.
// The matrix takes ownership of flat.
func Square(n int, flat []float64) (*mat.Dense, error) {
	if err := checkSquare(n, flat); err != nil {
		return nil, err
	}
	return mat.NewDense(n, n, flat), nil
}

func checkSquare(n int, flat []float64) error {
	if n <= 0 || len(flat) != n*n {
		return &ShapeError{Rows: n, Cols: n, Len: len(flat)}
	}
	return nil
}
