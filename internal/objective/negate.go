package objective

// Negated flips the sign of a surface so that minimizing drivers ascend
// the wrapped surface.
type Negated struct {
	Surface
}

// Maximize returns the negated view of s. Negating an already negated
// surface returns the original.
func Maximize(s Surface) Surface {
	if n, ok := s.(Negated); ok {
		return n.Surface
	}
	return Negated{Surface: s}
}

func (n Negated) Value(x []float64) float64 {
	return -n.Surface.Value(x)
}

func (n Negated) Grad(x []float64) []float64 {
	return negate(n.Surface.Grad(x))
}

func (n Negated) Hess(x []float64) []float64 {
	return negate(n.Surface.Hess(x))
}

func negate(v []float64) []float64 {
	for i := range v {
		v[i] = -v[i]
	}
	return v
}
