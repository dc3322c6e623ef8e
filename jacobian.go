// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// DefaultStepSize is the central difference step used when none is given.
const DefaultStepSize = 1e-7

// Jacobian computes the effects x coefficients Jacobian of g at x0 by central
// differences: column j is (g(x0 + h e_j) - g(x0 - h e_j)) / 2h.
// The same step h is used for every coordinate.
// g is also evaluated once at x0 to fix the number and names of the effects.
// Rows are effects and columns are coefficients, so a scalar g gives a 1 x k
// matrix, not k x 1.
// concurrent: evaluate the 2*dim(x0) points in parallel, g must be safe for it
func Jacobian(g GradientFunc, x0 NamedVector, stepSize float64, concurrent bool) (*JacobianMatrix, error) {
	n := x0.Len()
	if n == 0 {
		return nil, dimensionMismatch("no coefficients to differentiate")
	}
	if len(x0.Names) != n {
		return nil, dimensionMismatch("coefficient vector has %d values but %d names", n, len(x0.Names))
	}
	if stepSize <= 0 {
		stepSize = DefaultStepSize
	}

	base, err := g(x0)
	if err != nil {
		return nil, err
	}
	m := base.Len()
	if m == 0 {
		return nil, dimensionMismatch("gradient function returned no effects")
	}

	// fd has no error channel, so keep the first failure and poison the output
	var (
		mu       sync.Mutex
		firstErr error
	)
	f := func(y, x []float64) {
		v, err := g(NamedVector{Names: x0.Names, Values: append([]float64(nil), x...)})
		if err == nil && v.Len() != len(y) {
			err = dimensionMismatch("gradient function returned %d effects, expected %d", v.Len(), len(y))
		}
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			for i := range y {
				y[i] = math.NaN()
			}
			return
		}
		copy(y, v.Values)
	}

	J := mat.NewDense(m, n, nil)
	fd.Jacobian(J, f, x0.Values, &fd.JacobianSettings{
		Formula:    fd.Central,
		Step:       stepSize,
		Concurrent: concurrent,
	})
	if firstErr != nil {
		return nil, firstErr
	}

	return &JacobianMatrix{
		Effects:      append([]string(nil), base.Names...),
		Coefficients: append([]string(nil), x0.Names...),
		Matrix:       J,
	}, nil
}
