// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MeanEffects reduces per-row effects to one value per effect column.
// Missing (NaN) rows are left out of both the sum and the denominator.
// weights: optional per-row weights, nil for a plain mean
// Returns an effects vector, NaN for a column with no usable rows
func MeanEffects(tbl *EffectsTable, weights []float64) (NamedVector, error) {
	if tbl == nil || tbl.Values == nil {
		return NamedVector{}, fmt.Errorf("effects table is empty")
	}
	rows, cols := tbl.Values.Dims()
	if cols != len(tbl.Names) {
		return NamedVector{}, dimensionMismatch("effects table has %d columns but %d names", cols, len(tbl.Names))
	}
	if weights != nil && len(weights) != rows {
		return NamedVector{}, dimensionMismatch("got %d weights for %d effect rows", len(weights), rows)
	}

	out := NamedVector{
		Names:  append([]string(nil), tbl.Names...),
		Values: make([]float64, cols),
	}

	x := make([]float64, 0, rows)
	var w []float64
	if weights != nil {
		w = make([]float64, 0, rows)
	}
	for j := 0; j < cols; j++ {
		x = x[:0]
		if w != nil {
			w = w[:0]
		}
		for i := 0; i < rows; i++ {
			v := tbl.Values.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			x = append(x, v)
			if w != nil {
				w = append(w, weights[i])
			}
		}
		if len(x) == 0 {
			out.Values[j] = math.NaN()
			continue
		}
		out.Values[j] = stat.Mean(x, w)
	}
	return out, nil
}

// empiricalCovariance stacks the replicate effect vectors row-wise and returns
// their sample covariance (n-1 denominator).
func empiricalCovariance(names []string, draws [][]float64) (*CovarianceMatrix, error) {
	n := len(draws)
	if n < 2 {
		return nil, invalidConfig("need at least 2 replicates for a covariance, got %d", n)
	}
	k := len(names)
	stack := mat.NewDense(n, k, nil)
	for i, d := range draws {
		if len(d) != k {
			return nil, dimensionMismatch("replicate %d has %d effects, expected %d", i, len(d), k)
		}
		stack.SetRow(i, d)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, stack, nil)
	return &CovarianceMatrix{Names: append([]string(nil), names...), Matrix: &cov}, nil
}

// symmetrize returns (A + A^T) / 2 for a square matrix
func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

// cloneSym returns a copy of a symmetric matrix
func cloneSym(a *mat.SymDense) *mat.SymDense {
	out := mat.NewSymDense(a.SymmetricDim(), nil)
	out.CopySym(a)
	return out
}

// replicateVariances broadcasts each diagonal entry of cov to rows copies.
func replicateVariances(cov *CovarianceMatrix, rows int) map[string][]float64 {
	out := make(map[string][]float64, len(cov.Names))
	for i, name := range cov.Names {
		v := cov.Matrix.At(i, i)
		col := make([]float64, rows)
		for r := range col {
			col[r] = v
		}
		out[name] = col
	}
	return out
}

// Variances returns the diagonal of the covariance matrix as a named vector.
func (c *CovarianceMatrix) Variances() NamedVector {
	out := NamedVector{Names: append([]string(nil), c.Names...), Values: make([]float64, len(c.Names))}
	for i := range c.Names {
		out.Values[i] = c.Matrix.At(i, i)
	}
	return out
}
