// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// coefficientNames returns the coefficient labels for spec, intercept first
func coefficientNames(spec ModelSpec) []string {
	names := make([]string, 0, len(spec.Terms)+1)
	if spec.Intercept {
		names = append(names, InterceptName)
	}
	return append(names, spec.Terms...)
}

// checkSpec makes sure every column spec uses exists in ds
func checkSpec(ds *Dataset, spec ModelSpec) error {
	if ds == nil || ds.Data == nil {
		return fmt.Errorf("data not provided")
	}
	if len(spec.Terms) == 0 && !spec.Intercept {
		return fmt.Errorf("model has no terms and no intercept")
	}
	if _, ok := ds.Index(spec.Response); !ok {
		return fmt.Errorf("response column %q not found", spec.Response)
	}
	seen := make(map[string]bool, len(spec.Terms))
	for _, t := range spec.Terms {
		if _, ok := ds.Index(t); !ok {
			return fmt.Errorf("term column %q not found", t)
		}
		if seen[t] {
			return fmt.Errorf("term %q listed twice", t)
		}
		seen[t] = true
	}
	return nil
}

// regressors builds the full design matrix (rows x coefficients) for every row
// of ds. Missing values stay NaN so predictions for those rows are NaN.
func regressors(ds *Dataset, spec ModelSpec) (*mat.Dense, error) {
	T := ds.Rows()
	m := len(spec.Terms)
	if spec.Intercept {
		m++
	}

	idx := make([]int, len(spec.Terms))
	for k, t := range spec.Terms {
		j, ok := ds.Index(t)
		if !ok {
			return nil, fmt.Errorf("term column %q not found", t)
		}
		idx[k] = j
	}

	X := mat.NewDense(T, m, nil)
	for t := 0; t < T; t++ {
		col := 0
		if spec.Intercept {
			X.Set(t, col, 1.0)
			col++
		}
		for _, j := range idx {
			X.Set(t, col, ds.Data.At(t, j))
			col++
		}
	}
	return X, nil
}

// designMatrix builds the response and regressors used for fitting, dropping
// rows with a missing value in any column the model uses.
// Returns y (n), X (n x m) and the kind of every term
func designMatrix(ds *Dataset, spec ModelSpec) (*mat.VecDense, *mat.Dense, TermClassification, error) {
	if err := checkSpec(ds, spec); err != nil {
		return nil, nil, nil, err
	}
	full, err := regressors(ds, spec)
	if err != nil {
		return nil, nil, nil, err
	}
	yCol, _ := ds.Column(spec.Response)

	T, m := full.Dims()
	keep := make([]int, 0, T)
	for t := 0; t < T; t++ {
		if math.IsNaN(yCol[t]) {
			continue
		}
		complete := true
		for j := 0; j < m; j++ {
			if math.IsNaN(full.At(t, j)) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, t)
		}
	}
	if len(keep) == 0 {
		return nil, nil, nil, fmt.Errorf("no complete rows for %q", spec.Response)
	}

	y := mat.NewVecDense(len(keep), nil)
	X := mat.NewDense(len(keep), m, nil)
	for i, t := range keep {
		y.SetVec(i, yCol[t])
		X.SetRow(i, full.RawRowView(t))
	}

	// A term is logical when every fitted value is 0 or 1
	offset := 0
	if spec.Intercept {
		offset = 1
	}
	kinds := make(TermClassification, len(spec.Terms))
	for k, name := range spec.Terms {
		kind := TermLogical
		for i := range keep {
			v := X.At(i, k+offset)
			if v != 0 && v != 1 {
				kind = TermNumeric
				break
			}
		}
		kinds[k] = Term{Name: name, Kind: kind}
	}

	return y, X, kinds, nil
}

// linearPredictor returns X * beta for every row of ds
func linearPredictor(ds *Dataset, spec ModelSpec, beta []float64) ([]float64, error) {
	X, err := regressors(ds, spec)
	if err != nil {
		return nil, err
	}
	_, m := X.Dims()
	if m != len(beta) {
		return nil, dimensionMismatch("design has %d columns, model has %d coefficients", m, len(beta))
	}
	var eta mat.VecDense
	eta.MulVec(X, mat.NewVecDense(m, beta))
	return mat.Col(nil, 0, &eta), nil
}

// substitute returns a copy of beta with the named entries of coef replaced.
// Names unknown to the model are an error.
func substitute(names []string, beta []float64, coef NamedVector) ([]float64, error) {
	if len(coef.Names) != len(coef.Values) {
		return nil, dimensionMismatch("coefficient vector has %d values but %d names", len(coef.Values), len(coef.Names))
	}
	out := append([]float64(nil), beta...)
	for i, name := range coef.Names {
		pos := -1
		for j, n := range names {
			if n == name {
				pos = j
				break
			}
		}
		if pos < 0 {
			return nil, dimensionMismatch("model has no coefficient %q", name)
		}
		out[pos] = coef.Values[i]
	}
	return out, nil
}

// copyTerms returns a copy of the fitted term kinds
func copyTerms(tc TermClassification) TermClassification {
	return append(TermClassification(nil), tc...)
}
