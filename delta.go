// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"gonum.org/v1/gonum/mat"
)

// DeltaResult holds the output of the delta method.
type DeltaResult struct {
	Variances  NamedVector
	Covariance *CovarianceMatrix
	Jacobian   *JacobianMatrix
}

// FilterCoefficients restricts coef to the names labelling cov, in cov's column
// order. Coefficients the covariance does not cover (nuisance or random-effect
// parameters) are dropped. An intercept in coef is always kept; if cov does not
// label it, it is placed first and the caller's dimension check reports it.
// Returns DimensionMismatch when nothing overlaps.
func FilterCoefficients(coef NamedVector, cov *CovarianceMatrix, keepIntercept bool) (NamedVector, error) {
	if cov == nil || cov.Dim() == 0 {
		return NamedVector{}, dimensionMismatch("covariance matrix is empty")
	}
	if len(cov.Names) != cov.Dim() {
		return NamedVector{}, dimensionMismatch("covariance has dimension %d but %d labels", cov.Dim(), len(cov.Names))
	}

	out := NamedVector{}
	covered := make(map[string]bool, len(cov.Names))
	for _, name := range cov.Names {
		covered[name] = true
	}
	if keepIntercept && !covered[InterceptName] {
		if v, ok := coef.Get(InterceptName); ok {
			out.Names = append(out.Names, InterceptName)
			out.Values = append(out.Values, v)
		}
	}

	matched := 0
	for _, name := range cov.Names {
		if v, ok := coef.Get(name); ok {
			out.Names = append(out.Names, name)
			out.Values = append(out.Values, v)
			matched++
		}
	}
	if matched == 0 {
		return NamedVector{}, dimensionMismatch("none of the %d coefficients are labelled in the covariance matrix", coef.Len())
	}
	return out, nil
}

// Delta propagates the coefficient covariance through the Jacobian of g:
// V = J * Sigma * J^T.
// coef: coefficient point, filtered against cov before differentiation
// stepSize: central difference step, <= 0 means DefaultStepSize
func Delta(g GradientFunc, coef NamedVector, cov *CovarianceMatrix, stepSize float64, concurrent bool) (*DeltaResult, error) {
	x0, err := FilterCoefficients(coef, cov, true)
	if err != nil {
		return nil, err
	}

	jac, err := Jacobian(g, x0, stepSize, concurrent)
	if err != nil {
		return nil, err
	}

	_, nCoef := jac.Matrix.Dims()
	if nCoef != cov.Dim() {
		return nil, dimensionMismatch("jacobian has %d columns, covariance has dimension %d", nCoef, cov.Dim())
	}
	// columns line up with the covariance labels by construction of x0, except
	// when cov labels a coefficient the model does not have
	for j, name := range jac.Coefficients {
		if cov.Names[j] != name {
			return nil, dimensionMismatch("jacobian column %d is %q, covariance column is %q", j, name, cov.Names[j])
		}
	}

	// sandwich: J * Sigma * J^T
	var tmp, V mat.Dense
	tmp.Mul(jac.Matrix, cov.Matrix)
	V.Mul(&tmp, jac.Matrix.T())

	effCov := &CovarianceMatrix{
		Names:  append([]string(nil), jac.Effects...),
		Matrix: symmetrize(&V),
	}

	return &DeltaResult{
		Variances:  effCov.Variances(),
		Covariance: effCov,
		Jacobian:   jac,
	}, nil
}
