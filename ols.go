// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// OLSEstimator implements the OLS estimator for linear models.
type OLSEstimator struct{}

// LinearModel holds the results of fitting a linear model by OLS.
type LinearModel struct {
	Model ModelSpec

	// Coefficient labels, intercept first
	Names []string
	// Fitted coefficients, aligned with Names
	Beta []float64
	// Coefficient covariance s^2 (X'X)^-1
	Vcov *mat.SymDense

	// Rows used in the fit after dropping missing values
	NObs int
	// Numerical rank of the design matrix
	Rank int

	terms TermClassification
}

// Estimate computes the linear model parameters using OLS
// ds: Dataset containing the response and term columns
// spec: ModelSpec naming the response and the terms
// Returns: LinearModel containing the estimated coefficients and their covariance
func (e *OLSEstimator) Estimate(ds *Dataset, spec ModelSpec) (*LinearModel, error) {
	y, X, kinds, err := designMatrix(ds, spec)
	if err != nil {
		return nil, err
	}
	T, m := X.Dims()

	beta := mat.NewVecDense(m, nil)
	xtxInv := mat.NewDense(m, m, nil)
	rank := m

	// First try: normal equations B = (X'X)^(-1) X'y
	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	xtxError := xtxInv.Inverse(&xtx)

	if xtxError == nil {
		// X'X is invertible: standard OLS
		var xty mat.VecDense
		xty.MulVec(X.T(), y)
		beta.MulVec(xtxInv, &xty)
	} else {
		// Fallback: X'X is singular or badly conditioned.
		// Use SVD-based least squares: minimize ||y - X b|| with minimum-norm b.
		var svd mat.SVD
		ok := svd.Factorize(X, mat.SVDFullU|mat.SVDFullV)
		if !ok {
			return nil, fmt.Errorf("OLS failed: X'X singular and SVD factorization failed: %v", xtxError)
		}

		// Choose an effective numerical rank
		rank = svd.Rank(1e-12)

		// If rank == 0, X is (numerically) all-zero and b = 0 is the minimum-norm solution
		if rank > 0 {
			svd.SolveVecTo(beta, y, rank)
		}

		// (X'X)^+ = V S^-2 V' over the leading rank singular values
		var V mat.Dense
		svd.VTo(&V)
		vals := svd.Values(nil)
		xtxInv = mat.NewDense(m, m, nil)
		for k := 0; k < rank; k++ {
			s2 := vals[k] * vals[k]
			for i := 0; i < m; i++ {
				for j := 0; j < m; j++ {
					xtxInv.Set(i, j, xtxInv.At(i, j)+V.At(i, k)*V.At(j, k)/s2)
				}
			}
		}
	}

	// Residual variance
	var yhat, resid mat.VecDense
	yhat.MulVec(X, beta)
	resid.SubVec(y, &yhat)
	rss := mat.Dot(&resid, &resid)

	df := float64(T - rank)
	if df <= 0 {
		df = float64(T) // fallback
	}
	s2 := rss / df

	vcov := symmetrize(xtxInv)
	vcov.ScaleSym(s2, vcov)

	return &LinearModel{
		Model: spec,
		Names: coefficientNames(spec),
		Beta:  mat.Col(nil, 0, beta),
		Vcov:  vcov,
		NObs:  T,
		Rank:  rank,
		terms: kinds,
	}, nil
}

// Returns the named coefficient vector
func (lm *LinearModel) Coefficients() NamedVector {
	return NamedVector{Names: append([]string(nil), lm.Names...), Values: append([]float64(nil), lm.Beta...)}
}

// Returns the coefficient covariance
func (lm *LinearModel) Covariance() (*CovarianceMatrix, error) {
	if lm.Vcov == nil {
		return nil, fmt.Errorf("linear model has no coefficient covariance")
	}
	return &CovarianceMatrix{Names: append([]string(nil), lm.Names...), Matrix: cloneSym(lm.Vcov)}, nil
}

// Refit fits the same ModelSpec to data
func (lm *LinearModel) Refit(_ context.Context, data *Dataset) (Model, error) {
	refit, err := (&OLSEstimator{}).Estimate(data, lm.Model)
	if err != nil {
		return nil, err
	}
	return refit, nil
}

// WithCoefficients returns a copy of the model with coef substituted by name.
func (lm *LinearModel) WithCoefficients(coef NamedVector) (Model, error) {
	beta, err := substitute(lm.Names, lm.Beta, coef)
	if err != nil {
		return nil, err
	}
	out := *lm
	out.Beta = beta
	return &out, nil
}

// Predict returns X*beta for every row; both effect types are the same for OLS.
func (lm *LinearModel) Predict(data *Dataset, _ EffectType) ([]float64, error) {
	return linearPredictor(data, lm.Model, lm.Beta)
}

// TermKinds returns the regressor kinds seen at fit time
func (lm *LinearModel) TermKinds() TermClassification {
	return copyTerms(lm.terms)
}
