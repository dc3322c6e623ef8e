// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// IRLS defaults
const (
	defaultLogitMaxIter = 25
	defaultLogitTol     = 1e-8
)

// LogitEstimator fits logistic regressions by iteratively reweighted least squares.
type LogitEstimator struct {
	// Maximum IRLS iterations (0 = 25)
	MaxIter int
	// Relative deviance change that counts as converged (0 = 1e-8)
	Tol float64
}

// LogitModel holds a fitted logistic regression.
type LogitModel struct {
	Model ModelSpec

	Names []string
	Beta  []float64
	// Coefficient covariance (X'WX)^-1
	Vcov *mat.SymDense

	NObs       int
	Iterations int
	Deviance   float64

	terms     TermClassification
	estimator LogitEstimator
}

func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// binomialDeviance returns -2 * log likelihood for 0/1 outcomes
func binomialDeviance(y, mu []float64) float64 {
	dev := 0.0
	for i := range y {
		p := mu[i]
		if y[i] == 1 {
			dev -= 2 * math.Log(math.Max(p, 1e-300))
		} else {
			dev -= 2 * math.Log(math.Max(1-p, 1e-300))
		}
	}
	return dev
}

// Estimate fits the logistic regression of spec.Response on spec.Terms.
// The response must be coded 0/1. Fails when IRLS does not converge or the
// weighted design becomes singular.
func (e LogitEstimator) Estimate(ds *Dataset, spec ModelSpec) (*LogitModel, error) {
	maxIter := e.MaxIter
	if maxIter <= 0 {
		maxIter = defaultLogitMaxIter
	}
	tol := e.Tol
	if tol <= 0 {
		tol = defaultLogitTol
	}

	yv, X, kinds, err := designMatrix(ds, spec)
	if err != nil {
		return nil, err
	}
	T, m := X.Dims()
	y := mat.Col(nil, 0, yv)
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("logit response must be 0 or 1, row %d is %v", i, v)
		}
	}

	beta := mat.NewVecDense(m, nil)
	eta := make([]float64, T)
	mu := make([]float64, T)
	w := make([]float64, T)
	z := mat.NewVecDense(T, nil)

	for i := range mu {
		mu[i] = 0.5
	}
	devOld := binomialDeviance(y, mu)

	var chol mat.Cholesky
	converged := false
	iter := 0
	dev := devOld

	for iter = 1; iter <= maxIter; iter++ {
		// working weights and response
		for i := 0; i < T; i++ {
			wi := mu[i] * (1 - mu[i])
			if wi < 1e-10 {
				wi = 1e-10
			}
			w[i] = wi
			z.SetVec(i, eta[i]+(y[i]-mu[i])/wi)
		}

		// X'WX and X'Wz
		xtwx := mat.NewSymDense(m, nil)
		xtwz := mat.NewVecDense(m, nil)
		for i := 0; i < T; i++ {
			row := X.RawRowView(i)
			for a := 0; a < m; a++ {
				xtwz.SetVec(a, xtwz.AtVec(a)+w[i]*row[a]*z.AtVec(i))
				for b := a; b < m; b++ {
					xtwx.SetSym(a, b, xtwx.At(a, b)+w[i]*row[a]*row[b])
				}
			}
		}

		if !chol.Factorize(xtwx) {
			return nil, fmt.Errorf("logit: weighted design is singular at iteration %d", iter)
		}
		if err := chol.SolveVecTo(beta, xtwz); err != nil {
			return nil, fmt.Errorf("logit: solve at iteration %d: %w", iter, err)
		}

		var etaVec mat.VecDense
		etaVec.MulVec(X, beta)
		for i := 0; i < T; i++ {
			eta[i] = etaVec.AtVec(i)
			mu[i] = logistic(eta[i])
		}

		dev = binomialDeviance(y, mu)
		if math.Abs(dev-devOld)/(math.Abs(dev)+0.1) < tol {
			converged = true
			break
		}
		devOld = dev
	}
	if !converged {
		return nil, fmt.Errorf("logit: IRLS did not converge in %d iterations", maxIter)
	}

	// Covariance at the final estimate
	xtwx := mat.NewSymDense(m, nil)
	for i := 0; i < T; i++ {
		row := X.RawRowView(i)
		wi := mu[i] * (1 - mu[i])
		for a := 0; a < m; a++ {
			for b := a; b < m; b++ {
				xtwx.SetSym(a, b, xtwx.At(a, b)+wi*row[a]*row[b])
			}
		}
	}
	var info mat.Cholesky
	if !info.Factorize(xtwx) {
		return nil, fmt.Errorf("logit: information matrix is singular")
	}
	vcov := mat.NewSymDense(m, nil)
	if err := info.InverseTo(vcov); err != nil {
		return nil, fmt.Errorf("logit: invert information matrix: %w", err)
	}

	return &LogitModel{
		Model:      spec,
		Names:      coefficientNames(spec),
		Beta:       mat.Col(nil, 0, beta),
		Vcov:       vcov,
		NObs:       T,
		Iterations: iter,
		Deviance:   dev,
		terms:      kinds,
		estimator:  e,
	}, nil
}

// Returns the named coefficient vector
func (lm *LogitModel) Coefficients() NamedVector {
	return NamedVector{Names: append([]string(nil), lm.Names...), Values: append([]float64(nil), lm.Beta...)}
}

// Returns the coefficient covariance
func (lm *LogitModel) Covariance() (*CovarianceMatrix, error) {
	if lm.Vcov == nil {
		return nil, fmt.Errorf("logit model has no coefficient covariance")
	}
	return &CovarianceMatrix{Names: append([]string(nil), lm.Names...), Matrix: cloneSym(lm.Vcov)}, nil
}

// Refit fits the same ModelSpec to data with the same IRLS settings
func (lm *LogitModel) Refit(_ context.Context, data *Dataset) (Model, error) {
	refit, err := lm.estimator.Estimate(data, lm.Model)
	if err != nil {
		return nil, err
	}
	return refit, nil
}

// WithCoefficients returns a copy of the model with coef substituted by name.
func (lm *LogitModel) WithCoefficients(coef NamedVector) (Model, error) {
	beta, err := substitute(lm.Names, lm.Beta, coef)
	if err != nil {
		return nil, err
	}
	out := *lm
	out.Beta = beta
	return &out, nil
}

// Predict returns probabilities (response) or log-odds (link) for every row
func (lm *LogitModel) Predict(data *Dataset, t EffectType) ([]float64, error) {
	eta, err := linearPredictor(data, lm.Model, lm.Beta)
	if err != nil {
		return nil, err
	}
	if t == EffectLink {
		return eta, nil
	}
	for i, v := range eta {
		eta[i] = logistic(v)
	}
	return eta, nil
}

// TermKinds returns the regressor kinds seen at fit time
func (lm *LogitModel) TermKinds() TermClassification {
	return copyTerms(lm.terms)
}
