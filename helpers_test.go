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

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// almostEqual compares floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// blackBoxModel only exposes coefficients, so the estimators cannot rely on
// anything but the Model interface.
type blackBoxModel struct {
	names []string
	beta  []float64
	cov   *CovarianceMatrix

	// optional refit hook, nil means refit returns the same coefficients
	refit func(data *Dataset) error
}

func (m *blackBoxModel) Coefficients() NamedVector {
	return NamedVector{Names: append([]string(nil), m.names...), Values: append([]float64(nil), m.beta...)}
}

func (m *blackBoxModel) Covariance() (*CovarianceMatrix, error) {
	if m.cov == nil {
		return nil, fmt.Errorf("no covariance")
	}
	return m.cov, nil
}

func (m *blackBoxModel) Refit(_ context.Context, data *Dataset) (Model, error) {
	if m.refit != nil {
		if err := m.refit(data); err != nil {
			return nil, err
		}
	}
	out := *m
	return &out, nil
}

func (m *blackBoxModel) WithCoefficients(coef NamedVector) (Model, error) {
	beta, err := substitute(m.names, m.beta, coef)
	if err != nil {
		return nil, err
	}
	out := *m
	out.beta = beta
	return &out, nil
}

func (m *blackBoxModel) TermKinds() TermClassification {
	return TermClassification{{Name: "x", Kind: TermNumeric}}
}

// linearEffects gives row r the effects x_r * (A * beta), where beta is read
// from the model by the names in coefNames. With x = 1 on every row the
// average effect is exactly A * beta.
type linearEffects struct {
	A         *mat.Dense
	coefNames []string
	names     []string
}

func (le linearEffects) ComputeEffects(ctx context.Context, m Model, data *Dataset, _ EffectsRequest) (*EffectsTable, error) {
	coef := m.Coefficients()
	beta := make([]float64, len(le.coefNames))
	for j, name := range le.coefNames {
		v, ok := coef.Get(name)
		if !ok {
			return nil, fmt.Errorf("missing coefficient %q", name)
		}
		beta[j] = v
	}
	var ab mat.VecDense
	ab.MulVec(le.A, mat.NewVecDense(len(beta), beta))

	x, err := data.Column("x")
	if err != nil {
		return nil, err
	}
	k := len(le.names)
	out := mat.NewDense(len(x), k, nil)
	for r, xr := range x {
		for i := 0; i < k; i++ {
			out.Set(r, i, xr*ab.AtVec(i))
		}
	}
	return &EffectsTable{Names: le.names, Values: out}, nil
}

// newTestSym builds a SymDense from a full row-major slice
func newTestSym(n int, data []float64) *mat.SymDense {
	return mat.NewSymDense(n, data)
}

// linearFixture returns a 3 coefficient model with effects A*beta on a dataset
// of n rows where x = 1 and id = 0..n-1.
func linearFixture(n int) (*blackBoxModel, linearEffects, *Dataset) {
	names := []string{InterceptName, "b1", "b2"}
	model := &blackBoxModel{
		names: names,
		beta:  []float64{0.5, -1.2, 2.0},
		cov: &CovarianceMatrix{
			Names: names,
			Matrix: newTestSym(3, []float64{
				0.40, 0.10, -0.05,
				0.10, 0.30, 0.02,
				-0.05, 0.02, 0.20,
			}),
		},
	}
	effects := linearEffects{
		A: mat.NewDense(2, 3, []float64{
			1, 2, 0,
			0, -1, 3,
		}),
		coefNames: names,
		names:     []string{"dydx_a", "dydx_b"},
	}

	data := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		data = append(data, 1, float64(i))
	}
	ds, err := NewDataset([]string{"x", "id"}, n, data)
	if err != nil {
		panic(err)
	}
	return model, effects, ds
}

// sandwich returns A * S * A^T
func sandwich(A *mat.Dense, S mat.Symmetric) *mat.Dense {
	var tmp, out mat.Dense
	tmp.Mul(A, S)
	out.Mul(&tmp, A.T())
	return &out
}

// datasetWithX builds an x/id dataset from the given x values
func datasetWithX(xs []float64) *Dataset {
	data := make([]float64, 0, 2*len(xs))
	for i, x := range xs {
		data = append(data, x, float64(i))
	}
	ds, err := NewDataset([]string{"x", "id"}, len(xs), data)
	if err != nil {
		panic(err)
	}
	return ds
}
