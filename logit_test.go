// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logitData draws y ~ Bernoulli(logistic(b0 + b1*x + b2*d)) with x normal and
// d a 0/1 indicator
func logitData(t *testing.T, n int, b0, b1, b2 float64) *Dataset {
	t.Helper()
	rng := rand.New(rand.NewPCG(21, 22))
	data := make([]float64, 0, 3*n)
	for i := 0; i < n; i++ {
		x := rng.NormFloat64()
		d := float64(i % 2)
		y := 0.0
		if rng.Float64() < logistic(b0+b1*x+b2*d) {
			y = 1
		}
		data = append(data, y, x, d)
	}
	ds, err := NewDataset([]string{"y", "x", "d"}, n, data)
	require.NoError(t, err)
	return ds
}

func TestLogitEstimator_RecoversCoefficients(t *testing.T) {
	ds := logitData(t, 4000, -0.5, 1.2, 0.8)
	lm, err := LogitEstimator{}.Estimate(ds, ModelSpec{Response: "y", Terms: []string{"x", "d"}, Intercept: true})
	require.NoError(t, err)

	assert.Equal(t, []string{InterceptName, "x", "d"}, lm.Names)
	want := []float64{-0.5, 1.2, 0.8}
	for i := range want {
		// 5 standard errors
		se := math.Sqrt(lm.Vcov.At(i, i))
		assert.InDeltaf(t, want[i], lm.Beta[i], 5*se, "coefficient %s", lm.Names[i])
		assert.Greater(t, se, 0.0)
	}
	assert.Less(t, lm.Iterations, defaultLogitMaxIter)

	kinds := lm.TermKinds()
	assert.Equal(t, TermNumeric, kinds[0].Kind)
	assert.Equal(t, TermLogical, kinds[1].Kind)
}

func TestLogitEstimator_RejectsNonBinaryResponse(t *testing.T) {
	ds, err := NewDataset([]string{"y", "x"}, 3, []float64{0, 1, 2, 2, 1, 3})
	require.NoError(t, err)
	_, err = LogitEstimator{}.Estimate(ds, ModelSpec{Response: "y", Terms: []string{"x"}, Intercept: true})
	assert.Error(t, err)
}

func TestLogitEstimator_IterationLimit(t *testing.T) {
	ds := logitData(t, 500, 0.2, 1, -0.5)
	_, err := LogitEstimator{MaxIter: 1, Tol: 1e-14}.Estimate(ds, ModelSpec{Response: "y", Terms: []string{"x", "d"}, Intercept: true})
	assert.Error(t, err)
}

func TestLogitModel_Predict(t *testing.T) {
	ds := logitData(t, 500, 0.2, 1, -0.5)
	lm, err := LogitEstimator{}.Estimate(ds, ModelSpec{Response: "y", Terms: []string{"x", "d"}, Intercept: true})
	require.NoError(t, err)

	link, err := lm.Predict(ds, EffectLink)
	require.NoError(t, err)
	prob, err := lm.Predict(ds, EffectResponse)
	require.NoError(t, err)

	x, _ := ds.Column("x")
	d, _ := ds.Column("d")
	for i := range link {
		eta := lm.Beta[0] + lm.Beta[1]*x[i] + lm.Beta[2]*d[i]
		assert.InDelta(t, eta, link[i], 1e-12)
		assert.InDelta(t, 1/(1+math.Exp(-eta)), prob[i], 1e-12)
		assert.True(t, prob[i] > 0 && prob[i] < 1)
	}
}

func TestLogitModel_RefitKeepsSettings(t *testing.T) {
	ds := logitData(t, 500, 0.2, 1, -0.5)
	est := LogitEstimator{MaxIter: 40, Tol: 1e-10}
	lm, err := est.Estimate(ds, ModelSpec{Response: "y", Terms: []string{"x"}, Intercept: true})
	require.NoError(t, err)

	idx := make([]int, 300)
	for i := range idx {
		idx[i] = i
	}
	refit, err := lm.Refit(context.Background(), ds.Resample(idx))
	require.NoError(t, err)

	lr, ok := refit.(*LogitModel)
	require.True(t, ok)
	assert.Equal(t, 300, lr.NObs)
	assert.Equal(t, est, lr.estimator)
}

func TestLogistic(t *testing.T) {
	assert.Equal(t, 0.5, logistic(0))
	assert.InDelta(t, 1, logistic(800), 1e-15)
	assert.InDelta(t, 0, logistic(-800), 1e-15)
	assert.False(t, math.IsNaN(logistic(-800)))
}
