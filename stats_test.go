// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMeanEffects_SkipsMissingRows(t *testing.T) {
	nan := math.NaN()
	tbl := &EffectsTable{
		Names: []string{"a", "b", "c"},
		Values: mat.NewDense(4, 3, []float64{
			1, nan, nan,
			2, 4, nan,
			nan, 6, nan,
			3, 8, nan,
		}),
	}

	got, err := MeanEffects(tbl, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got.Names)
	assert.InDelta(t, 2, got.Values[0], 1e-12)
	assert.InDelta(t, 6, got.Values[1], 1e-12)
	assert.True(t, math.IsNaN(got.Values[2]))
}

func TestMeanEffects_Weighted(t *testing.T) {
	tbl := &EffectsTable{
		Names:  []string{"a"},
		Values: mat.NewDense(3, 1, []float64{1, math.NaN(), 4}),
	}

	// the weight on the missing row drops out with it
	got, err := MeanEffects(tbl, []float64{2, 100, 1})
	require.NoError(t, err)
	assert.InDelta(t, (2*1+1*4)/3.0, got.Values[0], 1e-12)
}

func TestMeanEffects_DimensionErrors(t *testing.T) {
	tbl := &EffectsTable{Names: []string{"a", "b"}, Values: mat.NewDense(2, 1, []float64{1, 2})}
	_, err := MeanEffects(tbl, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	tbl = &EffectsTable{Names: []string{"a"}, Values: mat.NewDense(2, 1, []float64{1, 2})}
	_, err = MeanEffects(tbl, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = MeanEffects(nil, nil)
	assert.Error(t, err)
}

func TestEmpiricalCovariance(t *testing.T) {
	draws := [][]float64{
		{1, 2},
		{3, 2},
		{5, 8},
	}
	cov, err := empiricalCovariance([]string{"a", "b"}, draws)
	require.NoError(t, err)

	// n-1 denominator
	assert.InDelta(t, 4, cov.Matrix.At(0, 0), 1e-12)
	assert.InDelta(t, 12, cov.Matrix.At(1, 1), 1e-12)
	assert.InDelta(t, 6, cov.Matrix.At(0, 1), 1e-12)

	_, err = empiricalCovariance([]string{"a"}, [][]float64{{1}})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = empiricalCovariance([]string{"a"}, [][]float64{{1}, {1, 2}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSymmetrize(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 4, 3})
	s := symmetrize(a)
	assert.Equal(t, 3.0, s.At(0, 1))
	assert.Equal(t, 3.0, s.At(1, 0))
	assert.Equal(t, 1.0, s.At(0, 0))
}

func TestReplicateVariances(t *testing.T) {
	cov := &CovarianceMatrix{Names: []string{"a", "b"}, Matrix: mat.NewSymDense(2, []float64{2, 1, 1, 5})}
	out := replicateVariances(cov, 3)
	assert.Equal(t, []float64{2, 2, 2}, out["a"])
	assert.Equal(t, []float64{5, 5, 5}, out["b"])
}
