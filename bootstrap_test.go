// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
)

var errOddResample = errors.New("odd resample")

// failOnOddIDs rejects resamples whose id column sums to an odd number
func failOnOddIDs(data *Dataset) error {
	ids, err := data.Column("id")
	if err != nil {
		return err
	}
	sum := 0
	for _, v := range ids {
		sum += int(v)
	}
	if sum%2 == 1 {
		return errOddResample
	}
	return nil
}

func TestBootstrap_IdenticalRowsHaveZeroVariance(t *testing.T) {
	rows := 20
	data := make([]float64, 0, 2*rows)
	for i := 0; i < rows; i++ {
		data = append(data, 3, 2) // y = 3, x = 2
	}
	ds, err := NewDataset([]string{"y", "x"}, rows, data)
	require.NoError(t, err)

	// intercept and x are collinear, OLS falls back to the minimum-norm solution
	lm, err := (&OLSEstimator{}).Estimate(ds, ModelSpec{Response: "y", Terms: []string{"x"}, Intercept: true})
	require.NoError(t, err)

	res, err := Bootstrap(context.Background(), ds, lm, DydxEffects{}, EffectsRequest{Terms: lm.TermKinds()}, nil, SamplingOptions{
		Iterations: 30,
		Seed:       5,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Replicates)
	assert.InDelta(t, 0, res.Variances.Values[0], 1e-12)
}

func TestBootstrap_VarianceOfMean(t *testing.T) {
	// effect per row is x * (A beta), so the bootstrap variance of the average
	// effect is (A beta)^2 times the bootstrap variance of the sample mean of x
	src := rand.New(rand.NewPCG(1, 2))
	xs := make([]float64, 100)
	for i := range xs {
		xs[i] = 1 + src.NormFloat64()
	}
	ds := datasetWithX(xs)
	model, effects, _ := linearFixture(1)

	res, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, nil, SamplingOptions{
		Iterations: 2000,
		Seed:       9,
		Workers:    4,
	})
	require.NoError(t, err)

	var ab mat.VecDense
	ab.MulVec(effects.A, mat.NewVecDense(3, model.beta))

	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	varMean := ss / float64(len(xs)) / float64(len(xs))

	for i := 0; i < 2; i++ {
		want := ab.AtVec(i) * ab.AtVec(i) * varMean
		got := res.Variances.Values[i]
		assert.Lessf(t, math.Abs(got-want)/want, 0.15, "effect %d: bootstrap %v, analytic %v", i, got, want)
	}
}

func TestBootstrap_SeedReproducibleAcrossWorkers(t *testing.T) {
	xs := []float64{0.5, 1.5, 2.0, 3.5, 0.1, 2.2, 1.1, 0.9}
	ds := datasetWithX(xs)
	model, effects, _ := linearFixture(1)

	run := func(workers int) *SampleResult {
		res, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, nil, SamplingOptions{
			Iterations: 64,
			Seed:       2024,
			Workers:    workers,
		})
		require.NoError(t, err)
		return res
	}
	a := run(1)
	b := run(1)
	c := run(6)
	assert.Equal(t, a.Variances.Values, b.Variances.Values)
	assert.Equal(t, a.Variances.Values, c.Variances.Values)
}

func TestBootstrap_ConstantWeightsMatchUnweighted(t *testing.T) {
	// constant weights resampled with the rows change nothing
	xs := []float64{5, 1, 2, 3}
	ds := datasetWithX(xs)
	model, effects, _ := linearFixture(1)

	weights := []float64{1, 1, 1, 1}
	res, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, weights, SamplingOptions{Iterations: 20, Seed: 3})
	require.NoError(t, err)

	unweighted, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, nil, SamplingOptions{Iterations: 20, Seed: 3})
	require.NoError(t, err)

	for i := range res.Variances.Values {
		assert.InDelta(t, unweighted.Variances.Values[i], res.Variances.Values[i], 1e-12)
	}
}

func TestBootstrap_ZeroWeightResamplesAreSkipped(t *testing.T) {
	// only row 0 carries weight, resamples without it have nothing to average
	ds := datasetWithX([]float64{1, 2, 3})
	model, effects, _ := linearFixture(1)
	weights := []float64{1, 0, 0}

	res, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, weights, SamplingOptions{
		Iterations: 50,
		Seed:       1,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Less(t, res.Replicates, 50)
	assert.GreaterOrEqual(t, res.Replicates, 2)
	for i, v := range res.Variances.Values {
		assert.Falsef(t, math.IsNaN(v), "effect %d variance is NaN", i)
		// every usable resample averages row 0 alone
		assert.InDelta(t, 0, v, 1e-12)
	}

	_, err = Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, weights, SamplingOptions{
		Iterations:  50,
		Seed:        1,
		RefitPolicy: RefitAbort,
	})
	assert.ErrorIs(t, err, ErrRefitFailure)
	assert.ErrorIs(t, err, errNoWeight)
}

func TestBootstrap_SkipPolicyDropsFailedRefits(t *testing.T) {
	ds := datasetWithX([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	model, effects, _ := linearFixture(1)
	model.refit = failOnOddIDs

	res, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, nil, SamplingOptions{
		Iterations:  40,
		Seed:        17,
		RefitPolicy: RefitSkip,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Less(t, res.Replicates, 40)
	assert.GreaterOrEqual(t, res.Replicates, 2)
}

func TestBootstrap_AbortPolicyFailsOnFirstRefitError(t *testing.T) {
	ds := datasetWithX([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	model, effects, _ := linearFixture(1)
	model.refit = failOnOddIDs

	_, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, nil, SamplingOptions{
		Iterations:  40,
		Seed:        17,
		RefitPolicy: RefitAbort,
	})
	assert.ErrorIs(t, err, ErrRefitFailure)
	assert.ErrorIs(t, err, errOddResample)
}

func TestBootstrap_TooFewSuccessfulRefits(t *testing.T) {
	ds := datasetWithX([]float64{1, 2, 3})
	model, effects, _ := linearFixture(1)
	model.refit = func(*Dataset) error { return errOddResample }

	_, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, nil, SamplingOptions{
		Iterations: 5,
		Seed:       1,
	})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRefitFailure))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Len(t, multierr.Errors(e.Err), 5)
}

func TestBootstrap_EffectErrorsAreFatal(t *testing.T) {
	ds := datasetWithX([]float64{1, 2, 3})
	// the point estimate succeeds, every replicate fails
	model, _, _ := linearFixture(1)
	model.refit = func(*Dataset) error { return nil }

	calls := 0
	effects := effectsFunc(func(ctx context.Context, m Model, data *Dataset, req EffectsRequest) (*EffectsTable, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("effects unavailable")
		}
		return &EffectsTable{Names: []string{"e"}, Values: mat.NewDense(data.Rows(), 1, nil)}, nil
	})

	_, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, nil, SamplingOptions{Iterations: 4, Seed: 1})
	require.Error(t, err)
	assert.False(t, IsKind(err, KindRefitFailure))
}

func TestBootstrap_Cancelled(t *testing.T) {
	ds := datasetWithX([]float64{1, 2, 3})
	model, effects, _ := linearFixture(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Bootstrap(ctx, ds, model, effects, EffectsRequest{}, nil, SamplingOptions{Iterations: 10, Seed: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBootstrap_InvalidInput(t *testing.T) {
	ds := datasetWithX([]float64{1, 2, 3})
	model, effects, _ := linearFixture(1)

	_, err := Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, nil, SamplingOptions{Iterations: 1})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = Bootstrap(context.Background(), ds, model, effects, EffectsRequest{}, []float64{1}, SamplingOptions{Iterations: 5})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

// effectsFunc adapts a function to EffectsComputer
type effectsFunc func(ctx context.Context, m Model, data *Dataset, req EffectsRequest) (*EffectsTable, error)

func (f effectsFunc) ComputeEffects(ctx context.Context, m Model, data *Dataset, req EffectsRequest) (*EffectsTable, error) {
	return f(ctx, m, data, req)
}
