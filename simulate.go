// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"marginvar/internal/metrics"
)

// Options for simulation and bootstrap runs
type SamplingOptions struct {
	// Number of draws or resamples (at least 2)
	Iterations int

	// RNG seed (if 0, time-based seed is used)
	Seed uint64

	// Goroutines used for the per-iteration loop
	Workers int

	// Bootstrap only
	RefitPolicy RefitPolicy

	Logger *zap.Logger
}

// SampleResult stores the empirical covariance of replicated effect vectors.
type SampleResult struct {
	Variances  NamedVector
	Covariance *CovarianceMatrix
	// Replicates that contributed to the covariance
	Replicates int
}

// eigenTolerance is the relative size below which negative eigenvalues are
// treated as rounding noise of a positive semi-definite matrix.
const eigenTolerance = 1e-10

// mvnSampler draws from N(mean, sigma). It uses the Cholesky factor when sigma
// is positive definite and Q*sqrt(Lambda) when it is only semi-definite.
type mvnSampler struct {
	mean []float64
	chol *mat.Cholesky
	root *mat.Dense
}

func newMVNSampler(mean []float64, sigma *mat.SymDense) (*mvnSampler, error) {
	n := sigma.SymmetricDim()
	if len(mean) != n {
		return nil, dimensionMismatch("mean has length %d, covariance has dimension %d", len(mean), n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := sigma.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, newError(KindNonPSDCovariance, nil, "covariance entry (%d,%d) is %v", i, j, v)
			}
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(sigma) {
		return &mvnSampler{mean: mean, chol: &chol}, nil
	}

	// Fallback: sigma may be singular but still semi-definite
	var eig mat.EigenSym
	if !eig.Factorize(sigma, true) {
		return nil, newError(KindNonPSDCovariance, nil, "covariance is not positive definite and eigen decomposition failed")
	}
	vals := eig.Values(nil)
	maxAbs := math.Max(math.Abs(floats.Max(vals)), math.Abs(floats.Min(vals)))
	for i, v := range vals {
		if v < -eigenTolerance*maxAbs {
			return nil, newError(KindNonPSDCovariance, nil, "covariance has negative eigenvalue %g", v)
		}
		if v < 0 {
			vals[i] = 0
		}
	}

	var Q mat.Dense
	eig.VectorsTo(&Q)
	root := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		s := math.Sqrt(vals[j])
		for i := 0; i < n; i++ {
			root.Set(i, j, Q.At(i, j)*s)
		}
	}
	return &mvnSampler{mean: mean, root: root}, nil
}

// draw returns one sample using src
func (s *mvnSampler) draw(src rand.Source) []float64 {
	if s.chol != nil {
		return distmv.NormalRand(nil, s.mean, s.chol, src)
	}

	rng := rand.New(src)
	n := len(s.mean)
	z := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		z.SetVec(i, rng.NormFloat64())
	}
	var x mat.VecDense
	x.MulVec(s.root, z)

	out := make([]float64, n)
	for i := range out {
		out[i] = s.mean[i] + x.AtVec(i)
	}
	return out
}

// Simulate draws coefficient vectors from N(coef, cov), evaluates g for each
// draw and returns the sample covariance of the resulting effects.
// Draw b always uses the same seed, so the result does not depend on Workers.
func Simulate(
	ctx context.Context,
	g GradientFunc,
	coef NamedVector,
	cov *CovarianceMatrix,
	opts SamplingOptions,
) (*SampleResult, error) {

	if opts.Iterations < 2 {
		return nil, invalidConfig("simulation needs at least 2 iterations, got %d", opts.Iterations)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mu, err := FilterCoefficients(coef, cov, false)
	if err != nil {
		return nil, err
	}
	if mu.Len() != cov.Dim() {
		return nil, dimensionMismatch("covariance has dimension %d but only %d coefficients match its labels", cov.Dim(), mu.Len())
	}

	sampler, err := newMVNSampler(mu.Values, cov.Matrix)
	if err != nil {
		return nil, err
	}

	// Fix the effect names from the point estimate
	base, err := g(mu)
	if err != nil {
		return nil, fmt.Errorf("evaluate effects at coefficient estimate: %w", err)
	}

	seeds := replicateSeeds(opts.Seed, opts.Iterations)
	draws := make([][]float64, opts.Iterations)
	errs := make([]error, opts.Iterations)

	logger.Debug("simulation started",
		zap.Int("iterations", opts.Iterations),
		zap.Int("coefficients", mu.Len()),
		zap.Bool("cholesky", sampler.chol != nil),
	)

	err = runParallel(ctx, opts.Iterations, opts.Workers, func(b int) {
		beta := sampler.draw(replicateSource(seeds, b))
		eff, err := g(NamedVector{Names: mu.Names, Values: beta})
		if err != nil {
			errs[b] = fmt.Errorf("simulation draw %d: %w", b, err)
			return
		}
		if eff.Len() != base.Len() {
			errs[b] = dimensionMismatch("simulation draw %d returned %d effects, expected %d", b, eff.Len(), base.Len())
			return
		}
		draws[b] = eff.Values
	})
	if err != nil {
		return nil, err
	}
	for _, e := range errs {
		if e != nil {
			metrics.RecordReplicates(MethodSimulation.String(), metrics.OutcomeFailed, 1)
			return nil, e
		}
	}
	metrics.RecordReplicates(MethodSimulation.String(), metrics.OutcomeOK, len(draws))

	effCov, err := empiricalCovariance(base.Names, draws)
	if err != nil {
		return nil, err
	}
	return &SampleResult{
		Variances:  effCov.Variances(),
		Covariance: effCov,
		Replicates: len(draws),
	}, nil
}
