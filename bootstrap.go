// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"marginvar/internal/metrics"
)

// errNoWeight marks a resample whose rows all carry zero weight
var errNoWeight = errors.New("resampled rows carry no weight")

// bootReplication holds the outcome of one bootstrap replication.
// unusable is set for a failed refit or a resample with nothing to average.
type bootReplication struct {
	effects  []float64
	unusable error
	err      error
}

// undefinedEffects reports whether eff lost an average that base has
func undefinedEffects(base, eff NamedVector) bool {
	for j, v := range eff.Values {
		if math.IsNaN(v) && !math.IsNaN(base.Values[j]) {
			return true
		}
	}
	return false
}

// resampleIndices draws n row indices uniformly with replacement
func resampleIndices(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.IntN(n)
	}
	return idx
}

// Bootstrap resamples the rows of data with replacement, refits the model on each
// resample, recomputes the (weighted) average effects and returns their sample
// covariance across replications.
// weights: optional per-row weights, resampled together with the rows
// A replication whose refit fails, or whose resampled rows carry no weight, is
// dropped under RefitSkip and fails the run under RefitAbort.
// Fewer than 2 usable replications is a RefitFailure.
func Bootstrap(
	ctx context.Context,
	data *Dataset,
	model Model,
	effects EffectsComputer,
	req EffectsRequest,
	weights []float64,
	opts SamplingOptions,
) (*SampleResult, error) {

	if opts.Iterations < 2 {
		return nil, invalidConfig("bootstrap needs at least 2 iterations, got %d", opts.Iterations)
	}
	n := data.Rows()
	if n == 0 {
		return nil, invalidConfig("bootstrap needs a non-empty dataset")
	}
	if weights != nil && len(weights) != n {
		return nil, invalidConfig("got %d weights for %d rows", len(weights), n)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Point estimate fixes the effect names every replication must reproduce
	base, err := AverageEffects(ctx, data, model, effects, req, weights)
	if err != nil {
		return nil, err
	}

	seeds := replicateSeeds(opts.Seed, opts.Iterations)
	reps := make([]bootReplication, opts.Iterations)

	logger.Debug("bootstrap started",
		zap.Int("iterations", opts.Iterations),
		zap.Int("rows", n),
		zap.Int("workers", opts.Workers),
	)

	err = runParallel(ctx, opts.Iterations, opts.Workers, func(b int) {
		rng := rand.New(replicateSource(seeds, b))
		idx := resampleIndices(rng, n)

		resampled := data.Resample(idx)
		var w []float64
		if weights != nil {
			w = make([]float64, n)
			total := 0.0
			for i, r := range idx {
				w[i] = weights[r]
				total += w[i]
			}
			if total <= 0 {
				reps[b].unusable = fmt.Errorf("bootstrap %d: %w", b, errNoWeight)
				return
			}
		}

		refit, err := model.Refit(ctx, resampled)
		if err != nil {
			reps[b].unusable = fmt.Errorf("bootstrap %d: refit: %w", b, err)
			return
		}

		eff, err := AverageEffects(ctx, resampled, refit, effects, req, w)
		if err != nil {
			reps[b].err = fmt.Errorf("bootstrap %d: %w", b, err)
			return
		}
		if eff.Len() != base.Len() {
			reps[b].err = dimensionMismatch("bootstrap %d returned %d effects, expected %d", b, eff.Len(), base.Len())
			return
		}
		// positive weight only on rows with missing effects
		if undefinedEffects(base, eff) {
			reps[b].unusable = fmt.Errorf("bootstrap %d: %w", b, errNoWeight)
			return
		}
		reps[b].effects = eff.Values
	})
	if err != nil {
		return nil, err
	}

	// Aggregate only after every replication has finished
	draws := make([][]float64, 0, opts.Iterations)
	var refitErrs error
	skipped := 0
	for b, rep := range reps {
		switch {
		case rep.err != nil:
			metrics.RecordReplicates(MethodBootstrap.String(), metrics.OutcomeFailed, 1)
			return nil, rep.err
		case rep.unusable != nil:
			if opts.RefitPolicy == RefitAbort {
				metrics.RecordReplicates(MethodBootstrap.String(), metrics.OutcomeFailed, 1)
				return nil, newError(KindRefitFailure, rep.unusable, "bootstrap replicate %d is unusable", b)
			}
			logger.Warn("bootstrap replicate skipped", zap.Int("replicate", b), zap.Error(rep.unusable))
			refitErrs = multierr.Append(refitErrs, rep.unusable)
			skipped++
		default:
			draws = append(draws, rep.effects)
		}
	}
	metrics.RecordReplicates(MethodBootstrap.String(), metrics.OutcomeSkipped, skipped)
	metrics.RecordReplicates(MethodBootstrap.String(), metrics.OutcomeOK, len(draws))

	if len(draws) < 2 {
		return nil, newError(KindRefitFailure, refitErrs,
			"only %d of %d bootstrap replicates were usable", len(draws), opts.Iterations)
	}
	if skipped > 0 {
		logger.Info("bootstrap finished with skipped replicates",
			zap.Int("used", len(draws)),
			zap.Int("skipped", skipped),
		)
	}

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
