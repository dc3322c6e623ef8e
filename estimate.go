// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"marginvar/internal/metrics"
)

// DefaultIterations is the number of draws or resamples when none is given.
const DefaultIterations = 50

// Estimator runs variance estimation against its effects and term
// classification collaborators.
type Estimator struct {
	Effects    EffectsComputer
	Classifier TermClassifier
	Logger     *zap.Logger
}

// NewEstimator returns an Estimator. A nil logger is replaced by a no-op logger.
func NewEstimator(effects EffectsComputer, classifier TermClassifier, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{Effects: effects, Classifier: classifier, Logger: logger}
}

// FixedCovariance returns a CovarianceSource that ignores the model.
func FixedCovariance(cov *CovarianceMatrix) CovarianceSource {
	return func(Model) (*CovarianceMatrix, error) { return cov, nil }
}

// Estimate computes the covariance of the average effects of model over data with
// the method selected in opts.
// MethodNone returns an empty result without touching the model or collaborators.
// On success every variance is repeated once per row of data.
func (e *Estimator) Estimate(ctx context.Context, data *Dataset, model Model, opts Options) (*EstimationResult, error) {
	switch opts.Method {
	case MethodNone:
		return &EstimationResult{Method: MethodNone}, nil
	case MethodDelta, MethodSimulation, MethodBootstrap:
	default:
		return nil, invalidConfig("unknown variance method %v", opts.Method)
	}

	start := time.Now()
	res, err := e.estimate(ctx, data, model, opts)
	metrics.RecordEstimation(opts.Method.String(), time.Since(start), err)
	if err != nil {
		e.logger().Debug("estimation failed", zap.Stringer("method", opts.Method), zap.Error(err))
		return nil, err
	}

	e.logger().Info("estimation finished",
		zap.Stringer("method", opts.Method),
		zap.Int("effects", len(res.Names)),
		zap.Int("replicates", res.Replicates),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (e *Estimator) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Estimator) estimate(ctx context.Context, data *Dataset, model Model, opts Options) (*EstimationResult, error) {
	if e.Effects == nil {
		return nil, missingCollaborator("no effects computer configured")
	}
	if model == nil {
		return nil, missingCollaborator("no model supplied")
	}
	if err := validateOptions(data, &opts); err != nil {
		return nil, err
	}

	terms := opts.Terms
	if len(terms) == 0 {
		if e.Classifier == nil {
			return nil, missingCollaborator("no term classification given and no classifier configured")
		}
		var err error
		terms, err = e.Classifier.Classify(model, opts.Variables)
		if err != nil {
			return nil, fmt.Errorf("classify terms: %w", err)
		}
	}

	req := EffectsRequest{
		Variables: opts.Variables,
		Type:      opts.EffectType,
		Terms:     terms,
	}
	sampling := SamplingOptions{
		Iterations:  opts.Iterations,
		Seed:        opts.Seed,
		Workers:     opts.Workers,
		RefitPolicy: opts.RefitPolicy,
		Logger:      e.logger(),
	}

	res := &EstimationResult{Method: opts.Method}
	var cov *CovarianceMatrix

	switch opts.Method {
	case MethodDelta, MethodSimulation:
		vcov, err := e.covariance(model, opts.Covariance)
		if err != nil {
			return nil, err
		}
		g := BuildGradient(ctx, data, model, e.Effects, req, opts.Weights)

		if opts.Method == MethodDelta {
			dr, err := Delta(g, model.Coefficients(), vcov, opts.StepSize, opts.Workers > 1)
			if err != nil {
				return nil, err
			}
			cov = dr.Covariance
			res.Jacobian = dr.Jacobian
		} else {
			sr, err := Simulate(ctx, g, model.Coefficients(), vcov, sampling)
			if err != nil {
				return nil, err
			}
			cov = sr.Covariance
			res.Replicates = sr.Replicates
		}

	case MethodBootstrap:
		sr, err := Bootstrap(ctx, data, model, e.Effects, req, opts.Weights, sampling)
		if err != nil {
			return nil, err
		}
		cov = sr.Covariance
		res.Replicates = sr.Replicates
	}

	res.Names = append([]string(nil), cov.Names...)
	res.Covariance = cov
	res.Variances = replicateVariances(cov, data.Rows())
	return res, nil
}

// covariance resolves the coefficient covariance from the override or the model
func (e *Estimator) covariance(model Model, src CovarianceSource) (*CovarianceMatrix, error) {
	var (
		cov *CovarianceMatrix
		err error
	)
	if src != nil {
		cov, err = src(model)
	} else {
		cov, err = model.Covariance()
	}
	if err != nil {
		return nil, fmt.Errorf("coefficient covariance: %w", err)
	}
	if cov == nil || cov.Matrix == nil {
		return nil, missingCollaborator("coefficient covariance is not available")
	}
	return cov, nil
}

// validateOptions checks opts against data and fills in defaults
func validateOptions(data *Dataset, opts *Options) error {
	if data == nil || data.Rows() == 0 {
		return invalidConfig("dataset is empty")
	}

	seen := make(map[string]bool, len(opts.Variables))
	for _, v := range opts.Variables {
		if v == "" {
			return invalidConfig("variable selection contains an empty name")
		}
		if seen[v] {
			return invalidConfig("variable %q selected more than once", v)
		}
		seen[v] = true
	}

	if opts.Weights != nil {
		if len(opts.Weights) != data.Rows() {
			return invalidConfig("got %d weights for %d rows", len(opts.Weights), data.Rows())
		}
		total := 0.0
		for i, w := range opts.Weights {
			if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
				return invalidConfig("weight %d is %v, weights must be finite and non-negative", i, w)
			}
			total += w
		}
		if total <= 0 {
			return invalidConfig("weights sum to zero")
		}
	}

	et, err := ParseEffectType(string(opts.EffectType))
	if err != nil {
		return err
	}
	opts.EffectType = et

	if opts.StepSize < 0 || math.IsNaN(opts.StepSize) {
		return invalidConfig("step size must be positive, got %v", opts.StepSize)
	}
	if opts.StepSize == 0 {
		opts.StepSize = DefaultStepSize
	}

	if opts.Iterations == 0 {
		opts.Iterations = DefaultIterations
	}
	if opts.Method != MethodDelta && opts.Iterations < 2 {
		return invalidConfig("%s needs at least 2 iterations, got %d", opts.Method, opts.Iterations)
	}
	if opts.Workers < 0 {
		return invalidConfig("workers must not be negative, got %d", opts.Workers)
	}
	if opts.RefitPolicy != RefitSkip && opts.RefitPolicy != RefitAbort {
		return invalidConfig("unknown refit policy %d", opts.RefitPolicy)
	}
	return nil
}
