// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// InterceptName is the coefficient name used for the constant term.
const InterceptName = "(Intercept)"

// Simple struct for tabular data, one row per observation
type Dataset struct {
	// Matrix for data, NaN marks a missing value
	Data *mat.Dense
	// List of column names
	VarNames []string
}

// NamedVector is a numeric vector whose entries carry names.
// Used for coefficient vectors and for effect vectors.
type NamedVector struct {
	Names  []string
	Values []float64
}

// CovarianceMatrix is a symmetric matrix indexed by Names on both axes.
type CovarianceMatrix struct {
	Names  []string
	Matrix *mat.SymDense
}

// JacobianMatrix holds d(effect i)/d(coefficient j)
type JacobianMatrix struct {
	// Row labels
	Effects []string
	// Column labels
	Coefficients []string
	// effects x coefficients
	Matrix *mat.Dense
}

// Which variance estimator to run
type Method int

const (
	MethodNone Method = iota
	MethodDelta
	MethodSimulation
	MethodBootstrap
)

// Scale the effects are computed on
type EffectType string

const (
	EffectResponse EffectType = "response"
	EffectLink     EffectType = "link"
)

// TermKind says how an effect is computed for a regressor.
type TermKind int

const (
	// Continuous regressor, effect is a derivative
	TermNumeric TermKind = iota
	// 0/1 regressor, effect is a discrete change
	TermLogical
)

// Term is one classified regressor.
type Term struct {
	Name string
	Kind TermKind
}

// TermClassification lists the regressors eligible for effects, in model order.
type TermClassification []Term

// EffectsTable holds per-row effects, one column per effect.
type EffectsTable struct {
	Names []string
	// rows x effects, NaN where an effect could not be computed for a row
	Values *mat.Dense
}

// EffectsRequest carries the fixed configuration of an effects computation.
type EffectsRequest struct {
	Variables []string
	Type      EffectType
	Terms     TermClassification
}

// Model is the capability set the estimators need from a fitted model.
type Model interface {
	// Returns the named coefficient vector
	Coefficients() NamedVector
	// Returns the model-derived coefficient covariance
	Covariance() (*CovarianceMatrix, error)
	// Fits the same model to new data
	Refit(ctx context.Context, data *Dataset) (Model, error)
	// Returns a view of the model with the named coefficients replaced.
	// The receiver is not modified.
	WithCoefficients(coef NamedVector) (Model, error)
}

// Predictor is implemented by models that can produce per-row predictions.
type Predictor interface {
	Predict(data *Dataset, t EffectType) ([]float64, error)
}

// TermDescriber is implemented by models that know the kind of each regressor.
type TermDescriber interface {
	TermKinds() TermClassification
}

// EffectsComputer computes per-row effects for a model over a dataset.
// It must accept models whose coefficients have been substituted.
type EffectsComputer interface {
	ComputeEffects(ctx context.Context, m Model, data *Dataset, req EffectsRequest) (*EffectsTable, error)
}

// TermClassifier resolves the variables of interest into classified terms.
type TermClassifier interface {
	Classify(m Model, variables []string) (TermClassification, error)
}

// CovarianceSource yields the coefficient covariance for a model.
type CovarianceSource func(m Model) (*CovarianceMatrix, error)

// What to do when a bootstrap replicate cannot be refit
type RefitPolicy int

const (
	// Drop the replicate and continue
	RefitSkip RefitPolicy = iota
	// Fail the whole estimation
	RefitAbort
)

// Options configures a call to Estimate.
type Options struct {
	Method Method

	// Number of draws or resamples for simulation and bootstrap (default 50)
	Iterations int

	// Central difference step for the delta method (default 1e-7)
	StepSize float64

	// Optional per-row weights, same length as the dataset
	Weights []float64

	// Variables of interest, empty means every eligible term
	Variables []string

	EffectType EffectType

	// Overrides the model covariance when set
	Covariance CovarianceSource

	// Skips the classifier when non-empty
	Terms TermClassification

	// RNG seed for simulation and bootstrap (if 0, time-based seed is used)
	Seed uint64

	// Number of goroutines for per-iteration work (0 or 1 = serial)
	Workers int

	RefitPolicy RefitPolicy
}

// EstimationResult is returned by Estimate.
// For MethodNone every field except Method is nil.
type EstimationResult struct {
	Method Method

	// Effect names in estimation order
	Names []string

	// Variance of each effect, repeated once per dataset row
	Variances map[string][]float64

	Covariance *CovarianceMatrix

	// Only set by the delta method
	Jacobian *JacobianMatrix

	// Simulation draws or successful bootstrap replicates actually used
	Replicates int
}

// What kind of model to fit
type ModelSpec struct {
	// Column holding the outcome
	Response string
	// Regressor columns, in coefficient order
	Terms []string
	// Include a constant term
	Intercept bool
}
