// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package marginvar

import (
	"context"
	"fmt"
)

// GradientFunc maps a coefficient vector to the vector of average effects.
type GradientFunc func(coef NamedVector) (NamedVector, error)

// BuildGradient closes over the data, the model and the effects configuration and
// returns a function of the coefficients alone.
// Each call works on its own model view from WithCoefficients, so the returned
// function keeps no state between calls and may be called concurrently.
func BuildGradient(
	ctx context.Context,
	data *Dataset,
	model Model,
	effects EffectsComputer,
	req EffectsRequest,
	weights []float64,
) GradientFunc {

	return func(coef NamedVector) (NamedVector, error) {
		m, err := model.WithCoefficients(coef)
		if err != nil {
			return NamedVector{}, fmt.Errorf("substitute coefficients: %w", err)
		}
		tbl, err := effects.ComputeEffects(ctx, m, data, req)
		if err != nil {
			return NamedVector{}, fmt.Errorf("compute effects: %w", err)
		}
		return MeanEffects(tbl, weights)
	}
}

// AverageEffects evaluates the average effects at the model's own coefficients.
func AverageEffects(
	ctx context.Context,
	data *Dataset,
	model Model,
	effects EffectsComputer,
	req EffectsRequest,
	weights []float64,
) (NamedVector, error) {
	tbl, err := effects.ComputeEffects(ctx, model, data, req)
	if err != nil {
		return NamedVector{}, fmt.Errorf("compute effects: %w", err)
	}
	return MeanEffects(tbl, weights)
}
