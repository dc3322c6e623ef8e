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

// EffectPrefix is prepended to a variable name to label its effect.
const EffectPrefix = "dydx_"

// DydxEffects computes per-row marginal effects from model predictions.
// Numeric terms get a forward-difference derivative, logical terms the change
// in prediction from 0 to 1.
type DydxEffects struct {
	// Base of the numeric step, the step is max(max|x|, 1) * sqrt(Eps) (0 = 1e-7)
	Eps float64
}

// ComputeEffects implements EffectsComputer. The model must implement Predictor.
func (d DydxEffects) ComputeEffects(ctx context.Context, m Model, data *Dataset, req EffectsRequest) (*EffectsTable, error) {
	p, ok := m.(Predictor)
	if !ok {
		return nil, missingCollaborator("model %T cannot predict, dydx effects need a Predictor", m)
	}
	terms, err := selectTerms(req.Terms, req.Variables)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, invalidConfig("no terms to compute effects for")
	}

	eps := d.Eps
	if eps <= 0 {
		eps = 1e-7
	}

	n := data.Rows()
	out := &EffectsTable{
		Names:  make([]string, len(terms)),
		Values: mat.NewDense(n, len(terms), nil),
	}

	var p0 []float64
	for k, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Names[k] = EffectPrefix + term.Name

		x, err := data.Column(term.Name)
		if err != nil {
			return nil, err
		}

		var eff []float64
		switch term.Kind {
		case TermLogical:
			eff, err = discreteChange(p, data, term.Name, req.Type)
		default:
			if p0 == nil {
				p0, err = p.Predict(data, req.Type)
				if err != nil {
					return nil, fmt.Errorf("predict: %w", err)
				}
			}
			eff, err = forwardDifference(p, data, term.Name, x, p0, eps, req.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("effect of %s: %w", term.Name, err)
		}
		out.Values.SetCol(k, eff)
	}
	return out, nil
}

// forwardDifference returns (f(x + h) - f(x)) / h row by row
func forwardDifference(p Predictor, data *Dataset, name string, x, p0 []float64, eps float64, t EffectType) ([]float64, error) {
	scale := 1.0
	for _, v := range x {
		if !math.IsNaN(v) && math.Abs(v) > scale {
			scale = math.Abs(v)
		}
	}
	s := scale * math.Sqrt(eps)

	// h is the representable step actually taken at each x
	h := make([]float64, len(x))
	shifted := make([]float64, len(x))
	for i, v := range x {
		shifted[i] = v + s
		h[i] = shifted[i] - v
	}

	d1, err := data.WithColumn(name, shifted)
	if err != nil {
		return nil, err
	}
	p1, err := p.Predict(d1, t)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	eff := make([]float64, len(x))
	for i := range eff {
		eff[i] = (p1[i] - p0[i]) / h[i]
	}
	return eff, nil
}

// discreteChange returns f(x = 1) - f(x = 0) row by row.
// Rows with a missing x stay missing.
func discreteChange(p Predictor, data *Dataset, name string, t EffectType) ([]float64, error) {
	x, err := data.Column(name)
	if err != nil {
		return nil, err
	}
	n := len(x)
	zeros := make([]float64, n)
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
		if math.IsNaN(x[i]) {
			zeros[i] = math.NaN()
			ones[i] = math.NaN()
		}
	}

	d0, err := data.WithColumn(name, zeros)
	if err != nil {
		return nil, err
	}
	d1, err := data.WithColumn(name, ones)
	if err != nil {
		return nil, err
	}
	p0, err := p.Predict(d0, t)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	p1, err := p.Predict(d1, t)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	eff := make([]float64, n)
	for i := range eff {
		eff[i] = p1[i] - p0[i]
	}
	return eff, nil
}

// selectTerms keeps the classified terms named in variables, in variables order.
// Empty variables keeps every term.
func selectTerms(terms TermClassification, variables []string) (TermClassification, error) {
	if len(variables) == 0 {
		return terms, nil
	}
	out := make(TermClassification, 0, len(variables))
	for _, v := range variables {
		found := false
		for _, t := range terms {
			if t.Name == v {
				out = append(out, t)
				found = true
				break
			}
		}
		if !found {
			return nil, invalidConfig("variable %q is not a term of the model", v)
		}
	}
	return out, nil
}

// ModelTermClassifier classifies terms from the model's own term metadata.
type ModelTermClassifier struct{}

// Classify implements TermClassifier. The model must implement TermDescriber.
func (ModelTermClassifier) Classify(m Model, variables []string) (TermClassification, error) {
	td, ok := m.(TermDescriber)
	if !ok {
		return nil, missingCollaborator("model %T does not describe its terms", m)
	}
	return selectTerms(td.TermKinds(), variables)
}
