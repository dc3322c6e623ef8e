// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"marginvar"
	"marginvar/internal/config"
	"marginvar/internal/logger"
)

func newEstimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Fit a model and estimate the variance of its average marginal effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			defer func() { _ = log.Sync() }()

			return runEstimate(cmd.Context(), cfg, cmd.OutOrStdout(), log)
		},
	}

	f := cmd.Flags()
	f.String(config.KeyData, "", "CSV file with a header row")
	f.String(config.KeyFamily, "linear", "Model family (linear or logit)")
	f.String(config.KeyResponse, "", "Response column")
	f.StringSlice(config.KeyTerms, nil, "Regressor columns")
	f.Bool(config.KeyNoIntercept, false, "Fit without a constant term")
	f.String(config.KeyWeights, "", "Column holding per-row weights")
	f.String(config.KeyMethod, "delta", "Variance method (none, delta, simulation, bootstrap)")
	f.Int(config.KeyIterations, 50, "Simulation draws or bootstrap resamples")
	f.Float64(config.KeyStep, 1e-7, "Central difference step for the delta method")
	f.Uint64(config.KeySeed, 0, "RNG seed (0 = time-based)")
	f.Int(config.KeyWorkers, 1, "Goroutines for simulation, bootstrap and Jacobian evaluations")
	f.String(config.KeyType, "response", "Effect scale (response or link)")
	f.StringSlice(config.KeyVariables, nil, "Variables to report (default all terms)")
	f.String(config.KeyRefitPolicy, "skip", "Bootstrap refit failures: skip or abort")
	f.String(config.KeyOut, "", "Write effects and variances to this CSV file")
	f.String(config.KeyCovOut, "", "Write the effect covariance matrix to this CSV file")
	f.String(config.KeyMetricsFile, "", "Write Prometheus metrics to this file when done")

	return cmd
}

// fitModel fits the configured family to ds
func fitModel(cfg *config.Config, ds *marginvar.Dataset) (marginvar.Model, error) {
	spec := marginvar.ModelSpec{
		Response:  cfg.Model.Response,
		Terms:     cfg.Model.Terms,
		Intercept: cfg.Model.Intercept,
	}
	switch cfg.Model.Family {
	case "logit":
		m, err := marginvar.LogitEstimator{}.Estimate(ds, spec)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		m, err := (&marginvar.OLSEstimator{}).Estimate(ds, spec)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// buildOptions turns the configuration into estimation options
func buildOptions(cfg *config.Config, ds *marginvar.Dataset) (marginvar.Options, error) {
	method, err := marginvar.ParseMethod(cfg.Estimation.Method)
	if err != nil {
		return marginvar.Options{}, err
	}
	et, err := marginvar.ParseEffectType(cfg.Estimation.EffectType)
	if err != nil {
		return marginvar.Options{}, err
	}
	policy, err := marginvar.ParseRefitPolicy(cfg.Estimation.RefitPolicy)
	if err != nil {
		return marginvar.Options{}, err
	}

	opts := marginvar.Options{
		Method:      method,
		Iterations:  cfg.Estimation.Iterations,
		StepSize:    cfg.Estimation.StepSize,
		Variables:   cfg.Estimation.Variables,
		EffectType:  et,
		Seed:        cfg.Estimation.Seed,
		Workers:     cfg.Estimation.Workers,
		RefitPolicy: policy,
	}
	if cfg.Model.Weights != "" {
		w, err := ds.Column(cfg.Model.Weights)
		if err != nil {
			return marginvar.Options{}, fmt.Errorf("weights: %w", err)
		}
		opts.Weights = w
	}
	return opts, nil
}

func runEstimate(ctx context.Context, cfg *config.Config, out io.Writer, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Model.Data == "" || cfg.Model.Response == "" || len(cfg.Model.Terms) == 0 {
		return fmt.Errorf("--data, --response and --terms are required")
	}

	ds, err := marginvar.LoadCSV(cfg.Model.Data)
	if err != nil {
		return err
	}
	log.Debug("data loaded", zap.String("path", cfg.Model.Data), zap.Int("rows", ds.Rows()))

	model, err := fitModel(cfg, ds)
	if err != nil {
		return fmt.Errorf("fit %s model: %w", cfg.Model.Family, err)
	}

	opts, err := buildOptions(cfg, ds)
	if err != nil {
		return err
	}

	effects := marginvar.DydxEffects{}
	classifier := marginvar.ModelTermClassifier{}
	est := marginvar.NewEstimator(effects, classifier, log)

	terms, err := classifier.Classify(model, opts.Variables)
	if err != nil {
		return err
	}
	opts.Terms = terms

	ame, err := marginvar.AverageEffects(ctx, ds, model, effects, marginvar.EffectsRequest{
		Variables: opts.Variables,
		Type:      opts.EffectType,
		Terms:     terms,
	}, opts.Weights)
	if err != nil {
		return err
	}

	res, err := est.Estimate(ctx, ds, model, opts)
	if err != nil {
		return err
	}

	if err := printSummary(out, ame, res); err != nil {
		return err
	}

	if cfg.Output.Result != "" && res.Covariance != nil {
		if err := marginvar.WriteResultCSV(cfg.Output.Result, ame, res); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		log.Info("results written", zap.String("path", cfg.Output.Result))
	}
	if cfg.Output.Covariance != "" && res.Covariance != nil {
		if err := marginvar.WriteCovarianceCSV(cfg.Output.Covariance, res.Covariance); err != nil {
			return fmt.Errorf("write covariance: %w", err)
		}
		log.Info("covariance written", zap.String("path", cfg.Output.Covariance))
	}
	if cfg.Output.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.Output.MetricsFile, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// printSummary prints one row per effect: estimate, standard error, z value
func printSummary(out io.Writer, ame marginvar.NamedVector, res *marginvar.EstimationResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Method: %s", res.Method)
	if res.Replicates > 0 {
		fmt.Fprintf(tw, " (%d replicates)", res.Replicates)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "effect\tAME\tSE\tz")

	for i, name := range ame.Names {
		v := ame.Values[i]
		if res.Variances == nil {
			fmt.Fprintf(tw, "%s\t%.6f\t\t\n", name, v)
			continue
		}
		se := math.NaN()
		if vs := res.Variances[name]; len(vs) > 0 {
			se = math.Sqrt(vs[0])
		}
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t%.3f\n", name, v, se, v/se)
	}
	return tw.Flush()
}
