// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

// Package config loads marginvar settings from defaults, an optional config
// file, MARGINVAR_* environment variables and command line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full tool configuration
type Config struct {
	Log        LogConfig
	Model      ModelConfig
	Estimation EstimationConfig
	Output     OutputConfig
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string
	Format string
}

// ModelConfig describes the data and the model to fit
type ModelConfig struct {
	Data      string
	Family    string
	Response  string
	Terms     []string
	Intercept bool
	Weights   string
}

// EstimationConfig mirrors the estimation options
type EstimationConfig struct {
	Method      string
	Iterations  int
	StepSize    float64
	Seed        uint64
	Workers     int
	EffectType  string
	Variables   []string
	RefitPolicy string
}

// OutputConfig names the files results are written to
type OutputConfig struct {
	Result      string
	Covariance  string
	MetricsFile string
}

// Keys shared by defaults, flags and environment variables
const (
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
	KeyData        = "data"
	KeyFamily      = "family"
	KeyResponse    = "response"
	KeyTerms       = "terms"
	KeyNoIntercept = "no-intercept"
	KeyWeights     = "weights"
	KeyMethod      = "method"
	KeyIterations  = "iterations"
	KeyStep        = "step"
	KeySeed        = "seed"
	KeyWorkers     = "workers"
	KeyType        = "type"
	KeyVariables   = "variables"
	KeyRefitPolicy = "refit-policy"
	KeyOut         = "out"
	KeyCovOut      = "covariance-out"
	KeyMetricsFile = "metrics-file"
)

// Load reads the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables, MARGINVAR_ITERATIONS etc.
	v.SetEnvPrefix("MARGINVAR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Optionally read from config file
	v.SetConfigName("marginvar")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/marginvar")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Logging
	cfg.Log.Level = v.GetString(KeyLogLevel)
	cfg.Log.Format = v.GetString(KeyLogFormat)

	// Model
	cfg.Model.Data = v.GetString(KeyData)
	cfg.Model.Family = strings.ToLower(v.GetString(KeyFamily))
	cfg.Model.Response = v.GetString(KeyResponse)
	cfg.Model.Terms = splitList(v.GetStringSlice(KeyTerms))
	cfg.Model.Intercept = !v.GetBool(KeyNoIntercept)
	cfg.Model.Weights = v.GetString(KeyWeights)

	// Estimation
	cfg.Estimation.Method = strings.ToLower(v.GetString(KeyMethod))
	cfg.Estimation.Iterations = v.GetInt(KeyIterations)
	cfg.Estimation.StepSize = v.GetFloat64(KeyStep)
	cfg.Estimation.Seed = v.GetUint64(KeySeed)
	cfg.Estimation.Workers = v.GetInt(KeyWorkers)
	cfg.Estimation.EffectType = strings.ToLower(v.GetString(KeyType))
	cfg.Estimation.Variables = splitList(v.GetStringSlice(KeyVariables))
	cfg.Estimation.RefitPolicy = strings.ToLower(v.GetString(KeyRefitPolicy))

	// Output
	cfg.Output.Result = v.GetString(KeyOut)
	cfg.Output.Covariance = v.GetString(KeyCovOut)
	cfg.Output.MetricsFile = v.GetString(KeyMetricsFile)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")

	// Model defaults
	v.SetDefault(KeyFamily, "linear")
	v.SetDefault(KeyNoIntercept, false)

	// Estimation defaults
	v.SetDefault(KeyMethod, "delta")
	v.SetDefault(KeyIterations, 50)
	v.SetDefault(KeyStep, 1e-7)
	v.SetDefault(KeySeed, 0)
	v.SetDefault(KeyWorkers, 1)
	v.SetDefault(KeyType, "response")
	v.SetDefault(KeyRefitPolicy, "skip")
}

// splitList flattens comma separated entries coming from env or config files
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validate(cfg *Config) error {
	switch cfg.Estimation.Method {
	case "none", "delta", "simulation", "bootstrap":
	default:
		return fmt.Errorf("unknown method %q (want none, delta, simulation or bootstrap)", cfg.Estimation.Method)
	}
	if (cfg.Estimation.Method == "simulation" || cfg.Estimation.Method == "bootstrap") && cfg.Estimation.Iterations < 2 {
		return fmt.Errorf("%s needs at least 2 iterations, got %d", cfg.Estimation.Method, cfg.Estimation.Iterations)
	}
	if cfg.Estimation.StepSize < 0 {
		return fmt.Errorf("step must be positive, got %v", cfg.Estimation.StepSize)
	}
	if cfg.Estimation.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", cfg.Estimation.Workers)
	}
	switch cfg.Model.Family {
	case "linear", "logit":
	default:
		return fmt.Errorf("unknown family %q (want linear or logit)", cfg.Model.Family)
	}
	switch cfg.Estimation.EffectType {
	case "response", "link":
	default:
		return fmt.Errorf("unknown effect type %q (want response or link)", cfg.Estimation.EffectType)
	}
	switch cfg.Estimation.RefitPolicy {
	case "skip", "abort":
	default:
		return fmt.Errorf("unknown refit policy %q (want skip or abort)", cfg.Estimation.RefitPolicy)
	}
	return nil
}
