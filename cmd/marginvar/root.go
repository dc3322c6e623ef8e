// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marginvar/internal/config"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "marginvar",
	Short: "Average marginal effects and their variances",
	Long: `marginvar fits a linear or logistic model to a CSV file and estimates the
variance of the average marginal effect of each term.

Commands:
  estimate - fit the model and estimate effect variances
  version  - print the version

Example:
  marginvar estimate --data data.csv --response y --terms x1,x2
  marginvar estimate --data data.csv --response y --terms x1 --method bootstrap --iterations 500 --seed 1`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "marginvar", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().String(config.KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String(config.KeyLogFormat, "console", "Log format (console or json)")

	// Add subcommands
	rootCmd.AddCommand(newEstimateCmd())
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}
