// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

package main

import (
	"os"
)

// marginvar fits a model to a CSV file and reports the average marginal effects
// of its terms together with their variances.
//
//	marginvar estimate --data flu.csv --response y --terms temp,humidity --method bootstrap --iterations 500 --seed 12345
func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
