// Authors: marginvar maintainers
// Date: Oct 19th 2026
// Project: Marginal Effect Variance Estimation
// Class: 02-613 at Caregie Mellon University

// Package metrics records Prometheus metrics for variance estimation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Replicate outcomes
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	// estimationTotal counts Estimate calls by method and status
	estimationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marginvar_estimations_total",
			Help: "Total number of variance estimations",
		},
		[]string{"method", "status"},
	)

	// estimationDuration tracks wall time per estimation
	estimationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marginvar_estimation_duration_seconds",
			Help:    "Variance estimation duration in seconds",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"method"},
	)

	// replicatesTotal counts simulation draws and bootstrap replicates
	replicatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marginvar_replicates_total",
			Help: "Total number of simulation draws and bootstrap replicates by outcome",
		},
		[]string{"method", "outcome"},
	)
)

// RecordEstimation records one finished estimation
func RecordEstimation(method string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	estimationTotal.WithLabelValues(method, status).Inc()
	estimationDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordReplicates adds n replicates with the given outcome
func RecordReplicates(method, outcome string, n int) {
	if n <= 0 {
		return
	}
	replicatesTotal.WithLabelValues(method, outcome).Add(float64(n))
}
