// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics for completion calls.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// completionDuration measures the duration of completion API calls.
	//
	// Labels:
	//   - provider: "openai", "anthropic"
	//   - status: "success" or "error"
	completionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sqlagent",
			Subsystem: "llm",
			Name:      "completion_duration_seconds",
			Help:      "Duration of completion API calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "status"},
	)

	// completionsTotal counts the total number of completion API calls.
	//
	// Labels:
	//   - provider: "openai", "anthropic"
	//   - status: "success" or "error"
	completionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqlagent",
			Subsystem: "llm",
			Name:      "completions_total",
			Help:      "Total number of completion API calls.",
		},
		[]string{"provider", "status"},
	)
)

// observeCompletion records one completion call in both metrics.
func observeCompletion(provider, status string, elapsed time.Duration) {
	completionDuration.WithLabelValues(provider, status).Observe(elapsed.Seconds())
	completionsTotal.WithLabelValues(provider, status).Inc()
}
