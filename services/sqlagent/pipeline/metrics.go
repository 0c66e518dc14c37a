// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlagent_pipeline_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_pipeline_runs_total",
			Help: "Pipeline runs by outcome (complete, incomplete, error).",
		},
		[]string{"outcome"},
	)

	contractViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlagent_pipeline_contract_violations_total",
			Help: "Query-generation turns that called a non-terminal tool.",
		},
	)
)

// observeStage records one stage's wall time.
func observeStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
