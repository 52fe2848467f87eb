// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rigmatch",
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Resolutions by outcome and strategy",
	}, []string{"outcome", "strategy"})

	escalationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rigmatch",
		Subsystem: "resolver",
		Name:      "escalations_total",
		Help:      "Ambiguous results by decision and whether a remembered decision was reused",
	}, []string{"decision", "reused"})

	fabricatedNodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rigmatch",
		Subsystem: "resolver",
		Name:      "fabricated_nodes_total",
		Help:      "Target nodes created because no correspondence existed",
	})

	acceptedConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rigmatch",
		Subsystem: "resolver",
		Name:      "accepted_confidence",
		Help:      "Confidence of strategy results accepted without escalation",
		Buckets:   []float64{0.6, 0.65, 0.7, 0.8, 0.85, 0.9, 0.95, 0.97, 1.0},
	})
)

func recordEscalation(d Decision, reused bool) {
	escalationsTotal.WithLabelValues(d.Kind.String(), strconv.FormatBool(reused)).Inc()
}

// =============================================================================
// OTel Tracer
// =============================================================================

const tracerName = "aleutian.rigmatch.resolve"

var defaultTracer = otel.Tracer(tracerName)
