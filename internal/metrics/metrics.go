// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package metrics exposes the Prometheus counters and histograms behind
// GET /metrics: per-lane latency and outcomes, fusion sizes, time to
// first token, SLA attainment, and stream terminations. A Registry is
// built once at startup; nothing registers into the global default.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the pipeline emits. It is built once at
// startup and passed down like the rest of the process-wide config; no
// package-level prometheus vars are registered implicitly.
type Registry struct {
	QueriesTotal     *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	LaneRequests     *prometheus.CounterVec
	LaneLatency      *prometheus.HistogramVec
	FusedDocuments   prometheus.Histogram
	TTFTMilliseconds prometheus.Histogram
	SynthesisDegraded prometheus.Counter
	Disagreements    prometheus.Counter
	Cancellations    prometheus.Counter
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_queries_total",
			Help: "Total number of queries accepted by the orchestrator, by terminal outcome.",
		}, []string{"mode", "outcome"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fusion_query_duration_milliseconds",
			Help:    "Total query latency from admission to the final stream event.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 3000, 5000, 7000, 10000, 15000},
		}, []string{"mode"}),

		LaneRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_lane_requests_total",
			Help: "Total lane executions, by lane and terminal status.",
		}, []string{"lane", "status"}),

		LaneLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fusion_lane_latency_milliseconds",
			Help:    "Lane execution latency.",
			Buckets: []float64{25, 50, 100, 250, 500, 750, 1000, 1500, 2000, 3000},
		}, []string{"lane"}),

		FusedDocuments: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusion_fused_documents_count",
			Help:    "Number of documents surviving dedup and fusion per query.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 35, 50},
		}),

		TTFTMilliseconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusion_ttft_milliseconds",
			Help:    "Time-to-first-streamed-event per query.",
			Buckets: []float64{50, 100, 250, 500, 750, 1000, 1500, 2000, 3000},
		}),

		SynthesisDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "fusion_synthesis_degraded_total",
			Help: "Total queries that fell back to rule-based synthesis.",
		}),

		Disagreements: factory.NewCounter(prometheus.CounterOpts{
			Name: "fusion_disagreements_total",
			Help: "Total cross-source disagreements flagged across all queries.",
		}),

		Cancellations: factory.NewCounter(prometheus.CounterOpts{
			Name: "fusion_cancellations_total",
			Help: "Total queries aborted by client disconnect or explicit cancel.",
		}),
	}
}
