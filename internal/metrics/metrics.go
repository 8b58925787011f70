// Package metrics holds the process-wide Prometheus collectors served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts answered queries by intent and outcome (ok, error, empty).
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_queries_total",
		Help: "Total queries by intent and outcome",
	}, []string{"intent", "outcome"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "argus_query_duration_seconds",
		Help:    "Query latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"intent"})

	WarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_query_warnings_total",
		Help: "Warnings attached to query responses by code",
	}, []string{"code"})

	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "argus_recompute_duration_seconds",
		Help:    "Structural score recompute duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	RecomputeIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "argus_pagerank_iterations",
		Help:    "Power iterations used per recompute",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200},
	})

	GraphEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "argus_graph_entities",
		Help: "Entities currently held by the graph index",
	})

	GraphRelationships = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "argus_graph_relationships",
		Help: "Relationships currently held by the graph index",
	})

	// IngestBatchesTotal counts extraction batches by source (amqp, file, http) and result.
	IngestBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "argus_ingest_batches_total",
		Help: "Extraction batches applied by source and result",
	}, []string{"source", "result"})
)
