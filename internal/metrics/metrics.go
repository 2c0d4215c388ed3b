// Package metrics exposes the in-process counters and gauges tracked across
// the cache hierarchy, the gap scheduler, and the resolver's binary search.
// No HTTP endpoint is wired; collection is for process-local observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheRequestsTotal tracks cache tier lookups by key kind and outcome.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txindex_cache_requests_total",
			Help: "Total number of cache lookups",
		},
		[]string{"key_kind", "outcome"}, // outcome: hit, miss, error
	)

	// JobsEnqueuedTotal tracks gap jobs enqueued by priority.
	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txindex_jobs_enqueued_total",
			Help: "Total number of gap-fill jobs enqueued",
		},
		[]string{"priority"},
	)

	// JobsCompletedTotal tracks gap jobs that finished, by outcome.
	JobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txindex_jobs_completed_total",
			Help: "Total number of gap-fill jobs completed",
		},
		[]string{"outcome"}, // outcome: success, recovered, failed
	)

	// JobQueueDepth is a gauge for the current number of pending gap jobs.
	// No component in this module sets it, so it stays at 0.
	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "txindex_job_queue_depth",
			Help: "Current number of pending gap-fill jobs",
		},
	)

	// RateLimiterWaitSeconds tracks how long a caller waited for a token
	// or a concurrency slot before an upstream call was allowed to proceed.
	RateLimiterWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "txindex_rate_limiter_wait_seconds",
			Help:    "Time spent waiting for a rate limiter token or slot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ResolverBinarySearchCalls tracks getCode calls spent per contract
	// creation-block resolution.
	ResolverBinarySearchCalls = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "txindex_resolver_binary_search_calls",
			Help:    "Number of getCode calls per creation-block resolution",
			Buckets: prometheus.LinearBuckets(1, 2, 15),
		},
	)

	// UpstreamRequestsTotal tracks calls to NodeRPC/Explorer by outcome.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txindex_upstream_requests_total",
			Help: "Total number of upstream adapter requests",
		},
		[]string{"adapter", "method", "outcome"},
	)
)
