// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts cache reads served without an upstream fetch.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypulse_cache_hits_total",
		Help: "Cache reads served from a fresh entry.",
	}, []string{"source"})

	// CacheMisses counts reads that found no usable entry.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypulse_cache_misses_total",
		Help: "Cache reads that required an upstream refresh.",
	}, []string{"source"})

	// CacheRefreshes counts completed upstream fetches.
	CacheRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypulse_cache_refreshes_total",
		Help: "Upstream refreshes performed, by source and outcome.",
	}, []string{"source", "outcome"})

	// CacheCoalesced counts readers that joined an in-flight refresh
	// instead of starting their own.
	CacheCoalesced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypulse_cache_coalesced_total",
		Help: "Readers that shared another caller's in-flight refresh.",
	}, []string{"source"})

	// AdapterFailures counts source adapter errors.
	AdapterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypulse_adapter_failures_total",
		Help: "Source adapter fetch failures.",
	}, []string{"source"})

	// FallbackResponses counts dispatcher escalations to the generative
	// fallback, by reason.
	FallbackResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citypulse_fallback_responses_total",
		Help: "Requests answered by the generative fallback.",
	}, []string{"reason"})
)
