package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notion_cache_hits_total",
			Help: "Total number of post cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notion_cache_misses_total",
			Help: "Total number of post cache misses",
		},
	)

	// CacheSize tracks bytes written to the cache by layer
	CacheSize = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notion_cache_size_bytes",
			Help: "Total bytes written to the post cache",
		},
		[]string{"layer"}, // "redis"
	)

	// ConditionalRequests tracks revalidations answered with 304
	ConditionalRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notion_cache_304_responses_total",
			Help: "Total number of 304 Not Modified responses served from the post cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notion_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
