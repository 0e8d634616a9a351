package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicore",
		Subsystem: "analytics_cache",
		Name:      "hits_total",
		Help:      "Analytics responses served from cache.",
	}, []string{"domain"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicore",
		Subsystem: "analytics_cache",
		Name:      "misses_total",
		Help:      "Analytics responses computed because the cache had no entry.",
	}, []string{"domain"})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clinicore",
		Subsystem: "analytics_cache",
		Name:      "errors_total",
		Help:      "Cache backend failures, by operation.",
	}, []string{"op"})
)
