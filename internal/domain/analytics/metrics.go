package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aggregationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinicore_analytics_aggregation_seconds",
		Help:    "Time spent computing an analytics report on a cache miss.",
		Buckets: prometheus.DefBuckets,
	}, []string{"domain"})

	degradedSections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicore_analytics_degraded_sections_total",
		Help: "Optional report sections replaced by their default value.",
	}, []string{"section", "reason"})
)
