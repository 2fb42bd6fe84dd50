// Package metrics exposes Prometheus instrumentation for imports, journey
// searches and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns every metric and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	Imports        prometheus.Counter
	ImportFailures prometheus.Counter

	Searches       prometheus.Counter
	NoRouteResults prometheus.Counter
	SearchDuration prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		Imports: factory.NewCounter(prometheus.CounterOpts{
			Name: "goride_feed_imports_total",
			Help: "Completed schedule feed imports.",
		}),
		ImportFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "goride_feed_import_failures_total",
			Help: "Feed imports that were rejected or rolled back.",
		}),
		Searches: factory.NewCounter(prometheus.CounterOpts{
			Name: "goride_journey_searches_total",
			Help: "Journey searches started.",
		}),
		NoRouteResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "goride_journey_no_route_total",
			Help: "Journey searches that ended with an explained empty result.",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "goride_journey_search_duration_seconds",
			Help:    "Wall-clock duration of journey searches.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "goride_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
	}
}

// Registry returns the backing registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
