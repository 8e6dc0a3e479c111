// Package metrics exposes Prometheus collectors for the fetch executor and the
// query cache binding.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	MetricRequestsTotal          = "requests_total"
	MetricRequestDurationSeconds = "request_duration_seconds"
	MetricCacheLookupsTotal      = "cache_lookups_total"
	MetricInvalidationsTotal     = "invalidations_total"
	MetricMutationsTotal         = "mutations_total"
)

// Cache lookup outcomes.
const (
	LookupHit      = "hit"
	LookupMiss     = "miss"
	LookupStale    = "stale"
	LookupDisabled = "disabled"
)

// Recorder receives observations from the executor and the cache binding.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveRequest(resource, method string, status int, kind string, d time.Duration)
	ObserveLookup(resource, outcome string)
	ObserveInvalidation(resource, source string)
	ObserveMutation(resource, op string, ok bool)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveRequest(string, string, int, string, time.Duration) {}
func (Nop) ObserveLookup(string, string)                              {}
func (Nop) ObserveInvalidation(string, string)                        {}
func (Nop) ObserveMutation(string, string, bool)                      {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Prometheus records observations into a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	lookupsTotal    *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
	mutationsTotal  *prometheus.CounterVec
}

// NewPrometheus creates collectors under namespace (e.g. "resource_client")
// and registers them on a fresh registry.
func NewPrometheus(namespace string) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRequestsTotal,
			Help:      "HTTP requests issued to the backend by resource, method, status and failure kind.",
		}, []string{"resource", "method", "status", "kind"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricRequestDurationSeconds,
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "method"}),
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCacheLookupsTotal,
			Help:      "Query cache lookups by outcome.",
		}, []string{"resource", "outcome"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricInvalidationsTotal,
			Help:      "Prefix invalidations by origin (local or remote).",
		}, []string{"resource", "source"}),
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricMutationsTotal,
			Help:      "Mutations by operation and outcome.",
		}, []string{"resource", "op", "outcome"}),
	}

	p.registry.MustRegister(
		p.requestsTotal,
		p.requestDuration,
		p.lookupsTotal,
		p.invalidations,
		p.mutationsTotal,
	)
	return p
}

// Registry returns the registry holding the collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) ObserveRequest(resource, method string, status int, kind string, d time.Duration) {
	p.requestsTotal.WithLabelValues(resource, method, strconv.Itoa(status), kind).Inc()
	p.requestDuration.WithLabelValues(resource, method).Observe(d.Seconds())
}

func (p *Prometheus) ObserveLookup(resource, outcome string) {
	p.lookupsTotal.WithLabelValues(resource, outcome).Inc()
}

func (p *Prometheus) ObserveInvalidation(resource, source string) {
	p.invalidations.WithLabelValues(resource, source).Inc()
}

func (p *Prometheus) ObserveMutation(resource, op string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	p.mutationsTotal.WithLabelValues(resource, op, outcome).Inc()
}
