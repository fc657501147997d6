// Package metrics exports service metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "briefly"

// Exporter owns a registry and the collectors the service reports to.
// A nil *Exporter is valid and records nothing.
type Exporter struct {
	registry *prometheus.Registry

	summarizeRequests *prometheus.CounterVec
	summarizeLatency  *prometheus.HistogramVec
	cacheOps          *prometheus.CounterVec
	externalCalls     *prometheus.CounterVec
	externalLatency   *prometheus.HistogramVec
	persistenceFaults *prometheus.CounterVec
	creditsDebited    prometheus.Counter
	inflightShared    prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64

	// RuntimeCollectors adds Go runtime and process collectors.
	RuntimeCollectors bool
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets:    []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		RuntimeCollectors: true,
	}
}

// New creates an exporter and registers all collectors.
func New(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.summarizeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summarize",
			Name:      "requests_total",
			Help:      "Summarization requests by style and outcome",
		},
		[]string{"style", "outcome"},
	)
	e.summarizeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "summarize",
			Name:      "latency_seconds",
			Help:      "End-to-end summarization latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"cached"},
	)
	e.cacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Summary cache operations by result",
		},
		[]string{"op", "result"},
	)
	e.externalCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "calls_total",
			Help:      "External summarizer calls by provider and result kind",
		},
		[]string{"provider", "kind"},
	)
	e.externalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "latency_seconds",
			Help:      "External summarizer latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"provider"},
	)
	e.persistenceFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summarize",
			Name:      "persistence_faults_total",
			Help:      "Swallowed cache and history write failures",
		},
		[]string{"op"},
	)
	e.creditsDebited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credits",
			Name:      "debited_total",
			Help:      "Credits debited from ordinary users",
		},
	)
	e.inflightShared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summarize",
			Name:      "inflight_shared_total",
			Help:      "Cache misses that joined an in-flight external call",
		},
	)
	e.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
	e.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		e.summarizeRequests,
		e.summarizeLatency,
		e.cacheOps,
		e.externalCalls,
		e.externalLatency,
		e.persistenceFaults,
		e.creditsDebited,
		e.inflightShared,
		e.httpRequests,
		e.httpLatency,
	)
	if cfg.RuntimeCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return e
}

// RecordSummarize records one finished summarization request.
func (e *Exporter) RecordSummarize(style, outcome string, cached bool, latency time.Duration) {
	if e == nil {
		return
	}
	e.summarizeRequests.WithLabelValues(style, outcome).Inc()
	e.summarizeLatency.WithLabelValues(strconv.FormatBool(cached)).Observe(latency.Seconds())
}

// RecordCache records a cache operation ("get"/"put") and its result.
func (e *Exporter) RecordCache(op, result string) {
	if e == nil {
		return
	}
	e.cacheOps.WithLabelValues(op, result).Inc()
}

// RecordExternal records one external summarizer call.
func (e *Exporter) RecordExternal(provider, kind string, latency time.Duration) {
	if e == nil {
		return
	}
	e.externalCalls.WithLabelValues(provider, kind).Inc()
	e.externalLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordPersistenceFault records a swallowed persistence failure.
func (e *Exporter) RecordPersistenceFault(op string) {
	if e == nil {
		return
	}
	e.persistenceFaults.WithLabelValues(op).Inc()
}

// RecordDebit records one debited credit.
func (e *Exporter) RecordDebit() {
	if e == nil {
		return
	}
	e.creditsDebited.Inc()
}

// RecordInflightShared records a miss that reused another caller's call.
func (e *Exporter) RecordInflightShared() {
	if e == nil {
		return
	}
	e.inflightShared.Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Middleware records request counts and latency per matched gin route.
func (e *Exporter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if e == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		e.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		e.httpLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
