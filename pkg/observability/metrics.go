package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes used as the "outcome" label.
const (
	OutcomeOK            = "ok"
	OutcomeInvalid       = "invalid_request"
	OutcomeUpstreamError = "upstream_error"
	OutcomeInternalError = "internal_error"
	OutcomeRateLimited   = "rate_limited"
)

// Cache events used as the "event" label.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStore = "store"
	CacheEvict = "evict"
)

// Metrics groups all Prometheus instruments used by the relay. Each instance
// owns its registry so independent servers never collide.
type Metrics struct {
	registry *prometheus.Registry

	ChatRequests    *prometheus.CounterVec
	CacheEvents     *prometheus.CounterVec
	CacheEntries    prometheus.Gauge
	TrimmedTurns    prometheus.Counter
	UpstreamLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		CacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Response cache events by type.",
		}, []string{"event"}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries currently held by the response cache.",
		}),
		TrimmedTurns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trimmed_turns_total",
			Help:      "Conversation turns dropped by history truncation.",
		}),
		UpstreamLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_ms",
			Help:      "Latency of upstream completion calls in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}),
	}
}

func (m *Metrics) ObserveUpstreamLatency(d time.Duration) {
	m.UpstreamLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) Request(outcome string) {
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Cache(event string) {
	m.CacheEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
