// Package metrics holds the Prometheus collectors the server reports to.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flashdeck"

// Deck fetch outcomes.
const (
	FetchOK    = "ok"
	FetchError = "error"
	FetchStale = "stale"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing, which keeps tests and the CLI free of registry setup.
type Metrics struct {
	gatherer prometheus.Gatherer

	deckFetches     *prometheus.CounterVec
	deckFetchTime   prometheus.Histogram
	authEvents      *prometheus.CounterVec
	redirects       prometheus.Counter
	activeSessions  prometheus.Gauge
	liveConnections prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the collectors on reg. Passing nil uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		deckFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deck_fetches_total",
			Help:      "Deck list fetches by outcome",
		}, []string{"result"}),

		deckFetchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deck_fetch_duration_seconds",
			Help:      "Time spent fetching a deck list",
			Buckets:   prometheus.DefBuckets,
		}),

		authEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Auth state notifications by kind",
		}, []string{"kind"}),

		redirects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_redirects_total",
			Help:      "Dashboard views that sent the visitor to sign in",
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_sessions",
			Help:      "Browser sessions currently held in memory",
		}),

		liveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Open dashboard websocket connections",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class",
		}, []string{"route", "method", "code"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) DeckFetch(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.deckFetches.WithLabelValues(result).Inc()
	if result != FetchStale {
		m.deckFetchTime.Observe(took.Seconds())
	}
}

func (m *Metrics) AuthEvent(kind string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) Redirect() {
	if m == nil {
		return
	}
	m.redirects.Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) LiveOpened() {
	if m == nil {
		return
	}
	m.liveConnections.Inc()
}

func (m *Metrics) LiveClosed() {
	if m == nil {
		return
	}
	m.liveConnections.Dec()
}

func (m *Metrics) HTTPRequest(route, method, code string, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, code).Inc()
	m.httpDuration.WithLabelValues(route).Observe(took.Seconds())
}
