package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DeckFetch(FetchOK, time.Second)
	m.AuthEvent("SIGNED_IN")
	m.Redirect()
	m.SetSessions(3)
	m.LiveOpened()
	m.LiveClosed()
	m.HTTPRequest("/", "GET", "2xx", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil handler status = %d, want 404", rec.Code)
	}
}

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.DeckFetch(FetchOK, 10*time.Millisecond)
	m.DeckFetch(FetchOK, 10*time.Millisecond)
	m.DeckFetch(FetchStale, 0)
	m.AuthEvent("SIGNED_OUT")
	m.Redirect()
	m.LiveOpened()
	m.LiveOpened()
	m.LiveClosed()
	m.SetSessions(4)

	if got := counterValue(t, m.deckFetches.WithLabelValues(FetchOK)); got != 2 {
		t.Errorf("deck_fetches_total{ok} = %v, want 2", got)
	}
	if got := counterValue(t, m.deckFetches.WithLabelValues(FetchStale)); got != 1 {
		t.Errorf("deck_fetches_total{stale} = %v, want 1", got)
	}
	if got := counterValue(t, m.authEvents.WithLabelValues("SIGNED_OUT")); got != 1 {
		t.Errorf("auth_events_total = %v, want 1", got)
	}
	if got := counterValue(t, m.redirects); got != 1 {
		t.Errorf("dashboard_redirects_total = %v, want 1", got)
	}
	if got := gaugeValue(t, m.liveConnections); got != 1 {
		t.Errorf("live_connections = %v, want 1", got)
	}
	if got := gaugeValue(t, m.activeSessions); got != 4 {
		t.Errorf("browser_sessions = %v, want 4", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(nil)
	m.HTTPRequest("/dashboard", "GET", "2xx", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `flashdeck_http_requests_total{code="2xx",method="GET",route="/dashboard"} 1`) {
		t.Fatalf("metrics output missing request counter:\n%s", body)
	}
}
