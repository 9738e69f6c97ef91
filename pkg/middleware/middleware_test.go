package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"flashdeck/pkg/metrics"
	"flashdeck/pkg/models"
)

type staticAuth struct {
	user *models.User
}

func (a staticAuth) IsAuthenticated(*http.Request) *models.User {
	return a.user
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	if u := UserFrom(r.Context()); u != nil {
		io.WriteString(w, u.ID)
		return
	}
	io.WriteString(w, "nobody")
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc.def", "abc.def"},
		{"bearer   abc ", "abc"},
		{"Basic dXNlcg==", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := BearerToken(r); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	denied := RequireAuth(staticAuth{})(http.HandlerFunc(echoUser))

	rec := httptest.NewRecorder()
	denied.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/decks", nil))
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(rec.Header().Get("Location"), "/auth?error=") {
		t.Fatalf("page request: %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/decks", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("api request: %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["code"] != "NOT_AUTHENTICATED" {
		t.Fatalf("api body = %v (%v)", body, err)
	}

	allowed := RequireAuth(staticAuth{user: &models.User{ID: "u1"}})(http.HandlerFunc(echoUser))
	rec = httptest.NewRecorder()
	allowed.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/decks", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "u1" {
		t.Fatalf("allowed: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequireAuthAPI(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireAuthAPI(staticAuth{})(http.HandlerFunc(echoUser)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("denied: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	RequireAuthAPI(staticAuth{user: &models.User{ID: "u2"}})(http.HandlerFunc(echoUser)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
	if rec.Body.String() != "u2" {
		t.Fatalf("allowed body = %q", rec.Body.String())
	}
}

func TestMetricsLabelsByRoute(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Use(Tracing())
	r.Get("/decks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})

	for _, path := range []string{"/decks/1", "/decks/2", "/ok", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()

	for _, want := range []string{
		`flashdeck_http_requests_total{code="4xx",method="GET",route="/decks/{id}"} 2`,
		`flashdeck_http_requests_total{code="2xx",method="GET",route="/ok"} 1`,
		`flashdeck_http_requests_total{code="4xx",method="GET",route="unmatched"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{0: "2xx", 200: "2xx", 303: "3xx", 404: "4xx", 502: "5xx"}
	for status, want := range tests {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", status, got, want)
		}
	}
}
