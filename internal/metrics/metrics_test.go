package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddleware(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /document/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := HTTPMiddleware(m, mux)

	for _, path := range []string{"/document/1", "/document/2", "/nowhere"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/document/{id}", "404")); got != 2 {
		t.Errorf("document requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsInFlight); got != 0 {
		t.Errorf("in-flight = %v, want 0", got)
	}
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"GET /search", "/search"},
		{"GET /document/{id}", "/document/{id}"},
		{"/healthz", "/healthz"},
		{"", "unmatched"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := routeLabel(tt.pattern); got != tt.want {
				t.Errorf("routeLabel(%q) = %q, want %q", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "200"},
		{201, "2xx"},
		{404, "404"},
		{418, "4xx"},
		{502, "5xx"},
		{999, "999"},
	}

	for _, tt := range tests {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordQuery(20*time.Millisecond, false)
	m.RecordQuery(5*time.Second, true)
	m.RecordSkipped(36)
	m.RecordBackendCall("search", time.Millisecond, nil)
	m.RecordBackendCall("search", time.Millisecond, errors.New("boom"))
	m.RecordBusPublish("evaluation.run.completed", time.Millisecond, nil)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"evaluated", testutil.ToFloat64(m.QueriesEvaluated), 2},
		{"degraded", testutil.ToFloat64(m.QueriesDegraded), 1},
		{"skipped", testutil.ToFloat64(m.QueriesSkipped), 36},
		{"backend errors", testutil.ToFloat64(m.BackendErrors.WithLabelValues("search")), 1},
		{"bus published", testutil.ToFloat64(m.BusEventsPublished.WithLabelValues("evaluation.run.completed")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordSkipped(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "cisi_evaluation_queries_skipped_total 3") {
		t.Errorf("metrics output missing skipped counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing runtime collector")
	}
}
