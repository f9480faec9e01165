package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ricesearch/cisi-search/internal/bus"
	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/corpus"
	"github.com/ricesearch/cisi-search/internal/evaluation"
	"github.com/ricesearch/cisi-search/internal/metrics"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
	"github.com/ricesearch/cisi-search/internal/query"
	"github.com/ricesearch/cisi-search/internal/search"
)

type stubBackend struct {
	pingErr error
}

func (b *stubBackend) Search(ctx context.Context, req query.SearchRequest) (*search.Response, error) {
	return &search.Response{Hits: []search.Hit{
		{DocID: 2, Score: 9.1, Title: "Library automation"},
		{DocID: 1, Score: 3.0, Title: "Indexing theory"},
	}}, nil
}

func (b *stubBackend) Document(ctx context.Context, id int) (*corpus.Document, error) {
	if id != 2 {
		return nil, apperrors.NotFoundError("Document")
	}
	return &corpus.Document{ID: 2, Title: "Library automation"}, nil
}

func (b *stubBackend) Ping(ctx context.Context) error {
	return b.pingErr
}

func testCollection() *corpus.Collection {
	judgments := corpus.Judgments{}
	judgments.Add(1, 2)
	return &corpus.Collection{
		Documents: map[int]corpus.Document{
			1: {ID: 1, Title: "Indexing theory"},
			2: {ID: 2, Title: "Library automation"},
		},
		Queries: map[int]corpus.Query{
			1: {ID: 1, Text: "library automation systems"},
			2: {ID: 2, Text: "unjudged query"},
		},
		Judgments: judgments,
	}
}

func newTestServer(t *testing.T, cfg Config, backend search.Backend) *Server {
	t.Helper()
	log := logger.Discard()
	m := metrics.New()
	b := bus.NewMemoryBus(log)
	t.Cleanup(func() { b.Close() })

	s := NewWithDeps(cfg, config.Default(), log, Deps{
		Backend: backend,
		Source:  evaluation.StaticCollection(testCollection()),
		Bus:     b,
		Metrics: m,
	})
	return s
}

func get(t *testing.T, h http.Handler, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.0.2.10:5000"
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, DefaultConfig(), &stubBackend{})
	h := s.Handler()

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"liveness", "/healthz", http.StatusOK, `"ok"`},
		{"readiness", "/readyz", http.StatusOK, `"healthy"`},
		{"search", "/search?q=library", http.StatusOK, `"doc_id":2`},
		{"api search", "/api/search?q=library", http.StatusOK, `"doc_id":2`},
		{"search without q", "/search", http.StatusBadRequest, "'q'"},
		{"evaluate", "/evaluate?q=library", http.StatusOK, `"results"`},
		{"autocomplete", "/autocomplete?q=lib", http.StatusOK, `"suggestions"`},
		{"document", "/document/2", http.StatusOK, "Library automation"},
		{"unknown document", "/document/99", http.StatusNotFound, "not found"},
		{"evaluate all", "/evaluate_all", http.StatusOK, `"skipped_query_ids":[2]`},
		{"metrics", "/metrics", http.StatusOK, "go_goroutines"},
		{"unknown route", "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %s", rec.Body.String(), tt.wantBody)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("every response should carry a request id")
			}
		})
	}
}

func TestServer_EvaluateAllReport(t *testing.T) {
	s := newTestServer(t, DefaultConfig(), &stubBackend{})

	rec := get(t, s.Handler(), "/evaluate_all?size=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var report evaluation.CorpusReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Evaluated != 1 || report.K != 2 {
		t.Errorf("evaluated = %d, k = %d, want 1 and 2", report.Evaluated, report.K)
	}
	if report.MeanPrecisionAtK != 0.5 || report.MRR != 1 {
		t.Errorf("P@2 = %v, MRR = %v, want 0.5 and 1", report.MeanPrecisionAtK, report.MRR)
	}

	body := get(t, s.Handler(), "/metrics").Body.String()
	for _, want := range []string{
		`cisi_http_requests_total{method="GET",path="/evaluate_all",status="200"} 1`,
		"cisi_evaluation_queries_total 1",
		"cisi_evaluation_queries_skipped_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServer_CORS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CORSOrigins = []string{"http://ui.local"}
	s := newTestServer(t, cfg, &stubBackend{})

	rec := get(t, s.Handler(), "/search?q=x", "Origin", "http://ui.local")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://ui.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestServer_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 1
	s := newTestServer(t, cfg, &stubBackend{})
	defer s.rateLimiter.Stop()

	if rec := get(t, s.Handler(), "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := get(t, s.Handler(), "/healthz"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	s := NewWithDeps(DefaultConfig(), config.Default(), nil, Deps{
		Backend: &stubBackend{},
		Source:  evaluation.StaticCollection(testCollection()),
	})

	if rec := get(t, s.Handler(), "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a metrics registry", rec.Code)
	}
	if rec := get(t, s.Handler(), "/evaluate_all"); rec.Code != http.StatusOK {
		t.Errorf("evaluate_all status = %d without bus and metrics", rec.Code)
	}
}

func TestServer_StartFailsWhenBackendUnreachable(t *testing.T) {
	s := newTestServer(t, DefaultConfig(), &stubBackend{pingErr: errors.New("connection refused")})

	err := s.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("Start() error = %v, want unreachable backend", err)
	}
	if s.Health() {
		t.Error("server should not report started")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on a server that never started = %v", err)
	}
}

func TestConfigFrom(t *testing.T) {
	appCfg := config.Default()
	appCfg.Port = 9000
	appCfg.Security.RateLimit = 50
	appCfg.Security.CORSOrigins = "http://a.local, http://b.local"
	appCfg.Observability.MetricsEnabled = false

	cfg := ConfigFrom(appCfg, "1.2.3")

	if cfg.Port != 9000 || cfg.Version != "1.2.3" || cfg.RateLimit != 50 {
		t.Errorf("ConfigFrom() = %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.local" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.MetricsPath != "" {
		t.Errorf("MetricsPath = %q, want empty when metrics are disabled", cfg.MetricsPath)
	}
}

func TestCachedSource(t *testing.T) {
	calls := 0
	fail := true
	src := cachedSource(func(ctx context.Context) (*corpus.Collection, error) {
		calls++
		if fail {
			return nil, io.ErrUnexpectedEOF
		}
		return testCollection(), nil
	})

	if _, err := src(context.Background()); err == nil {
		t.Fatal("first load should fail")
	}

	fail = false
	first, err := src(context.Background())
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	second, _ := src(context.Background())

	if first != second {
		t.Error("successful load should be cached")
	}
	if calls != 2 {
		t.Errorf("loader called %d times, want 2", calls)
	}
}
