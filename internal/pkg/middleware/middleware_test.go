package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ricesearch/cisi-search/internal/pkg/logger"
)

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{"any origin", nil, "http://ui.local", "GET", false, http.StatusOK, "*"},
		{"wildcard entry", []string{"*"}, "http://ui.local", "GET", false, http.StatusOK, "*"},
		{"listed origin", []string{"http://ui.local"}, "http://ui.local", "GET", false, http.StatusOK, "http://ui.local"},
		{"unlisted origin", []string{"http://ui.local"}, "http://evil.local", "GET", false, http.StatusOK, ""},
		{"no origin header", []string{"http://ui.local"}, "", "GET", false, http.StatusOK, ""},
		{"preflight", nil, "http://ui.local", "OPTIONS", true, http.StatusNoContent, "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/search", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "GET")
			}
			rec := httptest.NewRecorder()

			CORS(tt.origins)(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "debug", "json")

	var seenID string
	handler := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = r.Header.Get(RequestIDHeader)
		log.WithContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates id", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/search?q=x", nil))

		id := rec.Header().Get(RequestIDHeader)
		if len(id) != 36 {
			t.Fatalf("request id = %q, want a uuid", id)
		}
		if !strings.Contains(buf.String(), `"request_id":"`+id+`"`) {
			t.Errorf("log lines should carry the request id: %s", buf.String())
		}
		if !strings.Contains(buf.String(), `"status":418`) {
			t.Errorf("access log should record the status: %s", buf.String())
		}
	})

	t.Run("masks credentials", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest("GET", "/search?q=x", nil)
		req.Header.Set("Authorization", "ApiKey c2VjcmV0")
		req.Header.Set("Accept", "application/json")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		out := buf.String()
		if strings.Contains(out, "c2VjcmV0") {
			t.Errorf("credential leaked into the access log: %s", out)
		}
		if !strings.Contains(out, `"Authorization":["[REDACTED]"]`) {
			t.Errorf("masked header missing: %s", out)
		}
		if !strings.Contains(out, `"Accept":["application/json"]`) {
			t.Errorf("plain header missing: %s", out)
		}
	})

	t.Run("keeps caller id", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("request id = %q, want abc-123", got)
		}
		if seenID != "abc-123" {
			t.Errorf("handler saw %q", seenID)
		}
	})
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info", "text")

	handler := Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/document/1", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(buf.String(), "handler panic") {
		t.Errorf("panic should be logged: %s", buf.String())
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if got := strings.Join(order, ","); got != "outer,inner,handler" {
		t.Errorf("order = %s, want outer,inner,handler", got)
	}
}
