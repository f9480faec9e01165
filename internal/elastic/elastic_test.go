package elastic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricesearch/cisi-search/internal/corpus"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/query"
	"github.com/ricesearch/cisi-search/internal/resilience"
)

func formulate(t *testing.T, text string, opts query.Options) query.SearchRequest {
	t.Helper()
	req, err := query.NewFormulator(nil).FromText(text, opts)
	require.NoError(t, err)
	return req
}

func asJSON(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestBuildBodyRelevance(t *testing.T) {
	req := formulate(t, "Information retrieval systems", query.Options{
		Mode:    query.ModeRelevance,
		Profile: query.ProfileBenchmark,
		Fuzzy:   true,
		Limit:   100,
	})

	want := `{
		"size": 100,
		"query": {
			"multi_match": {
				"query": "information retrieval systems",
				"fields": ["title^5", "text^2", "author"],
				"type": "best_fields",
				"fuzziness": "AUTO"
			}
		}
	}`
	got, err := json.Marshal(BuildBody(req))
	require.NoError(t, err)
	assert.JSONEq(t, want, string(got))
}

func TestBuildBodyBothWithHighlight(t *testing.T) {
	req := formulate(t, "library automation", query.Options{
		Mode:      query.ModeBoth,
		Profile:   query.ProfileDefault,
		Fuzzy:     true,
		Limit:     5,
		Highlight: true,
	})

	want := `{
		"size": 5,
		"query": {
			"bool": {
				"should": [
					{"multi_match": {
						"query": "library automation",
						"fields": ["title^2", "text", "author"],
						"type": "best_fields",
						"fuzziness": "AUTO"
					}},
					{"multi_match": {
						"query": "library automation",
						"fields": ["title^2", "text"],
						"type": "phrase_prefix"
					}}
				]
			}
		},
		"highlight": {
			"pre_tags": ["<mark>"],
			"post_tags": ["</mark>"],
			"fields": {"title": {}, "text": {}}
		}
	}`
	got, err := json.Marshal(BuildBody(req))
	require.NoError(t, err)
	assert.JSONEq(t, want, string(got))
}

func TestBuildBodyPrefix(t *testing.T) {
	req, err := query.NewFormulator(nil).Build(query.Tokenize("the inform"), query.Options{
		Mode:      query.ModePrefix,
		Profile:   query.ProfileDefault,
		Limit:     5,
		Highlight: true,
	})
	require.NoError(t, err)

	body := asJSON(t, BuildBody(req))
	should := body["query"].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	require.Len(t, should, 2)

	title := should[0].(map[string]any)["match_phrase_prefix"].(map[string]any)["title"].(map[string]any)
	assert.Equal(t, "the inform", title["query"])
	assert.Equal(t, 2.0, title["boost"])

	text := should[1].(map[string]any)["match_phrase_prefix"].(map[string]any)["text"].(map[string]any)
	assert.NotContains(t, text, "boost")

	fields := body["highlight"].(map[string]any)["fields"].(map[string]any)
	assert.Equal(t, map[string]any{"fragment_size": 50.0, "number_of_fragments": 1.0}, fields["title"])
	assert.Equal(t, map[string]any{"fragment_size": 80.0, "number_of_fragments": 1.0}, fields["text"])
}

func TestIndexBody(t *testing.T) {
	body := asJSON(t, IndexBody(1.2, 0.3))
	sim := body["settings"].(map[string]any)["similarity"].(map[string]any)[similarityName].(map[string]any)
	assert.Equal(t, "BM25", sim["type"])
	assert.Equal(t, 1.2, sim["k1"])
	assert.Equal(t, 0.3, sim["b"])

	props := body["mappings"].(map[string]any)["properties"].(map[string]any)
	for _, field := range []string{"title", "author", "text", "normalized_text"} {
		assert.Equal(t, similarityName, props[field].(map[string]any)["similarity"], field)
	}
}

// fakeCluster is a minimal Elasticsearch stand-in.
type fakeCluster struct {
	mu          sync.Mutex
	exists      bool
	created     map[string]any
	deleted     int
	bulkDocs    map[string]map[string]any
	searchBody  map[string]any
	searchFails atomic.Int32
	searches    atomic.Int32
}

func newFakeCluster(t *testing.T) (*fakeCluster, *httptest.Server) {
	fc := &fakeCluster{bulkDocs: map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(srv.Close)
	return fc, srv
}

func (fc *fakeCluster) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	fc.mu.Lock()
	defer fc.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodHead && path == "/":
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodHead && path == "/cisi_test":
		if fc.exists {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}

	case r.Method == http.MethodDelete && path == "/cisi_test":
		fc.deleted++
		fc.exists = false
		fmt.Fprint(w, `{"acknowledged":true}`)

	case r.Method == http.MethodPut && path == "/cisi_test":
		_ = json.NewDecoder(r.Body).Decode(&fc.created)
		fc.exists = true
		fmt.Fprint(w, `{"acknowledged":true,"index":"cisi_test"}`)

	case strings.HasSuffix(path, "/_search"):
		fc.searches.Add(1)
		if fc.searchFails.Load() > 0 {
			fc.searchFails.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"type":"unavailable_shards_exception","reason":"primary shard is not active"},"status":503}`)
			return
		}
		fc.searchBody = nil
		_ = json.NewDecoder(r.Body).Decode(&fc.searchBody)
		fmt.Fprint(w, `{
			"took": 3,
			"hits": {
				"total": {"value": 3, "relation": "eq"},
				"hits": [
					{"_id": "2", "_score": 9.1, "_source": {"doc_id": 2, "title": "Library automation", "author": "Smith, J.", "text": "Automated libraries"},
					 "highlight": {"title": ["<mark>Library</mark> automation"]}},
					{"_id": "1", "_score": 3.0, "_source": {"title": "Retrieval", "text": "No stored id"}},
					{"_id": "abc", "_score": 1.0, "_source": {"title": "Broken"}}
				]
			}
		}`)

	case r.Method == http.MethodGet && path == "/cisi_test/_doc/7":
		fmt.Fprint(w, `{"_index":"cisi_test","_id":"7","found":true,"_source":{"doc_id":7,"title":"Seven","author":"A","text":"Body"}}`)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/cisi_test/_doc/"):
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"_index":"cisi_test","_id":"x","found":false}`)

	case strings.HasSuffix(path, "/_bulk"):
		fc.handleBulk(w, r.Body)

	case strings.HasSuffix(path, "/_count"):
		fmt.Fprintf(w, `{"count":%d}`, len(fc.bulkDocs))

	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"type":"unexpected","reason":"%s %s"}}`, r.Method, path)
	}
}

func (fc *fakeCluster) handleBulk(w http.ResponseWriter, body io.Reader) {
	type item struct {
		Index map[string]any `json:"index"`
	}
	var items []item

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var meta struct {
			Index struct {
				ID string `json:"_id"`
			} `json:"index"`
		}
		if err := json.Unmarshal(sc.Bytes(), &meta); err != nil || !sc.Scan() {
			break
		}
		var doc map[string]any
		_ = json.Unmarshal(sc.Bytes(), &doc)

		if doc["title"] == "reject me" {
			items = append(items, item{Index: map[string]any{
				"_id": meta.Index.ID, "status": 400,
				"error": map[string]any{"type": "mapper_parsing_exception", "reason": "bad document"},
			}})
			continue
		}
		fc.bulkDocs[meta.Index.ID] = doc
		items = append(items, item{Index: map[string]any{"_id": meta.Index.ID, "status": 201, "result": "created"}})
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"took": 1, "errors": false, "items": items})
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Addresses: []string{srv.URL},
		Index:     "cisi_test",
		Timeout:   2 * time.Second,
		BM25K1:    1.2,
		BM25B:     0.3,
	}, nil, opts...)
	require.NoError(t, err)
	return c
}

func TestClientSearch(t *testing.T) {
	fc, srv := newFakeCluster(t)
	c := newTestClient(t, srv)

	req := formulate(t, "library automation", query.Options{Mode: query.ModeBoth, Limit: 5, Highlight: true})
	resp, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1}, resp.DocIDs(), "doc_id from source, _id fallback, non numeric skipped")
	assert.Equal(t, 3, resp.Total)
	assert.EqualValues(t, 3, resp.TookMs)
	assert.Equal(t, "Smith, J.", resp.Hits[0].Author)
	assert.Equal(t, 9.1, resp.Hits[0].Score)
	assert.Equal(t, []string{"<mark>Library</mark> automation"}, resp.Hits[0].Highlights["title"])

	assert.Equal(t, 5.0, fc.searchBody["size"])
}

func TestClientSearchRetriesUnavailable(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.searchFails.Store(1)

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	}, nil)
	rec := &latencyRecorder{}
	c := newTestClient(t, srv, WithExecutor(exec), WithRecorder(rec))

	resp, err := c.Search(context.Background(), formulate(t, "retrieval", query.Options{Mode: query.ModeRelevance, Limit: 10}))
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)
	assert.EqualValues(t, 2, fc.searches.Load())
	assert.Equal(t, []string{"search"}, rec.ops())
}

func TestClientSearchFailureIsBackendError(t *testing.T) {
	fc, srv := newFakeCluster(t)
	fc.searchFails.Store(5)
	c := newTestClient(t, srv)

	_, err := c.Search(context.Background(), formulate(t, "retrieval", query.Options{Mode: query.ModeRelevance, Limit: 10}))
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeBackend, appErr.Code)
	assert.NotContains(t, appErr.Message, "shard")

	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusServiceUnavailable, re.Status)
	assert.Equal(t, "unavailable_shards_exception", re.Type)
}

func TestClientDocument(t *testing.T) {
	_, srv := newFakeCluster(t)
	c := newTestClient(t, srv)

	doc, err := c.Document(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, corpus.Document{ID: 7, Title: "Seven", Author: "A", Text: "Body"}, *doc)

	_, err = c.Document(context.Background(), 99)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestClientPing(t *testing.T) {
	_, srv := newFakeCluster(t)
	require.NoError(t, newTestClient(t, srv).Ping(context.Background()))

	srv.Close()
	assert.Error(t, newTestClient(t, srv).Ping(context.Background()))
}

func TestClientCreateIndex(t *testing.T) {
	fc, srv := newFakeCluster(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	require.NoError(t, c.CreateIndex(ctx, false))
	require.NotNil(t, fc.created)
	assert.Contains(t, fc.created, "mappings")

	fc.created = nil
	require.NoError(t, c.CreateIndex(ctx, false))
	assert.Nil(t, fc.created, "existing index is kept")
	assert.Zero(t, fc.deleted)

	require.NoError(t, c.CreateIndex(ctx, true))
	assert.Equal(t, 1, fc.deleted)
	assert.NotNil(t, fc.created)
}

func TestClientIndexDocuments(t *testing.T) {
	fc, srv := newFakeCluster(t)
	c := newTestClient(t, srv)

	docs := map[int]corpus.Document{
		1: {ID: 1, Title: "First", Text: "Information retrieval", NormalizedText: "information retrieval"},
		2: {ID: 2, Title: "Second", Author: "Doe", Text: "Libraries"},
		3: {ID: 3, Title: "reject me"},
	}

	var acked atomic.Int32
	stats, err := c.IndexDocuments(context.Background(), docs, func() { acked.Add(1) })
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, "bad document", stats.Failures[3])
	assert.EqualValues(t, 2, acked.Load())

	fc.mu.Lock()
	stored := fc.bulkDocs["1"]
	fc.mu.Unlock()
	assert.Equal(t, 1.0, stored["doc_id"])
	assert.Equal(t, "information retrieval", stored["normalized_text"])

	n, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"server error", &ResponseError{Status: 500}, true},
		{"overloaded", &ResponseError{Status: 429}, true},
		{"bad request", &ResponseError{Status: 400}, false},
		{"not found", apperrors.NotFoundError("Document"), false},
		{"canceled", context.Canceled, false},
		{"transport", fmt.Errorf("dial: %w", io.ErrUnexpectedEOF), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, classify(tt.err).Retryable)
		})
	}
}

type latencyRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *latencyRecorder) RecordBackendCall(op string, latency time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op)
}

func (r *latencyRecorder) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}
