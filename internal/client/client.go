// Package client provides an HTTP client for the CISI search API. The client
// satisfies search.Backend, so a deployed server can be benchmarked the same
// way as a local Elasticsearch cluster.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ricesearch/cisi-search/internal/corpus"
	"github.com/ricesearch/cisi-search/internal/evaluation"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/query"
	"github.com/ricesearch/cisi-search/internal/search"
)

// Client is an HTTP client for the search API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures the client.
type Config struct {
	// BaseURL is the base URL of the API server.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive) connections
	// across all hosts. Zero means no limit.
	MaxIdleConns int

	// MaxConnsPerHost limits the total number of connections per host.
	// Zero means no limit.
	MaxConnsPerHost int

	// IdleConnTimeout is the maximum amount of time an idle (keep-alive)
	// connection will remain idle before closing itself.
	IdleConnTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8080",
		Timeout:         30 * time.Second,
		MaxIdleConns:    100,
		MaxConnsPerHost: 100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	// evaluation runs many queries against one host concurrently
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string                      `json:"status"`
	Version    string                      `json:"version,omitempty"`
	Components map[string]search.Component `json:"components,omitempty"`
}

// Health reports the readiness of the server and its search backend. An
// unhealthy server answers 503, which surfaces as an error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/readyz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping checks that the server and its search backend are ready.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

// Search runs a request on the server. Relevance requests go to /evaluate
// and carry their field weights, so the server ranks with the caller's
// profile; /evaluate is always fuzzy. Other modes go to /search and use the
// server's search configuration. The server re-normalizes the query text,
// which is a no-op for formulated requests.
func (c *Client) Search(ctx context.Context, req query.SearchRequest) (*search.Response, error) {
	path := "/search"
	params := url.Values{}
	params.Set("q", req.Text())
	params.Set("size", strconv.Itoa(req.Limit))

	if req.Mode == query.ModeRelevance {
		path = "/evaluate"
		if len(req.Fields) > 0 {
			params.Set("fields", strings.Join(req.Fields.Strings(), ","))
		}
	}

	var body search.SearchResponse
	if err := c.get(ctx, path, params, &body); err != nil {
		return nil, err
	}
	return &search.Response{Hits: body.Results, Total: len(body.Results)}, nil
}

// Autocomplete returns prefix suggestions.
func (c *Client) Autocomplete(ctx context.Context, prefix string, size int) ([]search.Suggestion, error) {
	params := url.Values{}
	params.Set("q", prefix)
	params.Set("size", strconv.Itoa(size))

	var body search.AutocompleteResponse
	if err := c.get(ctx, "/autocomplete", params, &body); err != nil {
		return nil, err
	}
	return body.Suggestions, nil
}

// Document fetches a stored document.
func (c *Client) Document(ctx context.Context, id int) (*corpus.Document, error) {
	var doc corpus.Document
	if err := c.get(ctx, "/document/"+strconv.Itoa(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// EvaluateAll asks the server to evaluate its whole query set. Zero values
// leave the server's configured cutoff and policy in place.
func (c *Client) EvaluateAll(ctx context.Context, k int, policy evaluation.KPolicy) (*evaluation.CorpusReport, error) {
	params := url.Values{}
	if k > 0 {
		params.Set("size", strconv.Itoa(k))
	}
	if policy != "" {
		params.Set("k_policy", string(policy))
	}

	var report evaluation.CorpusReport
	if err := c.get(ctx, "/evaluate_all", params, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// get performs a GET request.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, result)
}

// do executes a request. Error bodies written by the server are turned back
// into application errors so callers can tell not found from failure.
func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apperrors.ErrorResponse
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == "" {
			return apperrors.BackendError(fmt.Sprintf("HTTP %d from %s", resp.StatusCode, req.URL.Path), nil)
		}
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		return apperrors.New(apiErr.Code, msg).WithDetails(apiErr.Details)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

var (
	_ search.Backend = (*Client)(nil)
	_ search.Pinger  = (*Client)(nil)
)
