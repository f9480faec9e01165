// Package elastic implements the search backend on Elasticsearch: request
// rendering, hit decoding, index creation and bulk loading.
package elastic

import (
	"context"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
	"github.com/ricesearch/cisi-search/internal/resilience"
)

const (
	// DefaultIndex is the index the CISI documents live in.
	DefaultIndex = "cisi_data_p"

	// DefaultAddress is the default Elasticsearch endpoint.
	DefaultAddress = "http://localhost:9200"

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 10 * time.Second
)

// ClientConfig holds configuration for the Elasticsearch client.
type ClientConfig struct {
	Addresses []string

	// APIKey takes precedence over Username/Password when set.
	APIKey   string
	Username string
	Password string

	Index string

	// Timeout bounds every request unless the caller's context is shorter.
	Timeout time.Duration

	// BM25 parameters used when the index is created.
	BM25K1 float64
	BM25B  float64
}

// DefaultClientConfig returns sensible defaults for local development.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Addresses: []string{DefaultAddress},
		Index:     DefaultIndex,
		Timeout:   DefaultTimeout,
		BM25K1:    1.2,
		BM25B:     0.3,
	}
}

// ConfigFrom derives the client config from application config.
func ConfigFrom(cfg *config.Config) ClientConfig {
	return ClientConfig{
		Addresses: cfg.ElasticAddresses(),
		APIKey:    cfg.Elastic.APIKey,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
		Index:     cfg.Elastic.Index,
		Timeout:   cfg.Elastic.Timeout,
		BM25K1:    cfg.Elastic.BM25K1,
		BM25B:     cfg.Elastic.BM25B,
	}
}

// LatencyRecorder observes backend calls.
type LatencyRecorder interface {
	RecordBackendCall(operation string, latency time.Duration, err error)
}

// Option customises a Client.
type Option func(*Client)

// WithExecutor runs every call through the retry and breaker policy.
func WithExecutor(exec *resilience.Executor) Option {
	return func(c *Client) { c.exec = exec }
}

// WithRecorder reports call latencies to r.
func WithRecorder(r LatencyRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// Client talks to one Elasticsearch index. It is safe for concurrent use.
type Client struct {
	es     *elasticsearch.Client
	config ClientConfig
	log    *logger.Logger

	exec     *resilience.Executor
	recorder LatencyRecorder
}

// NewClient creates a client. It does not contact the cluster; call Ping to
// verify connectivity.
func NewClient(cfg ClientConfig, log *logger.Logger, opts ...Option) (*Client, error) {
	def := DefaultClientConfig()
	if len(cfg.Addresses) == 0 {
		cfg.Addresses = def.Addresses
	}
	if cfg.Index == "" {
		cfg.Index = def.Index
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = logger.Discard()
	}

	c := &Client{
		config: cfg,
		log:    log.WithComponent("elastic"),
	}
	for _, opt := range opts {
		opt(c)
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		APIKey:    cfg.APIKey,
		Username:  cfg.Username,
		Password:  cfg.Password,
		// retries are handled by the resilience executor
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	c.es = es

	return c, nil
}

// Index returns the index name the client searches.
func (c *Client) Index() string {
	return c.config.Index
}

// Ping verifies the cluster is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", func(ctx context.Context) error {
		res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return responseError(res)
		}
		return nil
	})
}

// call applies the request timeout, the resilience policy and latency
// recording around fn.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()

	attempt := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
		return fn(ctx)
	}

	var err error
	if c.exec != nil {
		err = c.exec.Execute(ctx, "elastic."+op, attempt, classify)
	} else {
		err = attempt(ctx)
	}

	if c.recorder != nil {
		c.recorder.RecordBackendCall(op, time.Since(start), err)
	}
	return err
}
