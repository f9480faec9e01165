// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ricesearch/cisi-search/internal/query"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host   string       `envconfig:"CISI_HOST" yaml:"host"`
	Port   int          `envconfig:"CISI_PORT" yaml:"port"`
	Server ServerConfig `yaml:"server"`

	// Elasticsearch configuration
	Elastic ElasticConfig `yaml:"elastic"`

	// Test collection files
	Corpus CorpusConfig `yaml:"corpus"`

	// Interactive search configuration
	Search SearchConfig `yaml:"search"`

	// Evaluation run configuration
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Retry and circuit breaker settings for backend calls
	Resilience ResilienceConfig `yaml:"resilience"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadTimeout     time.Duration `envconfig:"CISI_READ_TIMEOUT" yaml:"read_timeout"`
	WriteTimeout    time.Duration `envconfig:"CISI_WRITE_TIMEOUT" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `envconfig:"CISI_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

// ElasticConfig holds Elasticsearch connection and index settings.
type ElasticConfig struct {
	Addresses string        `envconfig:"ES_HOST" yaml:"addresses"` // comma separated
	APIKey    string        `envconfig:"ES_API_KEY" yaml:"api_key"`
	Username  string        `envconfig:"ES_USERNAME" yaml:"username"`
	Password  string        `envconfig:"ES_PASSWORD" yaml:"password"`
	Index     string        `envconfig:"CISI_INDEX_NAME" yaml:"index"`
	Timeout   time.Duration `envconfig:"CISI_ES_TIMEOUT" yaml:"timeout"`
	BM25K1    float64       `envconfig:"CISI_BM25_K1" yaml:"bm25_k1"`
	BM25B     float64       `envconfig:"CISI_BM25_B" yaml:"bm25_b"`
}

// CorpusConfig points at the CISI collection files.
type CorpusConfig struct {
	DocumentsPath string `envconfig:"CISI_DOCUMENTS_FILE" yaml:"documents_path"`
	QueriesPath   string `envconfig:"CISI_QUERIES_FILE" yaml:"queries_path"`
	JudgmentsPath string `envconfig:"CISI_RELEVANCE_FILE" yaml:"judgments_path"`
}

// SearchConfig holds settings for interactive search and autocomplete.
type SearchConfig struct {
	DefaultSize int    `envconfig:"CISI_DEFAULT_SIZE" yaml:"default_size"`
	MaxSize     int    `envconfig:"CISI_MAX_SIZE" yaml:"max_size"`
	Profile     string `envconfig:"CISI_SEARCH_PROFILE" yaml:"profile"`
	Fields      string `envconfig:"CISI_SEARCH_FIELDS" yaml:"fields"` // "title^2,text", overrides profile
	Fuzzy       bool   `envconfig:"CISI_SEARCH_FUZZY" yaml:"fuzzy"`
	Highlight   bool   `envconfig:"CISI_SEARCH_HIGHLIGHT" yaml:"highlight"`
}

// EvaluationConfig holds settings for benchmark runs.
type EvaluationConfig struct {
	KPolicy      string        `envconfig:"CISI_EVAL_K_POLICY" yaml:"k_policy"` // fixed | relevant
	K            int           `envconfig:"CISI_EVAL_K" yaml:"k"`
	ResultLimit  int           `envconfig:"CISI_EVAL_RESULT_LIMIT" yaml:"result_limit"`
	Workers      int           `envconfig:"CISI_EVAL_WORKERS" yaml:"workers"`
	RateLimit    float64       `envconfig:"CISI_EVAL_RATE_LIMIT" yaml:"rate_limit"` // queries/sec, 0 = unlimited
	QueryTimeout time.Duration `envconfig:"CISI_EVAL_QUERY_TIMEOUT" yaml:"query_timeout"`
	Profile      string        `envconfig:"CISI_EVAL_PROFILE" yaml:"profile"`
	QueryProfile string        `envconfig:"CISI_EVAL_QUERY_PROFILE" yaml:"query_profile"` // used by GET /evaluate
	Fields       string        `envconfig:"CISI_EVAL_FIELDS" yaml:"fields"`               // overrides both profiles
}

// FieldWeights parses Fields. Validate rejects malformed lists, so a loaded
// config always parses; an empty list means the profile applies.
func (c SearchConfig) FieldWeights() query.FieldWeights {
	fw, _ := query.ParseFieldWeights(c.Fields)
	return fw
}

// FieldWeights parses Fields, see SearchConfig.FieldWeights.
func (c EvaluationConfig) FieldWeights() query.FieldWeights {
	fw, _ := query.ParseFieldWeights(c.Fields)
	return fw
}

// ResilienceConfig holds retry and circuit breaker settings.
type ResilienceConfig struct {
	RetryMaxAttempts    int           `envconfig:"CISI_RETRY_MAX_ATTEMPTS" yaml:"retry_max_attempts"`
	RetryInitialBackoff time.Duration `envconfig:"CISI_RETRY_INITIAL_BACKOFF" yaml:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `envconfig:"CISI_RETRY_MAX_BACKOFF" yaml:"retry_max_backoff"`
	BreakerEnabled      bool          `envconfig:"CISI_BREAKER_ENABLED" yaml:"breaker_enabled"`
	BreakerMinRequests  uint32        `envconfig:"CISI_BREAKER_MIN_REQUESTS" yaml:"breaker_min_requests"`
	BreakerFailureRatio float64       `envconfig:"CISI_BREAKER_FAILURE_RATIO" yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout  time.Duration `envconfig:"CISI_BREAKER_OPEN_TIMEOUT" yaml:"breaker_open_timeout"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"CISI_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"CISI_KAFKA_BROKERS" yaml:"kafka_brokers"`
	NatsURL      string `envconfig:"CISI_NATS_URL" yaml:"nats_url"`
	TopicPrefix  string `envconfig:"CISI_BUS_TOPIC_PREFIX" yaml:"topic_prefix"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"CISI_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"CISI_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit   int    `envconfig:"CISI_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"CISI_CORS_ORIGINS" yaml:"cors_origins"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"CISI_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"CISI_METRICS_PATH" yaml:"metrics_path"`
}

// Load loads configuration from defaults, an optional YAML file, an optional
// .env file and the environment, in increasing order of priority.
func Load(configPath string) (*Config, error) {
	return LoadWithEnvFile(configPath, ".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path. A missing dotenv file
// is not an error.
func LoadWithEnvFile(configPath, envFile string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration holding only defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Server = ServerConfig{
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute, // evaluate_all runs the whole query set
		ShutdownTimeout: 30 * time.Second,
	}

	cfg.Elastic = ElasticConfig{
		Addresses: "http://localhost:9200",
		Index:     "cisi_data_p",
		Timeout:   10 * time.Second,
		BM25K1:    1.2,
		BM25B:     0.3,
	}

	cfg.Corpus = CorpusConfig{
		DocumentsPath: "data/CISI.ALL",
		QueriesPath:   "data/CISI.QRY",
		JudgmentsPath: "data/CISI.REL",
	}

	cfg.Search = SearchConfig{
		DefaultSize: 5,
		MaxSize:     500,
		Profile:     "default",
		Fuzzy:       true,
		Highlight:   true,
	}

	cfg.Evaluation = EvaluationConfig{
		KPolicy:      "fixed",
		K:            10,
		ResultLimit:  100,
		Workers:      4,
		RateLimit:    0,
		QueryTimeout: 10 * time.Second,
		Profile:      "default",
		QueryProfile: "benchmark",
	}

	cfg.Resilience = ResilienceConfig{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		BreakerEnabled:      true,
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  30 * time.Second,
	}

	cfg.Bus = BusConfig{
		Type:        "memory",
		TopicPrefix: "cisi",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Elastic validation
	if len(c.ElasticAddresses()) == 0 {
		errs = append(errs, "elastic addresses must not be empty")
	}
	if c.Elastic.Index == "" {
		errs = append(errs, "elastic index must not be empty")
	}
	if c.Elastic.Timeout <= 0 {
		errs = append(errs, "elastic timeout must be positive")
	}
	if c.Elastic.BM25K1 < 0 {
		errs = append(errs, "bm25_k1 must not be negative")
	}
	if c.Elastic.BM25B < 0 || c.Elastic.BM25B > 1 {
		errs = append(errs, "bm25_b must be between 0 and 1")
	}

	// Search validation
	validProfiles := map[string]bool{"default": true, "benchmark": true}
	if c.Search.DefaultSize < 1 {
		errs = append(errs, "default_size must be positive")
	}
	if c.Search.MaxSize < c.Search.DefaultSize {
		errs = append(errs, "max_size must be at least default_size")
	}
	if !validProfiles[c.Search.Profile] {
		errs = append(errs, fmt.Sprintf("invalid search profile: %s (must be default or benchmark)", c.Search.Profile))
	}
	if _, err := query.ParseFieldWeights(c.Search.Fields); err != nil {
		errs = append(errs, fmt.Sprintf("invalid search fields: %q", c.Search.Fields))
	}

	// Evaluation validation
	validPolicies := map[string]bool{"fixed": true, "relevant": true}
	if !validPolicies[c.Evaluation.KPolicy] {
		errs = append(errs, fmt.Sprintf("invalid k policy: %s (must be fixed or relevant)", c.Evaluation.KPolicy))
	}
	if c.Evaluation.K < 1 {
		errs = append(errs, "evaluation k must be positive")
	}
	if c.Evaluation.ResultLimit < 1 {
		errs = append(errs, "evaluation result_limit must be positive")
	}
	if c.Evaluation.Workers < 1 {
		errs = append(errs, "evaluation workers must be positive")
	}
	if c.Evaluation.RateLimit < 0 {
		errs = append(errs, "evaluation rate_limit must not be negative")
	}
	if c.Evaluation.QueryTimeout <= 0 {
		errs = append(errs, "evaluation query_timeout must be positive")
	}
	if !validProfiles[c.Evaluation.Profile] {
		errs = append(errs, fmt.Sprintf("invalid evaluation profile: %s (must be default or benchmark)", c.Evaluation.Profile))
	}
	if !validProfiles[c.Evaluation.QueryProfile] {
		errs = append(errs, fmt.Sprintf("invalid evaluation query profile: %s (must be default or benchmark)", c.Evaluation.QueryProfile))
	}
	if _, err := query.ParseFieldWeights(c.Evaluation.Fields); err != nil {
		errs = append(errs, fmt.Sprintf("invalid evaluation fields: %q", c.Evaluation.Fields))
	}

	// Resilience validation
	if c.Resilience.RetryMaxAttempts < 1 {
		errs = append(errs, "retry_max_attempts must be positive")
	}
	if c.Resilience.BreakerFailureRatio <= 0 || c.Resilience.BreakerFailureRatio > 1 {
		errs = append(errs, "breaker_failure_ratio must be in (0, 1]")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true, "nats": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory, kafka, or nats)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required when bus type is kafka")
	}
	if c.Bus.Type == "nats" && strings.TrimSpace(c.Bus.NatsURL) == "" {
		errs = append(errs, "nats_url is required when bus type is nats")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ElasticAddresses splits the configured address list.
func (c *Config) ElasticAddresses() []string {
	return splitList(c.Elastic.Addresses)
}

// CORSOrigins splits the configured origin list.
func (c *Config) CORSOrigins() []string {
	return splitList(c.Security.CORSOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
