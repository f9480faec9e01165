// Package main provides the cisi-search command line tool: benchmark runs,
// index population and ad-hoc searches against the CISI collection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ricesearch/cisi-search/internal/client"
	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/elastic"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
	"github.com/ricesearch/cisi-search/internal/resilience"
	"github.com/ricesearch/cisi-search/internal/search"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cisi-search",
		Short: "CISI search and retrieval evaluation",
		Long: `cisi-search indexes the CISI test collection into Elasticsearch, runs
searches against it and scores the query set against the relevance judgments.

Run 'cisi-search index' once, then 'cisi-search evaluate'.
Run 'cisi-search --help' for available commands.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		evaluateCmd(),
		indexCmd(),
		searchCmd(),
		corpusCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cisi-search %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

// setup loads configuration and builds the logger shared by all commands.
// Logs go to stderr so stdout carries only the command output.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.LoadWithEnvFile(configPath, envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log := logger.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg, log, nil
}

// newElastic builds the Elasticsearch client with retries and a circuit
// breaker, and fails fast when the cluster is unreachable.
func newElastic(ctx context.Context, cfg *config.Config, log *logger.Logger) (*elastic.Client, error) {
	exec := resilience.NewExecutor(resilience.ConfigFrom(cfg.Resilience), log)
	es, err := elastic.NewClient(elastic.ConfigFrom(cfg), log, elastic.WithExecutor(exec))
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	if err := es.Ping(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch unreachable at %v: %w", cfg.ElasticAddresses(), err)
	}
	return es, nil
}

// newBackend returns a remote API client when remote is set, otherwise a
// direct Elasticsearch client.
func newBackend(ctx context.Context, remote string, cfg *config.Config, log *logger.Logger) (search.Backend, error) {
	if remote == "" {
		return newElastic(ctx, cfg, log)
	}

	c := client.New(client.Config{BaseURL: remote, Timeout: cfg.Evaluation.QueryTimeout})
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("server unreachable at %s: %w", c.BaseURL(), err)
	}
	log.Debug("Using remote backend", "url", c.BaseURL())
	return c, nil
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("format")
	return format
}
