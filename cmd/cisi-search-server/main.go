// Package main provides the cisi-search HTTP server binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
	"github.com/ricesearch/cisi-search/internal/pkg/security"
	"github.com/ricesearch/cisi-search/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cisi-search-server",
		Short: "CISI search server - search, autocomplete and evaluation over HTTP",
		Long: `cisi-search-server serves search, autocomplete, document lookup and
retrieval evaluation over the CISI collection indexed in Elasticsearch.

Endpoints:
  GET /search?q=&size=          ranked search
  GET /autocomplete?q=&size=    prefix suggestions
  GET /document/{id}            single document
  GET /evaluate?q=&size=        search with the benchmark profile
  GET /evaluate_all?size=       score the whole query set
  GET /healthz, /readyz         liveness and readiness
  GET /metrics                  Prometheus metrics

Examples:
  cisi-search-server                        # Start with defaults
  cisi-search-server --port 9000            # Custom port
  cisi-search-server --es http://es:9200    # Custom Elasticsearch`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().String("env-file", ".env", "dotenv file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().Int("port", 8080, "HTTP server port")
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().String("es", "", "Elasticsearch address (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cisi-search-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	verbose, _ := cmd.Flags().GetBool("verbose")

	appCfg, err := config.LoadWithEnvFile(configPath, envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override from flags
	if cmd.Flags().Changed("port") {
		appCfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		appCfg.Host, _ = cmd.Flags().GetString("host")
	}
	if es, _ := cmd.Flags().GetString("es"); es != "" {
		appCfg.Elastic.Addresses = es
	}
	if verbose {
		appCfg.Log.Level = "debug"
	}
	if err := appCfg.Validate(); err != nil {
		return err
	}

	log := logger.New(appCfg.Log.Level, appCfg.Log.Format)
	log.Info("Starting cisi-search server",
		"version", version,
		"addr", appCfg.Address(),
		"elastic", appCfg.ElasticAddresses(),
		"index", appCfg.Elastic.Index,
		"api_key", security.MaskSecret(appCfg.Elastic.APIKey),
		"bus", appCfg.Bus.Type,
	)

	srv, err := server.New(server.ConfigFrom(appCfg, version), appCfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	if err := srv.Stop(context.Background()); err != nil {
		return err
	}
	return <-errCh
}
