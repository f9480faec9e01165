package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ricesearch/cisi-search/internal/bus"
	"github.com/ricesearch/cisi-search/internal/client"
	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/corpus"
	"github.com/ricesearch/cisi-search/internal/evaluation"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
	"github.com/ricesearch/cisi-search/internal/query"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the query set against the relevance judgments",
		Long: `Run every judged query through the search backend and report
precision, recall, F1, MAP, MRR and NDCG.

Queries go straight to Elasticsearch unless --remote points at a running
cisi-search-server, in which case they go through its /evaluate endpoint.
With --server-side the server scores its own corpus through /evaluate_all
and only the report comes back.

Examples:
  cisi-search evaluate
  cisi-search evaluate --k 20 --workers 8
  cisi-search evaluate --k-policy relevant --per-query
  cisi-search evaluate --remote http://localhost:8080 --xlsx report.xlsx
  cisi-search evaluate --remote http://localhost:8080 --server-side --k 5`,
		RunE: runEvaluate,
	}

	cmd.Flags().String("remote", "", "evaluate through a cisi-search-server at this URL")
	cmd.Flags().Int("k", 0, "cutoff for the @k metrics (overrides config)")
	cmd.Flags().String("k-policy", "", "cutoff policy: fixed or relevant (overrides config)")
	cmd.Flags().Int("workers", 0, "concurrent queries (overrides config)")
	cmd.Flags().String("fields", "", `field weights such as "title^2,text" (overrides config)`)
	cmd.Flags().Bool("server-side", false, "let the --remote server run the evaluation")
	cmd.Flags().String("xlsx", "", "also write the report as an Excel workbook")
	cmd.Flags().Bool("per-query", false, "include the per-query table in text output")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")

	return cmd
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	format, err := evaluation.ParseFormat(outputFormat(cmd))
	if err != nil {
		return err
	}

	opts := evaluation.OptionsFrom(cfg.Evaluation)
	if cmd.Flags().Changed("k") {
		opts.K, _ = cmd.Flags().GetInt("k")
		if opts.K <= 0 {
			return fmt.Errorf("--k must be positive")
		}
	}
	if raw, _ := cmd.Flags().GetString("k-policy"); raw != "" {
		if opts.KPolicy, err = evaluation.ParseKPolicy(raw); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("workers") {
		opts.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if raw, _ := cmd.Flags().GetString("fields"); raw != "" {
		if opts.Fields, err = query.ParseFieldWeights(raw); err != nil {
			return fmt.Errorf("--fields: %w", err)
		}
	}

	remote, _ := cmd.Flags().GetString("remote")
	var report *evaluation.CorpusReport
	if serverSide, _ := cmd.Flags().GetBool("server-side"); serverSide {
		if remote == "" {
			return fmt.Errorf("--server-side requires --remote")
		}
		report, err = evaluateOnServer(ctx, remote, cfg, opts, log)
	} else {
		noProgress, _ := cmd.Flags().GetBool("no-progress")
		report, err = evaluateLocally(ctx, remote, cfg, opts, !noProgress, log)
	}
	if err != nil {
		return err
	}

	perQuery, _ := cmd.Flags().GetBool("per-query")
	if err := evaluation.Write(os.Stdout, report, format, perQuery); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("xlsx"); path != "" {
		if err := writeWorkbook(path, report); err != nil {
			return err
		}
		if format == evaluation.FormatText {
			fmt.Printf("\n%s %s\n", color.GreenString("Workbook written to"), path)
		}
	}

	if report.Degraded > 0 {
		log.Warn("Some queries failed and were scored as empty results", "degraded", report.Degraded)
	}
	return nil
}

// evaluateLocally loads the corpus and runs every judged query through the
// backend, which is Elasticsearch or a remote server's /evaluate endpoint.
func evaluateLocally(ctx context.Context, remote string, cfg *config.Config, opts evaluation.Options, progress bool, log *logger.Logger) (*evaluation.CorpusReport, error) {
	collection, err := corpus.LoadFiles(ctx, cfg.Corpus, log)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(ctx, remote, cfg, log)
	if err != nil {
		return nil, err
	}

	eventBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	defer func() { _ = eventBus.Close() }()

	evalOpts := []evaluation.Option{evaluation.WithBus(eventBus, cfg.Bus.TopicPrefix)}

	if progress {
		bar := progressbar.NewOptions(judgedQueries(collection),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("evaluating"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
		defer func() { _ = bar.Finish() }()
		evalOpts = append(evalOpts, evaluation.WithProgress(func() { _ = bar.Add(1) }))
	}

	return evaluation.NewEvaluator(backend, log, opts, evalOpts...).Run(ctx, collection)
}

// evaluateOnServer asks a running server to score its own corpus. Only the
// cutoff and policy travel with the request; weights, workers and the corpus
// are the server's.
func evaluateOnServer(ctx context.Context, remote string, cfg *config.Config, opts evaluation.Options, log *logger.Logger) (*evaluation.CorpusReport, error) {
	c := client.New(client.Config{BaseURL: remote, Timeout: cfg.Server.WriteTimeout})

	health, err := c.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("server unreachable at %s: %w", c.BaseURL(), err)
	}
	if health.Status != "healthy" {
		log.Warn("Server reports degraded health", "status", health.Status)
	}
	log.Info("Evaluating on server", "url", c.BaseURL(), "version", health.Version, "k", opts.K, "k_policy", opts.KPolicy)

	return c.EvaluateAll(ctx, opts.K, opts.KPolicy)
}

func writeWorkbook(path string, report *evaluation.CorpusReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	if err := evaluation.WriteWorkbook(f, report); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func judgedQueries(c *corpus.Collection) int {
	n := 0
	for id := range c.Queries {
		if len(c.Judgments.Relevant(id)) > 0 {
			n++
		}
	}
	return n
}
