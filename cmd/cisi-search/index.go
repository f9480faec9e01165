package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ricesearch/cisi-search/internal/corpus"
)

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load the CISI documents into Elasticsearch",
		Long: `Create the index with the BM25 settings from config and bulk load
every document of the collection.

An existing index is kept and documents are overwritten by id, unless
--recreate is given.`,
		RunE: runIndex,
	}

	cmd.Flags().Bool("recreate", false, "drop and recreate the index first")

	return cmd
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	collection, err := corpus.LoadFiles(ctx, cfg.Corpus, log)
	if err != nil {
		return err
	}

	es, err := newElastic(ctx, cfg, log)
	if err != nil {
		return err
	}

	recreate, _ := cmd.Flags().GetBool("recreate")
	if err := es.CreateIndex(ctx, recreate); err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(collection.Documents),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	stats, err := es.IndexDocuments(ctx, collection.Documents, func() { _ = bar.Add(1) })
	_ = bar.Finish()
	if err != nil {
		return err
	}

	count, err := es.Count(ctx)
	if err != nil {
		return err
	}

	if outputFormat(cmd) == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"index":       es.Index(),
			"indexed":     stats.Indexed,
			"failed":      stats.Failed,
			"failures":    stats.Failures,
			"duration_ms": stats.Duration.Milliseconds(),
			"count":       count,
		})
	}

	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("Index:"), es.Index())
	fmt.Printf("  indexed:  %s\n", color.GreenString("%d", stats.Indexed))
	if stats.Failed > 0 {
		fmt.Printf("  failed:   %s\n", color.RedString("%d", stats.Failed))
		ids := make([]int, 0, len(stats.Failures))
		for id := range stats.Failures {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			fmt.Printf("    doc %d: %s\n", id, stats.Failures[id])
		}
	}
	fmt.Printf("  in index: %d\n", count)
	fmt.Printf("  took:     %s\n", stats.Duration.Round(time.Millisecond))

	return nil
}
