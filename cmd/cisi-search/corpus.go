package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ricesearch/cisi-search/internal/corpus"
)

func corpusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect the collection files",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print document, query and judgment counts",
		RunE:  runCorpusStats,
	}
	stats.Flags().Bool("dangling", false, "list documents citing ids outside the collection")

	cmd.AddCommand(stats)
	return cmd
}

func runCorpusStats(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	collection, err := corpus.LoadFiles(cmd.Context(), cfg.Corpus, log)
	if err != nil {
		return err
	}
	stats := collection.Stats()

	if outputFormat(cmd) == "json" {
		return printJSON(stats)
	}

	label := color.New(color.FgCyan)
	rows := []struct {
		name  string
		value int
	}{
		{"documents", stats.Documents},
		{"citations", stats.Citations},
		{"dangling citations", stats.DanglingCitations},
		{"queries", stats.Queries},
		{"judged queries", stats.JudgedQueries},
		{"unjudged queries", stats.UnjudgedQueries},
		{"judgment facts", stats.JudgmentFacts},
	}
	for _, r := range rows {
		fmt.Printf("%s %d\n", label.Sprintf("%-20s", r.name), r.value)
	}

	if dangling, _ := cmd.Flags().GetBool("dangling"); dangling {
		byDoc := collection.DanglingCitations()
		ids := make([]int, 0, len(byDoc))
		for id := range byDoc {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			fmt.Printf("  doc %d -> %v\n", id, byDoc[id])
		}
	}
	return nil
}
