package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ricesearch/cisi-search/internal/query"
	"github.com/ricesearch/cisi-search/internal/search"
)

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a single search",
		Long: `Run a search with the interactive weight profile and print the ranked
documents. With --autocomplete the query is treated as a typed prefix.

Examples:
  cisi-search search "information retrieval evaluation"
  cisi-search search --autocomplete "libr" --size 8
  cisi-search search --fields "title^3,text" "library automation"
  cisi-search search --remote http://localhost:8080 "citation indexing"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().IntP("size", "n", 0, "number of results (default from config)")
	cmd.Flags().Bool("autocomplete", false, "prefix suggestions instead of full search")
	cmd.Flags().String("remote", "", "search through a cisi-search-server at this URL")
	cmd.Flags().String("fields", "", `field weights such as "title^2,text" (overrides the profile)`)

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	remote, _ := cmd.Flags().GetString("remote")
	backend, err := newBackend(ctx, remote, cfg, log)
	if err != nil {
		return err
	}

	svc := search.NewService(backend, log, search.ConfigFrom(cfg))
	text := strings.Join(args, " ")
	size, _ := cmd.Flags().GetInt("size")
	if size == 0 {
		size = cfg.Search.DefaultSize
	}
	raw, _ := cmd.Flags().GetString("fields")
	fields, err := query.ParseFieldWeights(raw)
	if err != nil {
		return fmt.Errorf("--fields: %w", err)
	}
	if remote != "" && len(fields) > 0 {
		log.Warn("--fields is ignored by remote search, the server's weights apply")
	}
	jsonOut := outputFormat(cmd) == "json"

	if auto, _ := cmd.Flags().GetBool("autocomplete"); auto {
		suggestions, err := svc.Autocomplete(ctx, text, size)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(suggestions)
		}
		for _, s := range suggestions {
			fmt.Printf("%s %s\n", color.CyanString("%5d", s.DocID), s.Title)
			if s.Snippet != "" {
				fmt.Printf("      %s\n", markToColor(s.Snippet))
			}
		}
		return nil
	}

	resp, err := svc.Search(ctx, text, size, fields)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}

	if len(resp.Hits) == 0 {
		fmt.Println(color.YellowString("No results."))
		return nil
	}
	bold := color.New(color.Bold)
	for i, hit := range resp.Hits {
		fmt.Printf("%2d. %s %s %s\n", i+1,
			color.CyanString("[%d]", hit.DocID),
			bold.Sprint(hit.Title),
			color.HiBlackString("(%.3f)", hit.Score))
		if hit.Author != "" {
			fmt.Printf("    %s\n", hit.Author)
		}
		for _, frag := range hit.Highlights["text"] {
			fmt.Printf("    ...%s...\n", markToColor(frag))
		}
	}
	fmt.Printf("\n%d hits in %dms\n", resp.Total, resp.TookMs)
	return nil
}

// markToColor renders highlight tags as terminal color.
func markToColor(s string) string {
	parts := strings.Split(s, "<mark>")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		marked, rest, _ := strings.Cut(p, "</mark>")
		b.WriteString(color.YellowString(marked))
		b.WriteString(rest)
	}
	return b.String()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
