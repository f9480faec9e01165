package evaluation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/xuri/excelize/v2"
)

// Format is a report output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a report format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q (must be text or json)", s)
}

// Write renders the report in the given format.
func Write(w io.Writer, report *CorpusReport, format Format, verbose bool) error {
	if format == FormatJSON {
		return WriteJSON(w, report)
	}
	return WriteText(w, report, verbose)
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, report *CorpusReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	labelColor    = color.New(color.Bold)
	degradedColor = color.New(color.FgRed)
	goodColor     = color.New(color.FgGreen)
	mutedColor    = color.New(color.FgHiBlack)
)

// WriteText writes a human readable summary. With verbose set, one row per
// query follows the summary.
func WriteText(w io.Writer, report *CorpusReport, verbose bool) error {
	ew := &errWriter{w: w}

	headerColor.Fprintln(ew, "CISI evaluation")
	cutoff := string(report.KPolicy)
	if report.KPolicy == KFixed {
		cutoff = fmt.Sprintf("fixed, k=%d", report.K)
	}
	fmt.Fprintf(ew, "  %s %s\n", labelColor.Sprintf("%-22s", "cutoff"), cutoff)
	fmt.Fprintf(ew, "  %s %d\n", labelColor.Sprintf("%-22s", "evaluated"), report.Evaluated)
	fmt.Fprintf(ew, "  %s %d\n", labelColor.Sprintf("%-22s", "skipped"), len(report.Skipped))
	if report.Degraded > 0 {
		fmt.Fprintf(ew, "  %s %s\n", labelColor.Sprintf("%-22s", "degraded"), degradedColor.Sprint(report.Degraded))
	} else {
		fmt.Fprintf(ew, "  %s %s\n", labelColor.Sprintf("%-22s", "degraded"), goodColor.Sprint(0))
	}
	fmt.Fprintln(ew)

	for _, row := range summaryRows(report) {
		fmt.Fprintf(ew, "  %s %.4f\n", labelColor.Sprintf("%-22s", row.name), row.value)
	}

	if verbose && len(report.PerQuery) > 0 {
		fmt.Fprintln(ew)
		headerColor.Fprintf(ew, "  %5s %4s %5s %6s %6s %6s %6s %6s %6s\n",
			"query", "k", "hits", "P@k", "R@k", "F1@k", "AP", "RR", "nDCG")
		for _, r := range report.PerQuery {
			line := fmt.Sprintf("  %5d %4d %5d %6.4f %6.4f %6.4f %6.4f %6.4f %6.4f",
				r.QueryID, r.K, r.Hits, r.PrecisionAtK, r.RecallAtK, r.F1AtK,
				r.AveragePrecision, r.ReciprocalRank, r.NDCGAtK)
			if r.Degraded {
				degradedColor.Fprintf(ew, "%s  degraded: %s\n", line, r.Error)
				continue
			}
			fmt.Fprintln(ew, line)
		}
	}

	if len(report.Skipped) > 0 {
		fmt.Fprintln(ew)
		mutedColor.Fprintf(ew, "  no relevance judgments: %s\n", joinInts(report.Skipped))
	}
	return ew.err
}

type summaryRow struct {
	name  string
	value float64
}

func summaryRows(report *CorpusReport) []summaryRow {
	return []summaryRow{
		{"mean precision@k", report.MeanPrecisionAtK},
		{"mean recall@k", report.MeanRecallAtK},
		{"mean f1@k", report.MeanF1AtK},
		{"MAP", report.MAP},
		{"MRR", report.MRR},
		{"mean nDCG@k", report.MeanNDCGAtK},
	}
}

// Workbook sheet names.
const (
	SheetSummary  = "Summary"
	SheetPerQuery = "Per Query"
)

var perQueryHeader = []interface{}{
	"query_id", "k", "retrieved", "relevant", "hits",
	"precision_at_k", "recall_at_k", "f1_at_k",
	"average_precision", "reciprocal_rank", "ndcg_at_k",
	"degraded", "error",
}

// WriteWorkbook renders the report as an .xlsx workbook with a summary sheet
// and one row per evaluated query.
func WriteWorkbook(w io.Writer, report *CorpusReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetPerQuery); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	summary := [][]interface{}{
		{"metric", "value"},
		{"k_policy", string(report.KPolicy)},
		{"k", report.K},
		{"evaluated", report.Evaluated},
		{"degraded", report.Degraded},
		{"skipped", len(report.Skipped)},
	}
	for _, row := range summaryRows(report) {
		summary = append(summary, []interface{}{row.name, row.value})
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", "B1", bold); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}

	rows := make([][]interface{}, 0, len(report.PerQuery)+1)
	rows = append(rows, perQueryHeader)
	for _, r := range report.PerQuery {
		rows = append(rows, []interface{}{
			r.QueryID, r.K, r.Retrieved, r.Relevant, r.Hits,
			r.PrecisionAtK, r.RecallAtK, r.F1AtK,
			r.AveragePrecision, r.ReciprocalRank, r.NDCGAtK,
			r.Degraded, r.Error,
		})
	}
	if err := writeRows(f, SheetPerQuery, rows); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(perQueryHeader), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetPerQuery, "A1", last, bold); err != nil {
		return fmt.Errorf("style per-query header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}

// errWriter remembers the first write error so the renderer can ignore
// per-line errors.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
