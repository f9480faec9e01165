package corpus

import (
	"strconv"
	"strings"

	"github.com/ricesearch/cisi-search/internal/query"
)

// ParseDocuments parses the document collection text. Documents are keyed by
// their 1-based position in the input; the number after the record marker is
// not used. Missing sub-fields yield empty values.
func ParseDocuments(raw string) map[int]Document {
	records := scanRecords(raw)
	docs := make(map[int]Document, len(records))

	for i, rec := range records {
		doc := Document{ID: i + 1}

		if f, ok := rec.field(markerTitle); ok {
			doc.Title = f.text()
		}
		if f, ok := rec.field(markerAuthor); ok {
			doc.Author = f.text()
		}
		if f, ok := rec.field(markerBody); ok {
			doc.Text = f.text()
		}
		if f, ok := rec.field(markerCites); ok {
			doc.Citations = parseCitations(f.lines)
		}
		doc.NormalizedText = strings.Join(query.Normalize(doc.Text), " ")

		docs[doc.ID] = doc
	}

	return docs
}

// parseCitations takes the first token of every non-blank line. Lines whose
// first token is not an integer are dropped.
func parseCitations(lines []string) []int {
	var ids []int
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
