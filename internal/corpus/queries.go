package corpus

// ParseQueries parses the query set text. Unlike documents, queries are keyed
// by the literal integer after the record marker. Records without a body, or
// whose body is empty, are omitted.
func ParseQueries(raw string) map[int]Query {
	queries := make(map[int]Query)

	for _, rec := range scanRecords(raw) {
		body, ok := rec.field(markerBody)
		if !ok {
			continue
		}
		text := body.text()
		if text == "" {
			continue
		}
		queries[rec.id] = Query{ID: rec.id, Text: text}
	}

	return queries
}
