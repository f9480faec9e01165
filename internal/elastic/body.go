package elastic

import (
	"github.com/ricesearch/cisi-search/internal/query"
)

// BuildBody renders a search request as an Elasticsearch query DSL body.
//
// Relevance mode uses a best_fields multi_match with AUTO fuzziness when
// fuzzy is set. Prefix mode matches a phrase whose last term is a prefix.
// Both modes combine the two as bool.should clauses.
func BuildBody(req query.SearchRequest) map[string]any {
	text := req.Text()

	var clauses []map[string]any
	if req.Mode.Relevance() {
		mm := map[string]any{
			"query":  text,
			"fields": req.Fields.Strings(),
			"type":   "best_fields",
		}
		if req.Fuzzy {
			mm["fuzziness"] = "AUTO"
		}
		clauses = append(clauses, map[string]any{"multi_match": mm})
	}

	if req.Mode.Prefix() {
		if req.Mode.Relevance() {
			clauses = append(clauses, map[string]any{
				"multi_match": map[string]any{
					"query":  text,
					"fields": req.PrefixFields.Strings(),
					"type":   "phrase_prefix",
				},
			})
		} else {
			for _, f := range req.PrefixFields {
				clause := map[string]any{"query": text}
				if f.Boost != 1 && f.Boost != 0 {
					clause["boost"] = f.Boost
				}
				clauses = append(clauses, map[string]any{
					"match_phrase_prefix": map[string]any{f.Field: clause},
				})
			}
		}
	}

	body := map[string]any{"size": req.Limit}
	if len(clauses) == 1 {
		body["query"] = clauses[0]
	} else {
		body["query"] = map[string]any{
			"bool": map[string]any{"should": clauses},
		}
	}

	if h := req.Highlight; h != nil {
		fields := make(map[string]any, len(h.Fields))
		for _, f := range h.Fields {
			settings := map[string]any{}
			if f.FragmentSize > 0 {
				settings["fragment_size"] = f.FragmentSize
			}
			if f.NumberOfFragments > 0 {
				settings["number_of_fragments"] = f.NumberOfFragments
			}
			fields[f.Field] = settings
		}
		body["highlight"] = map[string]any{
			"pre_tags":  []string{h.PreTag},
			"post_tags": []string{h.PostTag},
			"fields":    fields,
		}
	}

	return body
}
