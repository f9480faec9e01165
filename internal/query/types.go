// Package query turns free-text queries into structured multi-field search
// requests.
package query

import (
	"strconv"
	"strings"
)

// Mode selects which clauses a search request carries.
type Mode string

const (
	// ModeRelevance scores documents with a fuzzy multi-field match.
	ModeRelevance Mode = "relevance"

	// ModePrefix matches the text as a phrase whose last term is a prefix.
	ModePrefix Mode = "prefix"

	// ModeBoth combines relevance and prefix clauses with OR semantics.
	ModeBoth Mode = "both"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeRelevance, ModePrefix, ModeBoth:
		return true
	}
	return false
}

// Relevance reports whether the relevance clause is present.
func (m Mode) Relevance() bool { return m == ModeRelevance || m == ModeBoth }

// Prefix reports whether the prefix clause is present.
func (m Mode) Prefix() bool { return m == ModePrefix || m == ModeBoth }

// FieldWeight is a document field with its boost.
type FieldWeight struct {
	Field string  `json:"field"`
	Boost float64 `json:"boost"`
}

// String renders the weight in "field^boost" form; a boost of 1 is omitted.
func (w FieldWeight) String() string {
	if w.Boost == 0 || w.Boost == 1 {
		return w.Field
	}
	return w.Field + "^" + strconv.FormatFloat(w.Boost, 'f', -1, 64)
}

// FieldWeights is an ordered list of weighted fields.
type FieldWeights []FieldWeight

// Strings renders every weight in "field^boost" form.
func (fw FieldWeights) Strings() []string {
	out := make([]string, len(fw))
	for i, w := range fw {
		out[i] = w.String()
	}
	return out
}

// Names returns the bare field names.
func (fw FieldWeights) Names() []string {
	out := make([]string, len(fw))
	for i, w := range fw {
		out[i] = w.Field
	}
	return out
}

// ParseFieldWeights parses "title^2,text,author" style lists.
func ParseFieldWeights(s string) (FieldWeights, error) {
	var fw FieldWeights
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, boost, found := strings.Cut(part, "^")
		w := FieldWeight{Field: strings.TrimSpace(name), Boost: 1}
		if found {
			b, err := strconv.ParseFloat(strings.TrimSpace(boost), 64)
			if err != nil || b <= 0 {
				return nil, invalidWeight(part)
			}
			w.Boost = b
		}
		if w.Field == "" {
			return nil, invalidWeight(part)
		}
		fw = append(fw, w)
	}
	return fw, nil
}

// HighlightField configures highlighting for one field. Zero values leave
// the search service defaults in place.
type HighlightField struct {
	Field             string `json:"field"`
	FragmentSize      int    `json:"fragment_size,omitempty"`
	NumberOfFragments int    `json:"number_of_fragments,omitempty"`
}

// Highlight configures highlighted snippets in the response.
type Highlight struct {
	PreTag  string           `json:"pre_tag"`
	PostTag string           `json:"post_tag"`
	Fields  []HighlightField `json:"fields"`
}

// SearchRequest is the backend-independent description of one search.
// It is a plain value and safe to share between goroutines once built.
type SearchRequest struct {
	Tokens       []string     `json:"tokens"`
	Fields       FieldWeights `json:"fields"`
	PrefixFields FieldWeights `json:"prefix_fields,omitempty"`
	Fuzzy        bool         `json:"fuzzy"`
	Mode         Mode         `json:"mode"`
	Limit        int          `json:"limit"`
	Highlight    *Highlight   `json:"highlight,omitempty"`
}

// Text joins the tokens into the query string sent to the backend.
func (r SearchRequest) Text() string {
	return strings.Join(r.Tokens, " ")
}
