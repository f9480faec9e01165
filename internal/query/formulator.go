package query

import (
	"fmt"
	"strings"

	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
)

// Highlight markup and autocomplete fragment sizes.
const (
	HighlightPreTag  = "<mark>"
	HighlightPostTag = "</mark>"

	titleFragmentSize = 50
	textFragmentSize  = 80
)

// Options controls how a request is formulated.
type Options struct {
	Mode    Mode
	Profile string

	// Fields overrides the profile weights when set.
	Fields FieldWeights

	Fuzzy     bool
	Limit     int
	Highlight bool
}

// Formulator builds SearchRequests from query text.
type Formulator struct {
	log *logger.Logger
}

// NewFormulator creates a formulator.
func NewFormulator(log *logger.Logger) *Formulator {
	if log == nil {
		log = logger.Discard()
	}
	return &Formulator{log: log}
}

// FromText normalizes raw query text and builds a request from it.
func (f *Formulator) FromText(raw string, opts Options) (SearchRequest, error) {
	return f.Build(Normalize(raw), opts)
}

// Build produces a request for already normalized tokens. The same tokens
// and options always yield the same request.
func (f *Formulator) Build(tokens []string, opts Options) (SearchRequest, error) {
	if len(tokens) == 0 {
		return SearchRequest{}, apperrors.ValidationError("query has no searchable terms")
	}
	if opts.Limit <= 0 {
		return SearchRequest{}, apperrors.ValidationError("size must be positive").
			WithDetail("size", fmt.Sprint(opts.Limit))
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeBoth
	}
	if !mode.Valid() {
		return SearchRequest{}, apperrors.ValidationError("unknown search mode").
			WithDetail("mode", string(mode))
	}

	name := opts.Profile
	if name == "" {
		name = ProfileDefault
	}
	profile, ok := LookupProfile(name)
	if !ok {
		return SearchRequest{}, apperrors.ValidationError("unknown weight profile").
			WithDetail("profile", name).
			WithDetail("known", strings.Join(ProfileNames(), ","))
	}

	fields := profile.Fields
	prefixFields := profile.PrefixFields
	if len(opts.Fields) > 0 {
		fields = opts.Fields
		prefixFields = opts.Fields
	}

	req := SearchRequest{
		Tokens: append([]string(nil), tokens...),
		Fuzzy:  opts.Fuzzy && mode.Relevance(),
		Mode:   mode,
		Limit:  opts.Limit,
	}
	if mode.Relevance() {
		req.Fields = append(FieldWeights(nil), fields...)
	}
	if mode.Prefix() {
		req.PrefixFields = append(FieldWeights(nil), prefixFields...)
	}
	if opts.Highlight {
		req.Highlight = highlightFor(mode)
	}

	f.log.Debug("formulated search request",
		"tokens", len(req.Tokens),
		"mode", req.Mode,
		"profile", name,
		"limit", req.Limit,
	)

	return req, nil
}

// highlightFor returns snippet settings. Prefix-only requests back
// autocomplete, which wants one short fragment per field.
func highlightFor(mode Mode) *Highlight {
	h := &Highlight{PreTag: HighlightPreTag, PostTag: HighlightPostTag}
	if mode == ModePrefix {
		h.Fields = []HighlightField{
			{Field: "title", FragmentSize: titleFragmentSize, NumberOfFragments: 1},
			{Field: "text", FragmentSize: textFragmentSize, NumberOfFragments: 1},
		}
		return h
	}
	h.Fields = []HighlightField{{Field: "title"}, {Field: "text"}}
	return h
}

func invalidWeight(part string) error {
	return apperrors.ValidationError("invalid field weight").WithDetail("weight", part)
}
