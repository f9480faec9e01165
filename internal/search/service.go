package search

import (
	"context"
	"fmt"

	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/corpus"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
	"github.com/ricesearch/cisi-search/internal/pkg/security"
	"github.com/ricesearch/cisi-search/internal/query"
)

// Config configures the search service.
type Config struct {
	// DefaultSize is used when the caller does not ask for a size.
	DefaultSize int

	// MaxSize caps the requested size.
	MaxSize int

	// Profile is the weight profile for interactive search.
	Profile string

	// EvaluateProfile is the weight profile for single-query evaluation.
	EvaluateProfile string

	// Fields and EvaluateFields override the profiles when set.
	Fields         query.FieldWeights
	EvaluateFields query.FieldWeights

	Fuzzy     bool
	Highlight bool
}

// DefaultConfig returns the search defaults.
func DefaultConfig() Config {
	return Config{
		DefaultSize:     5,
		MaxSize:         500,
		Profile:         query.ProfileDefault,
		EvaluateProfile: query.ProfileBenchmark,
		Fuzzy:           true,
		Highlight:       true,
	}
}

// ConfigFrom derives the service config from application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		DefaultSize:     cfg.Search.DefaultSize,
		MaxSize:         cfg.Search.MaxSize,
		Profile:         cfg.Search.Profile,
		EvaluateProfile: cfg.Evaluation.QueryProfile,
		Fields:          cfg.Search.FieldWeights(),
		EvaluateFields:  cfg.Evaluation.FieldWeights(),
		Fuzzy:           cfg.Search.Fuzzy,
		Highlight:       cfg.Search.Highlight,
	}
}

// Service provides search, autocomplete and document lookup.
type Service struct {
	backend    Backend
	formulator *query.Formulator
	log        *logger.Logger
	cfg        Config
}

// NewService creates a new search service.
func NewService(backend Backend, log *logger.Logger, cfg Config) *Service {
	if cfg.DefaultSize == 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		backend:    backend,
		formulator: query.NewFormulator(log),
		log:        log.WithComponent("search"),
		cfg:        cfg,
	}
}

// Search runs a combined relevance and prefix search with highlights. A
// non-empty fields list replaces the configured weights for this call.
func (s *Service) Search(ctx context.Context, text string, size int, fields query.FieldWeights) (*Response, error) {
	req, err := s.formulator.FromText(text, query.Options{
		Mode:      query.ModeBoth,
		Profile:   s.cfg.Profile,
		Fields:    pick(fields, s.cfg.Fields),
		Fuzzy:     s.cfg.Fuzzy,
		Limit:     s.limit(size),
		Highlight: s.cfg.Highlight,
	})
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "search", req)
}

// Autocomplete returns documents whose title or text continues the typed
// prefix, each with a short highlighted snippet.
func (s *Service) Autocomplete(ctx context.Context, prefix string, size int) ([]Suggestion, error) {
	req, err := s.formulator.Build(query.Tokenize(prefix), query.Options{
		Mode:      query.ModePrefix,
		Profile:   s.cfg.Profile,
		Fields:    s.cfg.Fields,
		Limit:     s.limit(size),
		Highlight: true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.run(ctx, "autocomplete", req)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		suggestions = append(suggestions, Suggestion{
			DocID:   h.DocID,
			Title:   h.Title,
			Snippet: h.snippet(),
		})
	}
	return suggestions, nil
}

// EvaluateSearch runs the relevance-only search used for benchmarking a
// single query, with the evaluation weights and no highlights.
func (s *Service) EvaluateSearch(ctx context.Context, text string, size int, fields query.FieldWeights) (*Response, error) {
	req, err := s.formulator.FromText(text, query.Options{
		Mode:    query.ModeRelevance,
		Profile: s.cfg.EvaluateProfile,
		Fields:  pick(fields, s.cfg.EvaluateFields),
		Fuzzy:   true,
		Limit:   s.limit(size),
	})
	if err != nil {
		return nil, err
	}
	return s.run(ctx, "evaluate", req)
}

// Document fetches a document by id.
func (s *Service) Document(ctx context.Context, id int) (*corpus.Document, error) {
	doc, err := s.backend.Document(ctx, id)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			s.log.WithError(err).Error("document lookup failed", "doc_id", id)
		}
		return nil, err
	}
	return doc, nil
}

func (s *Service) run(ctx context.Context, op string, req query.SearchRequest) (*Response, error) {
	resp, err := s.backend.Search(ctx, req)
	if err != nil {
		s.log.WithError(err).Error("search failed", "op", op, "query", security.SanitizeForLog(req.Text()))
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.BackendError(fmt.Sprintf("%s failed", op), err)
	}

	s.log.Debug("search completed",
		"op", op,
		"query", security.SanitizeForLog(req.Text()),
		"hits", len(resp.Hits),
		"took_ms", resp.TookMs,
	)
	return resp, nil
}

func pick(override, configured query.FieldWeights) query.FieldWeights {
	if len(override) > 0 {
		return override
	}
	return configured
}

// limit clamps a requested size; non-positive values pass through so the
// formulator rejects them.
func (s *Service) limit(size int) int {
	if s.cfg.MaxSize > 0 && size > s.cfg.MaxSize {
		return s.cfg.MaxSize
	}
	return size
}
