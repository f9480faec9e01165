package evaluation

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ricesearch/cisi-search/internal/corpus"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
	"github.com/ricesearch/cisi-search/internal/pkg/security"
	"github.com/ricesearch/cisi-search/internal/search"
)

// CollectionSource returns the corpus to evaluate against.
type CollectionSource func(ctx context.Context) (*corpus.Collection, error)

// StaticCollection serves an already loaded collection.
func StaticCollection(c *corpus.Collection) CollectionSource {
	return func(context.Context) (*corpus.Collection, error) { return c, nil }
}

// Handler serves full-corpus evaluation over HTTP.
type Handler struct {
	backend search.Backend
	source  CollectionSource
	opts    Options
	log     *logger.Logger
	extra   []Option
}

// NewHandler creates an evaluation handler. Each request builds its own
// evaluator so the size parameter can override k.
func NewHandler(backend search.Backend, source CollectionSource, log *logger.Logger, opts Options, extra ...Option) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		backend: backend,
		source:  source,
		opts:    opts,
		log:     log,
		extra:   extra,
	}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /evaluate_all", h.HandleEvaluateAll)
	mux.HandleFunc("GET /api/evaluate_all", h.HandleEvaluateAll)
}

// HandleEvaluateAll handles GET /evaluate_all?size=&k_policy=
func (h *Handler) HandleEvaluateAll(w http.ResponseWriter, r *http.Request) {
	opts := h.opts
	params := r.URL.Query()

	if raw := params.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			apperrors.WriteError(w, apperrors.InvalidRequestError("Query parameter 'size' must be an integer.").
				WithDetail("parameter", "size"))
			return
		}
		if err := security.ValidateSize(n); err != nil {
			apperrors.WriteError(w, apperrors.ValidationError(err.Error()).
				WithDetail("parameter", "size"))
			return
		}
		opts.K = n
		opts.ResultLimit = max(opts.ResultLimit, n)
	}
	if raw := params.Get("k_policy"); raw != "" {
		policy, err := ParseKPolicy(raw)
		if err != nil {
			apperrors.WriteError(w, apperrors.ValidationError(err.Error()).
				WithDetail("parameter", "k_policy"))
			return
		}
		opts.KPolicy = policy
	}

	collection, err := h.source(r.Context())
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("failed to load corpus")
		apperrors.WriteError(w, apperrors.CorpusError("failed to load corpus", err))
		return
	}

	report, err := NewEvaluator(h.backend, h.log, opts, h.extra...).Run(r.Context(), collection)
	if err != nil {
		apperrors.WriteError(w, apperrors.TimeoutError("evaluation"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(report)
}
