package search

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/pkg/security"
	"github.com/ricesearch/cisi-search/internal/query"
)

// Handler provides HTTP handlers for search operations.
type Handler struct {
	svc *Service
}

// NewHandler creates a new search handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SearchResponse is the body of /search and /evaluate.
type SearchResponse struct {
	Query   string `json:"query"`
	Results []Hit  `json:"results"`
}

// AutocompleteResponse is the body of /autocomplete.
type AutocompleteResponse struct {
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions"`
}

// RegisterRoutes registers search routes, both at the root and under the
// /api prefix used by the web client.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.HandleSearch)
	mux.HandleFunc("GET /autocomplete", h.HandleAutocomplete)
	mux.HandleFunc("GET /document/{id}", h.HandleDocument)
	mux.HandleFunc("GET /evaluate", h.HandleEvaluate)

	mux.HandleFunc("GET /api/search", h.HandleSearch)
	mux.HandleFunc("GET /api/search/{$}", h.HandleSearch)
	mux.HandleFunc("GET /api/search/autocomplete", h.HandleAutocomplete)
	mux.HandleFunc("GET /api/document/{id}", h.HandleDocument)
}

// HandleSearch handles GET /search?q=&size=&fields=
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	p, err := h.params(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	resp, err := h.svc.Search(r.Context(), p.q, p.size, p.fields)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{Query: p.q, Results: nonNilHits(resp.Hits)})
}

// HandleAutocomplete handles GET /autocomplete?q=&size=
func (h *Handler) HandleAutocomplete(w http.ResponseWriter, r *http.Request) {
	p, err := h.params(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	suggestions, err := h.svc.Autocomplete(r.Context(), p.q, p.size)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AutocompleteResponse{Query: p.q, Suggestions: suggestions})
}

// HandleEvaluate handles GET /evaluate?q=&size=&fields= and returns the
// ranked list an external evaluator scores.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	p, err := h.params(r)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	resp, err := h.svc.EvaluateSearch(r.Context(), p.q, p.size, p.fields)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	hits := make([]Hit, len(resp.Hits))
	for i, hit := range resp.Hits {
		hit.Highlights = nil
		hits[i] = hit
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: p.q, Results: hits})
}

// HandleDocument handles GET /document/{id}
func (h *Handler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		apperrors.WriteError(w, apperrors.NotFoundError("Document").WithDetail("doc_id", raw))
		return
	}

	doc, err := h.svc.Document(r.Context(), id)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

type searchParams struct {
	q      string
	size   int
	fields query.FieldWeights
}

// params reads the q, size and fields query parameters. Control characters
// are stripped from q before it is validated.
func (h *Handler) params(r *http.Request) (searchParams, error) {
	values := r.URL.Query()
	p := searchParams{
		q:    security.SanitizeQuery(values.Get("q")),
		size: h.svc.cfg.DefaultSize,
	}
	if p.q == "" {
		return p, apperrors.MissingParameterError("q")
	}
	if err := security.ValidateQuery(p.q); err != nil {
		return p, validationError("q", err)
	}

	if raw := values.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, apperrors.InvalidRequestError("Query parameter 'size' must be an integer.").
				WithDetail("parameter", "size")
		}
		if err := security.ValidateSize(n); err != nil {
			return p, validationError("size", err)
		}
		p.size = n
	}

	if raw := values.Get("fields"); raw != "" {
		fields, err := query.ParseFieldWeights(raw)
		if err != nil {
			return p, err
		}
		p.fields = fields
	}
	return p, nil
}

func validationError(param string, err error) error {
	var ve *security.ValidationError
	if errors.As(err, &ve) {
		return apperrors.ValidationError("Query parameter '" + param + "' is invalid: " + ve.Constraint).
			WithDetail("parameter", param)
	}
	return apperrors.ValidationError(err.Error())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNilHits(hits []Hit) []Hit {
	if hits == nil {
		return []Hit{}
	}
	return hits
}
