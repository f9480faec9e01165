// Package search provides interactive search over the indexed collection
// and the contract every search backend implements.
package search

import (
	"context"

	"github.com/ricesearch/cisi-search/internal/corpus"
	"github.com/ricesearch/cisi-search/internal/query"
)

// Backend executes structured search requests against a full-text engine.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Search returns hits in rank order. Ties keep the backend's order.
	Search(ctx context.Context, req query.SearchRequest) (*Response, error)

	// Document fetches one stored document. Unknown ids yield an
	// errors.NotFoundError.
	Document(ctx context.Context, id int) (*corpus.Document, error)
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Hit is one ranked search result.
type Hit struct {
	DocID  int     `json:"doc_id"`
	Score  float64 `json:"score"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Text   string  `json:"text"`

	// Highlights holds marked-up fragments per field when requested.
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// Response is an ordered list of hits.
type Response struct {
	Hits   []Hit `json:"hits"`
	Total  int   `json:"total"`
	TookMs int64 `json:"took_ms"`
}

// DocIDs returns the ranked document ids.
func (r *Response) DocIDs() []int {
	if r == nil {
		return nil
	}
	ids := make([]int, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.DocID
	}
	return ids
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	DocID   int    `json:"doc_id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// snippet picks the first title fragment, then the first text fragment.
func (h Hit) snippet() string {
	for _, field := range []string{"title", "text"} {
		if frags := h.Highlights[field]; len(frags) > 0 {
			return frags[0]
		}
	}
	return ""
}
