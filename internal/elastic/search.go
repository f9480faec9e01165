package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ricesearch/cisi-search/internal/corpus"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/query"
	"github.com/ricesearch/cisi-search/internal/search"
)

// source is the stored form of a document.
type source struct {
	DocID          *int   `json:"doc_id,omitempty"`
	Title          string `json:"title"`
	Author         string `json:"author"`
	Text           string `json:"text"`
	NormalizedText string `json:"normalized_text,omitempty"`
}

type searchHit struct {
	ID        string              `json:"_id"`
	Score     float64             `json:"_score"`
	Source    source              `json:"_source"`
	Highlight map[string][]string `json:"highlight"`
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// Search executes a structured request and returns hits in rank order.
func (c *Client) Search(ctx context.Context, req query.SearchRequest) (*search.Response, error) {
	payload, err := json.Marshal(BuildBody(req))
	if err != nil {
		return nil, apperrors.InternalError("failed to encode search body", err)
	}

	var decoded searchResponse
	err = c.call(ctx, "search", func(ctx context.Context) error {
		res, err := c.es.Search(
			c.es.Search.WithContext(ctx),
			c.es.Search.WithIndex(c.config.Index),
			c.es.Search.WithBody(bytes.NewReader(payload)),
		)
		if err != nil {
			return fmt.Errorf("search request: %w", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return responseError(res)
		}
		decoded = searchResponse{}
		if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, toAppError("search", err)
	}

	resp := &search.Response{
		Hits:   make([]search.Hit, 0, len(decoded.Hits.Hits)),
		Total:  decoded.Hits.Total.Value,
		TookMs: decoded.Took,
	}
	for _, h := range decoded.Hits.Hits {
		id, ok := h.docID()
		if !ok {
			c.log.Warn("skipping hit without numeric id", "id", h.ID)
			continue
		}
		resp.Hits = append(resp.Hits, search.Hit{
			DocID:      id,
			Score:      h.Score,
			Title:      h.Source.Title,
			Author:     h.Source.Author,
			Text:       h.Source.Text,
			Highlights: h.Highlight,
		})
	}
	return resp, nil
}

// docID prefers the stored doc_id and falls back to the index id.
func (h searchHit) docID() (int, bool) {
	if h.Source.DocID != nil {
		return *h.Source.DocID, true
	}
	id, err := strconv.Atoi(h.ID)
	return id, err == nil
}

// Document fetches one stored document by id.
func (c *Client) Document(ctx context.Context, id int) (*corpus.Document, error) {
	var doc *corpus.Document
	err := c.call(ctx, "get", func(ctx context.Context) error {
		res, err := c.es.Get(c.config.Index, strconv.Itoa(id), c.es.Get.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("get request: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode == http.StatusNotFound {
			return apperrors.NotFoundError("Document").WithDetail("doc_id", strconv.Itoa(id))
		}
		if res.IsError() {
			return responseError(res)
		}

		var body struct {
			ID     string `json:"_id"`
			Found  bool   `json:"found"`
			Source source `json:"_source"`
		}
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode get response: %w", err)
		}
		if !body.Found {
			return apperrors.NotFoundError("Document").WithDetail("doc_id", strconv.Itoa(id))
		}

		doc = &corpus.Document{
			ID:             id,
			Title:          body.Source.Title,
			Author:         body.Source.Author,
			Text:           body.Source.Text,
			NormalizedText: body.Source.NormalizedText,
		}
		return nil
	})
	if err != nil {
		return nil, toAppError("document lookup", err)
	}
	return doc, nil
}

var (
	_ search.Backend = (*Client)(nil)
	_ search.Pinger  = (*Client)(nil)
)
