package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/ricesearch/cisi-search/internal/corpus"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
)

const similarityName = "cisi_bm25"

// IndexBody returns the settings and mappings used to create the index.
func IndexBody(k1, b float64) map[string]any {
	textField := map[string]any{"type": "text", "similarity": similarityName}
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards": 1,
			"similarity": map[string]any{
				similarityName: map[string]any{
					"type": "BM25",
					"k1":   k1,
					"b":    b,
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"doc_id":          map[string]any{"type": "integer"},
				"title":           textField,
				"author":          textField,
				"text":            textField,
				"normalized_text": textField,
			},
		},
	}
}

// IndexExists reports whether the configured index exists.
func (c *Client) IndexExists(ctx context.Context) (bool, error) {
	var exists bool
	err := c.call(ctx, "index_exists", func(ctx context.Context) error {
		res, err := c.es.Indices.Exists([]string{c.config.Index}, c.es.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("exists request: %w", err)
		}
		defer res.Body.Close()

		switch res.StatusCode {
		case http.StatusOK:
			exists = true
		case http.StatusNotFound:
			exists = false
		default:
			return responseError(res)
		}
		return nil
	})
	return exists, toAppError("index lookup", err)
}

// CreateIndex creates the index with BM25 similarity. With recreate set an
// existing index is deleted first; otherwise an existing index is kept.
func (c *Client) CreateIndex(ctx context.Context, recreate bool) error {
	exists, err := c.IndexExists(ctx)
	if err != nil {
		return err
	}

	if exists && !recreate {
		c.log.Info("index already exists", "index", c.config.Index)
		return nil
	}
	if exists {
		if err := c.deleteIndex(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(IndexBody(c.config.BM25K1, c.config.BM25B))
	if err != nil {
		return apperrors.InternalError("failed to encode index body", err)
	}

	err = c.call(ctx, "create_index", func(ctx context.Context) error {
		res, err := c.es.Indices.Create(c.config.Index,
			c.es.Indices.Create.WithContext(ctx),
			c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
		)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return responseError(res)
		}
		return nil
	})
	if err != nil {
		return toAppError("index creation", err)
	}

	c.log.Info("created index",
		"index", c.config.Index,
		"bm25_k1", c.config.BM25K1,
		"bm25_b", c.config.BM25B,
	)
	return nil
}

func (c *Client) deleteIndex(ctx context.Context) error {
	err := c.call(ctx, "delete_index", func(ctx context.Context) error {
		res, err := c.es.Indices.Delete([]string{c.config.Index}, c.es.Indices.Delete.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("delete request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() && res.StatusCode != http.StatusNotFound {
			return responseError(res)
		}
		return nil
	})
	if err != nil {
		return toAppError("index deletion", err)
	}
	c.log.Info("deleted index", "index", c.config.Index)
	return nil
}

// IndexStats summarises a bulk load.
type IndexStats struct {
	Indexed  int
	Failed   int
	Duration time.Duration

	// Failures maps a document id to the reason it was rejected.
	Failures map[int]string
}

// IndexDocuments bulk loads documents keyed by their id. progress, when
// non-nil, is called once per acknowledged document.
func (c *Client) IndexDocuments(ctx context.Context, docs map[int]corpus.Document, progress func()) (*IndexStats, error) {
	start := time.Now()

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        c.es,
		Index:         c.config.Index,
		NumWorkers:    min(runtime.NumCPU(), 4),
		FlushBytes:    1 << 20,
		FlushInterval: time.Second,
		Refresh:       "wait_for",
		OnError: func(ctx context.Context, err error) {
			c.log.WithError(err).Error("bulk indexer error")
		},
	})
	if err != nil {
		return nil, apperrors.InternalError("failed to create bulk indexer", err)
	}

	var (
		mu       sync.Mutex
		failures = make(map[int]string)
	)

	ids := make([]int, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		doc := docs[id]
		payload, err := json.Marshal(source{
			DocID:          &doc.ID,
			Title:          doc.Title,
			Author:         doc.Author,
			Text:           doc.Text,
			NormalizedText: doc.NormalizedText,
		})
		if err != nil {
			return nil, apperrors.InternalError("failed to encode document", err)
		}

		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: strconv.Itoa(doc.ID),
			Body:       bytes.NewReader(payload),
			OnSuccess: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem) {
				if progress != nil {
					progress()
				}
			},
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				reason := res.Error.Reason
				if err != nil {
					reason = err.Error()
				}
				mu.Lock()
				failures[doc.ID] = reason
				mu.Unlock()
			},
		})
		if err != nil {
			_ = bi.Close(context.WithoutCancel(ctx))
			return nil, toAppError("bulk indexing", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return nil, toAppError("bulk indexing", err)
	}

	bs := bi.Stats()
	stats := &IndexStats{
		Indexed:  int(bs.NumIndexed),
		Failed:   int(bs.NumFailed),
		Duration: time.Since(start),
		Failures: failures,
	}

	c.log.Info("indexed documents",
		"index", c.config.Index,
		"indexed", stats.Indexed,
		"failed", stats.Failed,
		"duration", stats.Duration.Round(time.Millisecond),
	)
	for id, reason := range failures {
		c.log.Warn("document rejected", "doc_id", id, "reason", reason)
	}

	return stats, nil
}

// Count returns the number of documents in the index.
func (c *Client) Count(ctx context.Context) (int, error) {
	var count int
	err := c.call(ctx, "count", func(ctx context.Context) error {
		res, err := c.es.Count(
			c.es.Count.WithContext(ctx),
			c.es.Count.WithIndex(c.config.Index),
		)
		if err != nil {
			return fmt.Errorf("count request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return responseError(res)
		}

		var body struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode count response: %w", err)
		}
		count = body.Count
		return nil
	})
	return count, toAppError("count", err)
}
