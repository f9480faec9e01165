package server

import (
	"context"
	"sync"

	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/corpus"
	"github.com/ricesearch/cisi-search/internal/evaluation"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
)

// CachedCollection loads the collection files on first use and keeps the
// result. A failed load is not cached, so a later request retries.
func CachedCollection(cfg config.CorpusConfig, log *logger.Logger) evaluation.CollectionSource {
	return cachedSource(func(ctx context.Context) (*corpus.Collection, error) {
		return corpus.LoadFiles(ctx, cfg, log)
	})
}

func cachedSource(load evaluation.CollectionSource) evaluation.CollectionSource {
	var (
		mu     sync.Mutex
		cached *corpus.Collection
	)
	return func(ctx context.Context) (*corpus.Collection, error) {
		mu.Lock()
		defer mu.Unlock()

		if cached != nil {
			return cached, nil
		}
		c, err := load(ctx)
		if err != nil {
			return nil, err
		}
		cached = c
		return c, nil
	}
}
