package corpus

import (
	"context"
	"fmt"
	"os"

	"github.com/ricesearch/cisi-search/internal/config"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
)

// Loader reads the three collection files from disk.
type Loader struct {
	cfg config.CorpusConfig
	log *logger.Logger
}

// NewLoader creates a loader for the configured collection files.
func NewLoader(cfg config.CorpusConfig, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Discard()
	}
	return &Loader{cfg: cfg, log: log.WithComponent("corpus")}
}

// Load parses documents, queries and judgments into a Collection.
// Skipped judgment lines are logged at warn level.
func (l *Loader) Load(ctx context.Context) (*Collection, error) {
	docsRaw, err := os.ReadFile(l.cfg.DocumentsPath)
	if err != nil {
		return nil, apperrors.CorpusError("reading documents", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queriesRaw, err := os.ReadFile(l.cfg.QueriesPath)
	if err != nil {
		return nil, apperrors.CorpusError("reading queries", err)
	}

	f, err := os.Open(l.cfg.JudgmentsPath)
	if err != nil {
		return nil, apperrors.CorpusError("reading judgments", err)
	}
	defer f.Close()

	judgments, diags, err := ParseJudgments(f)
	if err != nil {
		return nil, apperrors.CorpusError("parsing judgments", err)
	}
	for _, d := range diags {
		l.log.Warn("skipping judgment line",
			"file", l.cfg.JudgmentsPath,
			"line", d.Line,
			"reason", d.Reason,
			"text", d.Text,
		)
	}

	c := &Collection{
		Documents: ParseDocuments(string(docsRaw)),
		Queries:   ParseQueries(string(queriesRaw)),
		Judgments: judgments,
	}

	if dangling := c.DanglingCitations(); len(dangling) > 0 {
		l.log.Debug("documents cite unknown ids", "documents", len(dangling))
	}
	l.log.Info("corpus loaded",
		"documents", len(c.Documents),
		"queries", len(c.Queries),
		"judged_queries", len(c.Judgments),
	)

	return c, nil
}

// LoadFiles is a convenience wrapper around Loader.Load.
func LoadFiles(ctx context.Context, cfg config.CorpusConfig, log *logger.Logger) (*Collection, error) {
	c, err := NewLoader(cfg, log).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return c, nil
}
