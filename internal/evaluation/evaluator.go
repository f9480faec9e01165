package evaluation

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ricesearch/cisi-search/internal/bus"
	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/corpus"
	apperrors "github.com/ricesearch/cisi-search/internal/pkg/errors"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
	"github.com/ricesearch/cisi-search/internal/query"
	"github.com/ricesearch/cisi-search/internal/search"
)

// Options configures an evaluation run.
type Options struct {
	KPolicy KPolicy
	K       int

	// ResultLimit is how many results are requested per query.
	ResultLimit int

	// Workers bounds the number of in-flight backend calls.
	Workers int

	// RateLimit caps query dispatch per second; zero disables it.
	RateLimit float64

	// QueryTimeout bounds each backend call.
	QueryTimeout time.Duration

	// Profile is the field weight profile used to formulate requests.
	Profile string

	// Fields overrides the profile weights when set.
	Fields query.FieldWeights
}

// DefaultOptions returns the evaluation defaults.
func DefaultOptions() Options {
	return Options{
		KPolicy:      KFixed,
		K:            10,
		ResultLimit:  100,
		Workers:      4,
		QueryTimeout: 10 * time.Second,
		Profile:      query.ProfileDefault,
	}
}

// OptionsFrom derives run options from application config.
func OptionsFrom(cfg config.EvaluationConfig) Options {
	return Options{
		KPolicy:      KPolicy(cfg.KPolicy),
		K:            cfg.K,
		ResultLimit:  cfg.ResultLimit,
		Workers:      cfg.Workers,
		RateLimit:    cfg.RateLimit,
		QueryTimeout: cfg.QueryTimeout,
		Profile:      cfg.Profile,
		Fields:       cfg.FieldWeights(),
	}
}

func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.KPolicy == "" {
		o.KPolicy = def.KPolicy
	}
	if o.K <= 0 {
		o.K = def.K
	}
	if o.ResultLimit <= 0 {
		o.ResultLimit = def.ResultLimit
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = def.QueryTimeout
	}
	if o.Profile == "" {
		o.Profile = def.Profile
	}
	return o
}

// Recorder receives per-query measurements. The metrics package implements
// it; the interface keeps this package free of Prometheus types.
type Recorder interface {
	RecordQuery(latency time.Duration, degraded bool)
	RecordSkipped(n int)
}

// Option customises an Evaluator.
type Option func(*Evaluator)

// WithBus publishes query and run events on b under the topic prefix.
func WithBus(b bus.Bus, topicPrefix string) Option {
	return func(e *Evaluator) {
		e.bus = b
		e.topicPrefix = topicPrefix
	}
}

// WithRecorder reports measurements to r.
func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

// WithProgress calls fn once per finished query, from worker goroutines.
func WithProgress(fn func()) Option {
	return func(e *Evaluator) { e.progress = fn }
}

// Evaluator runs the query set against a search backend and scores it.
type Evaluator struct {
	backend    search.Backend
	formulator *query.Formulator
	opts       Options
	log        *logger.Logger

	bus         bus.Bus
	topicPrefix string
	recorder    Recorder
	progress    func()
}

// NewEvaluator creates an evaluator.
func NewEvaluator(backend search.Backend, log *logger.Logger, opts Options, options ...Option) *Evaluator {
	if log == nil {
		log = logger.Discard()
	}
	e := &Evaluator{
		backend:    backend,
		formulator: query.NewFormulator(log),
		opts:       opts.normalize(),
		log:        log.WithComponent("evaluation"),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// RunCompleted is the payload of the run completed event.
type RunCompleted struct {
	Evaluated  int     `json:"evaluated"`
	Degraded   int     `json:"degraded"`
	Skipped    int     `json:"skipped"`
	MAP        float64 `json:"map"`
	MRR        float64 `json:"mrr"`
	DurationMs int64   `json:"duration_ms"`
}

// Run evaluates every query that has at least one relevant document. Backend
// failures degrade single queries; only cancellation of ctx aborts the run.
func (e *Evaluator) Run(ctx context.Context, c *corpus.Collection) (*CorpusReport, error) {
	start := time.Now()
	runID := bus.NewCorrelationID()

	var (
		queries []corpus.Query
		skipped []int
	)
	evaluated := make(map[int]struct{})
	for _, id := range c.QueryIDs() {
		if len(c.Judgments.Relevant(id)) == 0 {
			skipped = append(skipped, id)
			continue
		}
		queries = append(queries, c.Queries[id])
		evaluated[id] = struct{}{}
	}

	if e.recorder != nil && len(skipped) > 0 {
		e.recorder.RecordSkipped(len(skipped))
	}
	e.log.Info("starting evaluation",
		"run_id", runID,
		"queries", len(queries),
		"skipped", len(skipped),
		"k_policy", e.opts.KPolicy,
		"k", e.opts.K,
		"workers", e.opts.Workers,
	)

	var limiter *rate.Limiter
	if e.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.opts.RateLimit), 1)
	}

	reports := make([]MetricReport, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	var dispatchErr error
	for i, q := range queries {
		if limiter != nil {
			if dispatchErr = limiter.Wait(gctx); dispatchErr != nil {
				break
			}
		}
		if dispatchErr = gctx.Err(); dispatchErr != nil {
			break
		}

		g.Go(func() error {
			reports[i] = e.EvaluateQuery(gctx, q, c.Judgments.Relevant(q.ID))
			e.publish(gctx, runID, bus.TopicQueryCompleted, reports[i])
			if e.progress != nil {
				e.progress()
			}
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	report := Aggregate(reports, evaluated)
	report.KPolicy = e.opts.KPolicy
	if e.opts.KPolicy == KFixed {
		report.K = e.opts.K
	}
	report.Skipped = skipped
	if report.Skipped == nil {
		report.Skipped = []int{}
	}

	elapsed := time.Since(start)
	e.publish(ctx, runID, bus.TopicRunCompleted, RunCompleted{
		Evaluated:  report.Evaluated,
		Degraded:   report.Degraded,
		Skipped:    len(skipped),
		MAP:        report.MAP,
		MRR:        report.MRR,
		DurationMs: elapsed.Milliseconds(),
	})
	e.log.Info("evaluation finished",
		"run_id", runID,
		"evaluated", report.Evaluated,
		"degraded", report.Degraded,
		"map", report.MAP,
		"duration", elapsed.Round(time.Millisecond),
	)

	return &report, nil
}

// EvaluateQuery searches for one query and scores the result. It never
// fails: a formulation or backend error yields a degraded zero report.
func (e *Evaluator) EvaluateQuery(ctx context.Context, q corpus.Query, relevant map[int]struct{}) MetricReport {
	k := e.opts.KPolicy.Cutoff(e.opts.K, len(relevant))
	log := e.log.WithQuery(q.ID)

	start := time.Now()
	ranked, err := e.retrieve(ctx, q)
	latency := time.Since(start)

	switch {
	case apperrors.IsValidation(err):
		log.Info("query cannot be searched", "reason", degradedReason(err))
	case err != nil:
		log.WithError(err).Warn("query degraded", "latency", latency.Round(time.Millisecond))
	}
	if err != nil {
		ranked = nil
	}

	report := Score(ranked, relevant, k)
	report.QueryID = q.ID
	if err != nil {
		report.Degraded = true
		report.Error = degradedReason(err)
	}

	if e.recorder != nil {
		e.recorder.RecordQuery(latency, report.Degraded)
	}
	log.Debug("query scored",
		"k", k,
		"retrieved", report.Retrieved,
		"hits", report.Hits,
		"ap", report.AveragePrecision,
	)
	return report
}

func (e *Evaluator) retrieve(ctx context.Context, q corpus.Query) ([]int, error) {
	req, err := e.formulator.FromText(q.Text, query.Options{
		Mode:    query.ModeRelevance,
		Profile: e.opts.Profile,
		Fields:  e.opts.Fields,
		Fuzzy:   true,
		Limit:   e.opts.ResultLimit,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	resp, err := e.backend.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.DocIDs(), nil
}

func (e *Evaluator) publish(ctx context.Context, runID, name string, payload any) {
	if e.bus == nil {
		return
	}
	event := bus.NewEvent(name, "evaluator", payload)
	event.CorrelationID = runID
	if err := e.bus.Publish(context.WithoutCancel(ctx), bus.Topic(e.topicPrefix, name), event); err != nil {
		e.log.WithError(err).Warn("failed to publish event", "topic", name)
	}
}

// degradedReason keeps the report free of transport details.
func degradedReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Message
	}
	return "search failed"
}
