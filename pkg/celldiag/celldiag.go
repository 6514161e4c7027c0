// Package celldiag wires the diagnostic pipeline for a robot cell: graph
// snapshot, rule engine, reasoner, confidence gate and pattern history.
//
// An App holds the active snapshot behind an atomic pointer. Reload builds
// a complete new snapshot and swaps it in; calls already running keep the
// one they started with.
package celldiag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/celldiag/pkg/celldiag/answer"
	"github.com/cognicore/celldiag/pkg/celldiag/config"
	"github.com/cognicore/celldiag/pkg/celldiag/gate"
	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/lexicon"
	"github.com/cognicore/celldiag/pkg/celldiag/metrics"
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/reasoning"
	"github.com/cognicore/celldiag/pkg/celldiag/rules"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
	"github.com/cognicore/celldiag/pkg/celldiag/store/memstore"
	"github.com/cognicore/celldiag/pkg/celldiag/traverse"
)

// Snapshot is one consistent, immutable set of graph, rules and vocabulary.
type Snapshot struct {
	Schema    *ontology.Schema
	Index     *ontology.Index
	Traverser *traverse.Traverser
	Rules     *rules.Engine
	Lexicon   *lexicon.Lexicon
	Reasoner  *reasoning.Reasoner
	LoadedAt  time.Time
}

// Options configures an App. Loader is required; a nil History keeps the
// pattern log in memory.
type Options struct {
	Loader    *config.Loader
	History   store.Store
	Gate      gate.Thresholds
	Reasoning reasoning.Config
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Now       func() time.Time

	// Closers run on Close after the history store, in order.
	Closers []func(context.Context) error
}

// App is the application context. It is safe for concurrent use.
type App struct {
	loader  *config.Loader
	st      store.Store
	history *store.Log
	gate    *gate.Gate
	answers *answer.Builder
	rcfg    reasoning.Config
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	closers []func(context.Context) error

	reloadMu sync.Mutex
	snap     atomic.Pointer[Snapshot]
}

// New creates an App and loads the first snapshot.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("celldiag: loader is required: %w", internalerr.ErrInvalidInput)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	st := opts.History
	if st == nil {
		st = memstore.New()
	}

	a := &App{
		loader:  opts.Loader,
		st:      st,
		history: store.NewLog(st, logger),
		gate:    gate.New(opts.Gate),
		answers: answer.NewBuilder(),
		rcfg:    opts.Reasoning,
		metrics: opts.Metrics,
		logger:  logger,
		now:     now,
		closers: opts.Closers,
	}
	if err := a.Reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the history store and any closers passed in Options.
func (a *App) Close(ctx context.Context) error {
	errs := []error{a.st.Close()}
	for _, c := range a.closers {
		errs = append(errs, c(ctx))
	}
	return errors.Join(errs...)
}

// Reload loads the documents again and swaps in a new snapshot. On error
// the current snapshot stays active. On success the history cache is
// dropped too, so records written by other processes become visible.
func (a *App) Reload(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	snap, err := a.build(ctx)
	if err != nil {
		a.metrics.ObserveReload(err, 0)
		a.logger.Error("reload failed", zap.Error(err))
		return err
	}
	a.snap.Store(snap)
	a.history.Invalidate()
	a.metrics.ObserveReload(nil, len(snap.Schema.Entities))
	a.logger.Info("snapshot loaded",
		zap.String("schema_version", snap.Schema.Version),
		zap.Int("entities", len(snap.Schema.Entities)),
		zap.Int("relationships", len(snap.Schema.Relationships)))
	return nil
}

func (a *App) build(ctx context.Context) (*Snapshot, error) {
	comp, err := a.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	idx := ontology.NewIndex(comp.Schema)
	eng, err := rules.New(comp.Rules, idx, a.logger.Named("rules"))
	if err != nil {
		return nil, fmt.Errorf("build rule engine: %w", err)
	}
	trav := traverse.New(idx)
	r, err := reasoning.New(reasoning.Options{
		Traverser: trav,
		Rules:     eng,
		Lexicon:   comp.Lexicon,
		History:   a.history,
		Config:    a.rcfg,
		Logger:    a.logger.Named("reasoning"),
		Now:       a.now,
	})
	if err != nil {
		return nil, fmt.Errorf("build reasoner: %w", err)
	}
	return &Snapshot{
		Schema:    comp.Schema,
		Index:     idx,
		Traverser: trav,
		Rules:     eng,
		Lexicon:   comp.Lexicon,
		Reasoner:  r,
		LoadedAt:  a.now(),
	}, nil
}

// Snapshot returns the active snapshot.
func (a *App) Snapshot() *Snapshot {
	return a.snap.Load()
}

// History returns the pattern log shared by every snapshot.
func (a *App) History() *store.Log {
	return a.history
}

// Request is one classified question.
type Request struct {
	// TraceID is echoed in the answer; empty gets a fresh one.
	TraceID string

	Query reasoning.Query

	// ClassifierConfidence is the upstream intent classifier's score.
	ClassifierConfidence float64
}

// Ask reasons over a question, gates the result and assembles the answer.
// Insufficient evidence is an abstaining answer, not an error.
func (a *App) Ask(ctx context.Context, req Request) answer.Answer {
	snap := a.snap.Load()

	start := time.Now()
	res := snap.Reasoner.Reason(ctx, req.Query)
	a.metrics.ObserveQuestion(res.Route, time.Since(start))

	v := a.gate.Evaluate(req.ClassifierConfidence, req.Query.Entities, res)
	a.metrics.ObserveVerdict(v.Passed, string(v.Reason), v.Confidence)

	ans := a.answers.Build(req.TraceID, res, v)
	a.logger.Info("question answered",
		zap.String("trace_id", ans.TraceID),
		zap.String("intent", string(req.Query.Intent)),
		zap.String("route", res.Route),
		zap.Bool("passed", v.Passed),
		zap.String("reason", string(v.Reason)),
		zap.Float64("confidence", v.Confidence))
	return ans
}

// Detect runs full inference over sensor series without recording anything.
func (a *App) Detect(series []signals.Series, facts map[string]any) rules.FullResult {
	return a.snap.Load().Rules.FullInference(series, facts)
}

// RecordDetections runs full inference and appends every detected pattern
// to the history log.
func (a *App) RecordDetections(ctx context.Context, series []signals.Series, facts map[string]any) (rules.FullResult, error) {
	res := a.Detect(series, facts)
	if err := a.history.Append(ctx, res.Detected...); err != nil {
		return res, err
	}
	for _, d := range res.Detected {
		a.metrics.ObserveDetection(string(d.Type))
	}
	if len(res.Detected) > 0 {
		a.logger.Info("patterns recorded", zap.Int("count", len(res.Detected)))
	}
	return res, nil
}

// Stats describes the active snapshot.
type Stats struct {
	SchemaVersion string               `json:"schema_version"`
	LoadedAt      time.Time            `json:"loaded_at"`
	Graph         ontology.Stats       `json:"graph"`
	Lexicon       lexicon.LexiconStats `json:"lexicon"`
	HistoryEvents int                  `json:"history_events"`
}

// Stats summarises the active snapshot and the history size.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	snap := a.snap.Load()
	all, err := a.history.All(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		SchemaVersion: snap.Schema.Version,
		LoadedAt:      snap.LoadedAt,
		Graph:         snap.Index.Statistics(),
		Lexicon:       snap.Lexicon.Stats(),
		HistoryEvents: len(all),
	}, nil
}
