// Package reasoning composes graph traversal and rule inference into an
// answer for one classified question.
//
// A question is dispatched through an ordered route table. The first route
// whose predicate matches handles the whole question; when none does, each
// entity is handed to the first matching entity route. Every route fills
// the same Result shape, so callers never branch on the route taken.
package reasoning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/lexicon"
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/rules"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
	"github.com/cognicore/celldiag/pkg/celldiag/traverse"
)

// History is the read-only view of the detected-pattern log.
type History interface {
	Query(ctx context.Context, f store.Filter) ([]store.DetectedPattern, error)
}

// Config tunes the reasoner.
type Config struct {
	// MagnitudeBound is the absolute reading above which an elevated state
	// is matched to a pattern class.
	// Default: 300
	MagnitudeBound float64 `yaml:"magnitude_bound" mapstructure:"magnitude_bound"`

	// MaintenanceWindow is how far back maintenance status looks.
	// Default: 7 days
	MaintenanceWindow time.Duration `yaml:"maintenance_window" mapstructure:"maintenance_window"`

	// AttentionCount is the pattern count that raises maintenance status
	// to attention.
	// Default: 5
	AttentionCount int `yaml:"attention_count" mapstructure:"attention_count"`

	// PathDepth bounds relationship searches.
	// Default: 4
	PathDepth int `yaml:"path_depth" mapstructure:"path_depth"`

	// ContextDepth bounds the neighbourhood shown with a definition.
	// Default: 1
	ContextDepth int `yaml:"context_depth" mapstructure:"context_depth"`
}

// DefaultConfig returns the standard reasoner settings.
func DefaultConfig() Config {
	return Config{
		MagnitudeBound:    300,
		MaintenanceWindow: 7 * 24 * time.Hour,
		AttentionCount:    5,
		PathDepth:         4,
		ContextDepth:      1,
	}
}

// Options wires a Reasoner. Traverser and Rules are required; a nil
// Lexicon uses the built-in vocabulary and a nil History disables
// history-based answers.
type Options struct {
	Traverser *traverse.Traverser
	Rules     *rules.Engine
	Lexicon   *lexicon.Lexicon
	History   History
	Config    Config
	Logger    *zap.Logger
	Now       func() time.Time
}

// Reasoner answers questions against one graph snapshot. It holds no
// per-call state and is safe for concurrent use.
type Reasoner struct {
	trav    *traverse.Traverser
	idx     *ontology.Index
	eng     *rules.Engine
	lex     *lexicon.Lexicon
	history History
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a reasoner. A zero Config selects DefaultConfig.
func New(opts Options) (*Reasoner, error) {
	if opts.Traverser == nil || opts.Rules == nil {
		return nil, fmt.Errorf("reasoning: traverser and rule engine are required: %w", internalerr.ErrInvalidInput)
	}
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	lex := opts.Lexicon
	if lex == nil {
		lex = lexicon.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Reasoner{
		trav:    opts.Traverser,
		idx:     opts.Traverser.Index(),
		eng:     opts.Rules,
		lex:     lex,
		history: opts.History,
		cfg:     cfg,
		logger:  logger,
		now:     now,
	}, nil
}

// route handles a whole question.
type route struct {
	Name   string
	Match  func(r *Reasoner, q Query) bool
	Handle func(r *Reasoner, ctx context.Context, q Query, out *run)
}

// entityRoute handles one entity of a question.
type entityRoute struct {
	Name   string
	Match  func(r *Reasoner, q Query, e Entity) bool
	Handle func(r *Reasoner, ctx context.Context, q Query, e Entity, out *run)
}

// RouteEntities names the fallback that walks the entities one by one.
const RouteEntities = "entities"

// routes are tried in order; the first match answers the question.
var routes = []route{
	{Name: "relationship", Match: (*Reasoner).isRelationship, Handle: (*Reasoner).relationship},
	{Name: "comparison", Match: (*Reasoner).isComparison, Handle: (*Reasoner).comparison},
	{Name: "resolution", Match: (*Reasoner).isResolution, Handle: (*Reasoner).resolution},
}

// entityRoutes are tried in order for every entity.
var entityRoutes = []entityRoute{
	{Name: "definition", Match: (*Reasoner).isDefinition, Handle: (*Reasoner).definition},
	{Name: "specification", Match: (*Reasoner).isSpecification, Handle: (*Reasoner).specification},
	{Name: "measurement", Match: (*Reasoner).isMeasurement, Handle: (*Reasoner).measurement},
	{Name: "pattern", Match: (*Reasoner).isPattern, Handle: (*Reasoner).pattern},
	{Name: "error_code", Match: (*Reasoner).isErrorCode, Handle: (*Reasoner).errorCode},
	{Name: "error_category", Match: (*Reasoner).isErrorCategory, Handle: (*Reasoner).errorCategory},
	{Name: "maintenance", Match: (*Reasoner).isMaintenance, Handle: (*Reasoner).maintenance},
}

// RouteNames lists the question routes and entity routes in priority order.
func RouteNames() []string {
	names := make([]string, 0, len(routes)+len(entityRoutes))
	for _, rt := range routes {
		names = append(names, rt.Name)
	}
	for _, rt := range entityRoutes {
		names = append(names, rt.Name)
	}
	return names
}

// Reason answers q. Misses and history failures show up as chain steps and
// missing conclusions, never as errors.
func (r *Reasoner) Reason(ctx context.Context, q Query) Result {
	for _, rt := range routes {
		if !rt.Match(r, q) {
			continue
		}
		out := newRun(rt.Name)
		rt.Handle(r, ctx, q, out)
		res := out.finish()
		r.logResult(q, res)
		return res
	}

	out := newRun(RouteEntities)
	maintained := false
	for _, e := range q.Entities {
		handled := false
		for _, rt := range entityRoutes {
			if !rt.Match(r, q, e) {
				continue
			}
			handled = true
			if rt.Name == "maintenance" {
				// status covers the whole cell, once per question
				if maintained {
					break
				}
				maintained = true
			}
			rt.Handle(r, ctx, q, e, out)
			break
		}
		if !handled {
			r.logger.Debug("no route for entity",
				zap.String("entity", e.ID),
				zap.String("type", string(e.Type)),
				zap.String("intent", string(q.Intent)))
		}
	}
	res := out.finish()
	r.logResult(q, res)
	return res
}

func (r *Reasoner) logResult(q Query, res Result) {
	r.logger.Debug("reasoning complete",
		zap.String("route", res.Route),
		zap.String("intent", string(q.Intent)),
		zap.Int("entities", len(q.Entities)),
		zap.Int("conclusions", len(res.Conclusions)),
		zap.Int("paths", len(res.Paths)),
		zap.Float64("confidence", res.Confidence))
}

// graphID maps an extracted entity to a graph id. Pattern entities may
// carry a keyword instead of an id and go through the lexicon.
func (r *Reasoner) graphID(e Entity) (string, bool) {
	if _, ok := r.idx.Entity(e.ID); ok {
		return e.ID, true
	}
	if e.Type == ontology.TypePattern {
		if id, ok := r.lex.ResolvePattern(e.ID); ok {
			return id, true
		}
		if id, ok := r.lex.ResolvePattern(e.Text); ok {
			return id, true
		}
	}
	return "", false
}

func (r *Reasoner) name(id string) string {
	if e, ok := r.idx.Entity(id); ok && e.Name != "" {
		return e.Name
	}
	return id
}
