// Package rules turns sensor readings and pattern history into states,
// patterns, causes, predictions and resolutions. Rule documents are loaded
// once and validated up front; per-call misses are reported as absent
// results, never as errors.
package rules

import (
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/rules/condition"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
	"github.com/cognicore/celldiag/pkg/celldiag/store"
)

// DefaultPredictionConfidence applies to prediction rules that leave
// confidence unset.
const DefaultPredictionConfidence = 0.6

// PatternID maps a detector type to its canonical graph id, e.g.
// collision -> PAT_COLLISION.
func PatternID(t signals.PatternType) string {
	return "PAT_" + strings.ToUpper(string(t))
}

// PatternTypeOf is the inverse of PatternID.
func PatternTypeOf(id string) (signals.PatternType, bool) {
	for _, t := range signals.AllPatternTypes {
		if PatternID(t) == id {
			return t, true
		}
	}
	return "", false
}

// Engine evaluates the rule documents against one graph snapshot.
type Engine struct {
	cfg    Config
	axes   map[string][]Bracket // lower-cased axis name
	idx    *ontology.Index
	eval   *condition.Evaluator
	logger *zap.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New validates cfg and returns an engine bound to idx.
func New(cfg Config, idx *ontology.Index, logger *zap.Logger) (*Engine, error) {
	if idx == nil {
		return nil, fmt.Errorf("rules: nil graph index: %w", internalerr.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	axes := make(map[string][]Bracket, len(cfg.States.Axes))
	for name, b := range cfg.States.Axes {
		axes[strings.ToLower(name)] = b
	}
	return &Engine{
		cfg:     cfg,
		axes:    axes,
		idx:     idx,
		eval:    condition.NewEvaluator(),
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Config returns the validated rule configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) newEventID(at time.Time) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), e.entropy).String()
}

// InferState returns the first configured bracket on axis containing value.
// Unconfigured axes and out-of-range values report false.
func (e *Engine) InferState(axis string, value float64) (StateResult, bool) {
	brackets, ok := e.cfg.States.Axes[axis]
	if !ok {
		brackets, ok = e.axes[strings.ToLower(axis)]
	}
	if !ok {
		return StateResult{}, false
	}
	for _, b := range brackets {
		if b.Contains(value) {
			label := b.Label
			if label == "" {
				label = b.State
			}
			return StateResult{
				Axis:       axis,
				Value:      value,
				State:      b.State,
				Label:      label,
				Severity:   b.Severity,
				Confidence: 1.0,
			}, true
		}
	}
	return StateResult{}, false
}

// Detect runs all four detectors with the configured thresholds.
func (e *Engine) Detect(s signals.Series) []signals.Detection {
	t := e.cfg.Thresholds
	var out []signals.Detection
	out = append(out, signals.DetectCollision(s.Values, s.TimestampsMS, *t.Collision)...)
	out = append(out, signals.DetectOverload(s.Values, s.TimestampsMS, *t.Overload)...)
	out = append(out, signals.DetectDrift(s.Values, s.TimestampsMS, *t.Drift)...)
	out = append(out, signals.DetectVibration(s.Values, s.TimestampsMS, *t.Vibration)...)
	return out
}

// InferCause ranks the candidate causes of a pattern. Configured cause
// rules take precedence; a pattern without rules falls back to its
// indicates edges with the edge confidence as base. Each satisfied boost
// adds to the base and the total is capped at 1.
func (e *Engine) InferCause(patternID string, facts map[string]any) []CauseResult {
	var out []CauseResult
	if rules, ok := e.cfg.Inference.Causes[patternID]; ok {
		for _, r := range rules {
			res := CauseResult{
				PatternID:  patternID,
				CauseID:    r.Cause,
				Name:       e.name(r.Cause),
				Base:       r.BaseConfidence,
				Confidence: r.BaseConfidence,
			}
			for _, b := range r.Boosts {
				if e.eval.Satisfied(b.Condition, facts) {
					res.Confidence += b.Boost
					res.Applied = append(res.Applied, b.Condition.String())
				}
			}
			res.Confidence = clamp01(res.Confidence)
			out = append(out, res)
		}
	} else {
		for _, edge := range e.idx.Outgoing(patternID) {
			if edge.Relation != ontology.RelIndicates {
				continue
			}
			out = append(out, CauseResult{
				PatternID:  patternID,
				CauseID:    edge.Other,
				Name:       e.name(edge.Other),
				Base:       edge.Confidence,
				Confidence: edge.Confidence,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// PredictError evaluates the prediction rules over history. Frequency
// windows end at the most recent event in the whole history so that
// replayed or archived logs predict the same way as live ones.
func (e *Engine) PredictError(history []store.DetectedPattern) []Prediction {
	if len(history) == 0 || len(e.cfg.Inference.Predictions) == 0 {
		return nil
	}
	var latest time.Time
	for _, p := range history {
		if p.Timestamp.After(latest) {
			latest = p.Timestamp
		}
	}

	var out []Prediction
	for _, r := range e.cfg.Inference.Predictions {
		var target []store.DetectedPattern
		for _, p := range history {
			if p.PatternID == r.Pattern {
				target = append(target, p)
			}
		}
		if len(target) == 0 {
			continue
		}
		conf := r.Confidence
		if conf == 0 {
			conf = DefaultPredictionConfidence
		}

		switch r.Kind {
		case KindFrequency:
			window := time.Duration(r.WindowHours * float64(time.Hour))
			n := signals.CountInWindow(store.Events(target, ""), latest.UnixMilli(), window.Milliseconds())
			if n < r.MinCount {
				continue
			}
			msg := r.Message
			if msg == "" {
				msg = fmt.Sprintf("%d %s events in %gh: %s likely", n, r.Pattern, r.WindowHours, e.name(r.Predicts))
			}
			out = append(out, Prediction{
				Rule:       r.Name,
				Kind:       r.Kind,
				PatternID:  r.Pattern,
				Predicts:   r.Predicts,
				Confidence: conf,
				Message:    msg,
				Evidence: map[string]any{
					"count":        n,
					"window_hours": r.WindowHours,
					"min_count":    r.MinCount,
					"window_end":   latest,
				},
			})

		case KindTrend:
			if r.MinCount > 0 && len(target) < r.MinCount {
				continue
			}
			tr, ok := signals.CompareHalves(store.Events(target, r.IntensityField), r.IntensityField != "")
			if !ok || tr.Direction != r.Direction {
				continue
			}
			msg := r.Message
			if msg == "" {
				msg = fmt.Sprintf("%s is %s: %s likely", r.Pattern, tr.Direction, e.name(r.Predicts))
			}
			ev := map[string]any{
				"direction":    tr.Direction,
				"first_count":  tr.FirstCount,
				"second_count": tr.SecondCount,
			}
			if tr.ByIntensity {
				ev["intensity_field"] = r.IntensityField
				ev["first_mean"] = tr.FirstMean
				ev["second_mean"] = tr.SecondMean
			}
			out = append(out, Prediction{
				Rule:       r.Name,
				Kind:       r.Kind,
				PatternID:  r.Pattern,
				Predicts:   r.Predicts,
				Confidence: conf,
				Message:    msg,
				Evidence:   ev,
			})
		}
	}
	return out
}

// Resolution follows the first resolved_by edge out of causeID.
func (e *Engine) Resolution(causeID string) (Resolution, bool) {
	for _, edge := range e.idx.Outgoing(causeID) {
		if edge.Relation != ontology.RelResolvedBy {
			continue
		}
		res := Resolution{
			CauseID:      causeID,
			ResolutionID: edge.Other,
			Name:         edge.Other,
			Confidence:   edge.Confidence,
		}
		if ent, ok := e.idx.Entity(edge.Other); ok {
			if ent.Name != "" {
				res.Name = ent.Name
			}
			res.Steps = ent.StringsProp("steps")
		}
		return res, true
	}
	return Resolution{}, false
}

// RelatedErrors lists the error codes a pattern triggers.
func (e *Engine) RelatedErrors(patternID string) []string {
	return e.idx.Targets(patternID, ontology.RelTriggers)
}

// FullResult collects everything one inference pass produced.
type FullResult struct {
	States      []InferenceResult
	Patterns    []InferenceResult
	Causes      []InferenceResult
	Resolutions []InferenceResult

	// Detected holds the history records for the patterns found.
	Detected []store.DetectedPattern
}

// FullInference chains state inference on each series' latest sample, all
// detectors, cause inference per detected pattern and resolution lookup per
// cause. Each pattern id and cause id is expanded once per call.
func (e *Engine) FullInference(series []signals.Series, facts map[string]any) FullResult {
	var res FullResult
	seenPattern := make(map[string]bool)
	seenCause := make(map[string]bool)

	for _, s := range series {
		if v, _, ok := s.Latest(); ok {
			if st, ok := e.InferState(s.Axis, v); ok {
				res.States = append(res.States, st.Result())
			}
		}

		for _, d := range e.Detect(s) {
			pid := PatternID(d.Type)
			res.Patterns = append(res.Patterns, patternResult(pid, s.Axis, d))
			at := time.UnixMilli(d.StartMS).UTC()
			res.Detected = append(res.Detected, store.DetectedPattern{
				EventID:       e.newEventID(at),
				PatternID:     pid,
				Type:          d.Type,
				Axis:          s.Axis,
				Timestamp:     at,
				Duration:      time.Duration(d.DurationMS()) * time.Millisecond,
				Confidence:    d.Confidence,
				Metrics:       d.Metrics,
				RelatedErrors: e.RelatedErrors(pid),
				Context:       copyFacts(facts),
			})

			if seenPattern[pid] {
				continue
			}
			seenPattern[pid] = true
			for _, c := range e.InferCause(pid, facts) {
				res.Causes = append(res.Causes, c.Result())
				if seenCause[c.CauseID] {
					continue
				}
				seenCause[c.CauseID] = true
				if r, ok := e.Resolution(c.CauseID); ok {
					res.Resolutions = append(res.Resolutions, r.Result())
				}
			}
		}
	}

	e.logger.Debug("full inference",
		zap.Int("series", len(series)),
		zap.Int("states", len(res.States)),
		zap.Int("patterns", len(res.Patterns)),
		zap.Int("causes", len(res.Causes)))
	return res
}

func (e *Engine) name(id string) string {
	if ent, ok := e.idx.Entity(id); ok && ent.Name != "" {
		return ent.Name
	}
	return id
}

func copyFacts(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
