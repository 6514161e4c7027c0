package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/cognicore/celldiag/pkg/celldiag/signals"
)

// ResultType classifies an InferenceResult.
type ResultType string

const (
	ResultState      ResultType = "state"
	ResultPattern    ResultType = "pattern"
	ResultCause      ResultType = "cause"
	ResultPrediction ResultType = "prediction"
	ResultResolution ResultType = "resolution"
)

// InferenceResult is the uniform record every rule produces. It lives for a
// single call.
type InferenceResult struct {
	RuleName   string         `json:"rule_name"`
	Type       ResultType     `json:"type"`
	ResultID   string         `json:"result_id"`
	Confidence float64        `json:"confidence"`
	Evidence   map[string]any `json:"evidence,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// StateResult is the bracket a value fell into.
type StateResult struct {
	Axis       string
	Value      float64
	State      string
	Label      string
	Severity   Severity
	Confidence float64
}

// Result converts to the uniform record.
func (s StateResult) Result() InferenceResult {
	return InferenceResult{
		RuleName:   "state_range",
		Type:       ResultState,
		ResultID:   s.State,
		Confidence: s.Confidence,
		Evidence: map[string]any{
			"axis":     s.Axis,
			"value":    s.Value,
			"severity": string(s.Severity),
		},
		Message: fmt.Sprintf("%s = %g is %s (%s)", s.Axis, s.Value, s.Label, s.Severity),
	}
}

// CauseResult is a candidate cause with its boosted confidence.
type CauseResult struct {
	PatternID  string
	CauseID    string
	Name       string
	Base       float64
	Confidence float64
	Applied    []string // conditions that contributed a boost
}

// Result converts to the uniform record.
func (c CauseResult) Result() InferenceResult {
	ev := map[string]any{
		"pattern_id":      c.PatternID,
		"base_confidence": c.Base,
	}
	if len(c.Applied) > 0 {
		ev["boosts"] = c.Applied
	}
	return InferenceResult{
		RuleName:   "cause_" + strings.ToLower(c.PatternID),
		Type:       ResultCause,
		ResultID:   c.CauseID,
		Confidence: c.Confidence,
		Evidence:   ev,
		Message:    fmt.Sprintf("%s may be caused by %s", c.PatternID, c.Name),
	}
}

// Prediction is a forecast error produced by a prediction rule.
type Prediction struct {
	Rule       string
	Kind       string
	PatternID  string
	Predicts   string
	Confidence float64
	Message    string
	Evidence   map[string]any
}

// Result converts to the uniform record.
func (p Prediction) Result() InferenceResult {
	return InferenceResult{
		RuleName:   p.Rule,
		Type:       ResultPrediction,
		ResultID:   p.Predicts,
		Confidence: p.Confidence,
		Evidence:   p.Evidence,
		Message:    p.Message,
	}
}

// Resolution is the remedy linked to a cause.
type Resolution struct {
	CauseID      string
	ResolutionID string
	Name         string
	Steps        []string
	Confidence   float64
}

// Result converts to the uniform record.
func (r Resolution) Result() InferenceResult {
	return InferenceResult{
		RuleName:   "resolution_lookup",
		Type:       ResultResolution,
		ResultID:   r.ResolutionID,
		Confidence: r.Confidence,
		Evidence: map[string]any{
			"cause_id": r.CauseID,
			"steps":    r.Steps,
		},
		Message: r.Name,
	}
}

func patternResult(patternID, axis string, d signals.Detection) InferenceResult {
	ev := map[string]any{
		"axis":        axis,
		"start_ms":    d.StartMS,
		"end_ms":      d.EndMS,
		"duration_ms": d.DurationMS(),
	}
	for k, v := range d.Metrics {
		ev[k] = v
	}
	return InferenceResult{
		RuleName:   "detect_" + string(d.Type),
		Type:       ResultPattern,
		ResultID:   patternID,
		Confidence: d.Confidence,
		Evidence:   ev,
		Message:    fmt.Sprintf("%s detected on %s", d.Type, axis),
	}
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
