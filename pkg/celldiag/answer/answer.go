// Package answer assembles the payload handed to the presentation layer:
// the reasoning output, the gate verdict and, on abstain, the fixed apology
// with guidance.
package answer

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/celldiag/pkg/celldiag/gate"
	"github.com/cognicore/celldiag/pkg/celldiag/reasoning"
	"github.com/cognicore/celldiag/pkg/celldiag/rules"
)

// Apology opens every abstain message.
const Apology = "Sorry, there is not enough evidence to answer this reliably."

var guidance = map[gate.Reason]string{
	gate.ReasonLowClassification:      "Try asking more specifically, for example about one axis, error code or pattern.",
	gate.ReasonNoEntities:             "Mention the axis, error code, pattern or component you are asking about.",
	gate.ReasonLowEntityConfidence:    "Use the exact names of axes, error codes or components.",
	gate.ReasonInsufficientReasoning:  "The knowledge graph holds nothing about this question yet.",
	gate.ReasonLowReasoningConfidence: "Add context such as the reading, the error code or what changed in the cell.",
	gate.ReasonLowFinalConfidence:     "Add context such as the reading, the error code or what changed in the cell.",
}

// Guidance returns the hint shown for an abstain reason.
func Guidance(r gate.Reason) string {
	if g, ok := guidance[r]; ok {
		return g
	}
	return "Try rephrasing the question."
}

// Answer is the consumer contract. On abstain the findings are withheld;
// the chain and paths stay for evidence lookup by trace id.
type Answer struct {
	TraceID         string                     `json:"trace_id"`
	Passed          bool                       `json:"passed"`
	AbstainReason   gate.Reason                `json:"abstain_reason,omitempty"`
	Message         string                     `json:"message"`
	Confidence      float64                    `json:"confidence"`
	Warnings        []string                   `json:"warnings,omitempty"`
	Route           string                     `json:"route"`
	Chain           []reasoning.ChainStep      `json:"reasoning_chain"`
	Conclusions     []reasoning.Conclusion     `json:"conclusions,omitempty"`
	Predictions     []rules.Prediction         `json:"predictions,omitempty"`
	Recommendations []reasoning.Recommendation `json:"recommendations,omitempty"`
	OntologyPaths   []string                   `json:"ontology_paths"`
	Evidence        []rules.InferenceResult    `json:"evidence,omitempty"`
}

// Builder issues trace ids and assembles answers. Safe for concurrent use.
type Builder struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewBuilder creates a builder using the wall clock.
func NewBuilder() *Builder {
	return &Builder{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// TraceID returns a new sortable trace id.
func (b *Builder) TraceID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(b.now()), b.entropy).String()
}

// Build combines a reasoning result and its verdict. An empty traceID gets
// a fresh one.
func (b *Builder) Build(traceID string, res reasoning.Result, v gate.Verdict) Answer {
	if traceID == "" {
		traceID = b.TraceID()
	}
	a := Answer{
		TraceID:       traceID,
		Passed:        v.Passed,
		Confidence:    v.Confidence,
		Warnings:      v.Warnings,
		Route:         res.Route,
		Chain:         res.Chain,
		OntologyPaths: res.EvidencePaths(),
	}
	if !v.Passed {
		a.AbstainReason = v.Reason
		a.Message = AbstainMessage(v.Reason, traceID)
		return a
	}
	a.Conclusions = res.Conclusions
	a.Predictions = res.Predictions
	a.Recommendations = res.Recommendations
	a.Evidence = res.Evidence
	a.Message = Summary(res)
	return a
}

// AbstainMessage renders the fixed apology, the guidance, the reason code
// and the trace id.
func AbstainMessage(r gate.Reason, traceID string) string {
	return fmt.Sprintf("%s %s (reason: %s, trace: %s)", Apology, Guidance(r), r, traceID)
}

// Summary is the statement of the most confident conclusion, first wins on
// ties.
func Summary(res reasoning.Result) string {
	best := -1
	for i, c := range res.Conclusions {
		if best < 0 || c.Weight() > res.Conclusions[best].Weight() {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return res.Conclusions[best].Statement
}
