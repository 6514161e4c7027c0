package reasoning

import (
	"github.com/cognicore/celldiag/pkg/celldiag/rules"
	"github.com/cognicore/celldiag/pkg/celldiag/traverse"
)

const (
	// UnscoredConfidence stands in for conclusions that carry no score of
	// their own when the overall confidence is averaged.
	UnscoredConfidence = 0.8

	// EmptyConfidence is reported when no conclusion could be drawn.
	EmptyConfidence = 0.3

	// UnknownCodeConfidence scores the "not a registered error code" answer.
	UnknownCodeConfidence = 0.4
)

// ConclusionType tags a Conclusion.
type ConclusionType string

const (
	ConclusionState             ConclusionType = "state"
	ConclusionCause             ConclusionType = "cause"
	ConclusionPattern           ConclusionType = "pattern"
	ConclusionTriggeredError    ConclusionType = "triggered_error"
	ConclusionTriggeringPattern ConclusionType = "triggering_pattern"
	ConclusionDefinition        ConclusionType = "definition"
	ConclusionSpecification     ConclusionType = "specification"
	ConclusionComparison        ConclusionType = "comparison"
	ConclusionResolution        ConclusionType = "resolution"
	ConclusionMaintenance       ConclusionType = "maintenance_status"
	ConclusionPatternHistory    ConclusionType = "pattern_history"
	ConclusionRelationship      ConclusionType = "relationship"
)

// ChainStep is one line of the explanation trace.
type ChainStep struct {
	Step        int    `json:"step"`
	Description string `json:"description"`
	Result      string `json:"result"`
}

// Conclusion is a typed finding. Scored is false for narrative findings
// that have no confidence of their own.
type Conclusion struct {
	Type       ConclusionType `json:"type"`
	Subject    string         `json:"subject"`
	Statement  string         `json:"statement"`
	Confidence float64        `json:"confidence"`
	Scored     bool           `json:"scored"`
	Data       map[string]any `json:"data,omitempty"`
}

// Weight is the confidence used when averaging.
func (c Conclusion) Weight() float64 {
	if !c.Scored {
		return UnscoredConfidence
	}
	return c.Confidence
}

// Recommendation is a remedy with the cause it addresses.
type Recommendation struct {
	ResolutionID string   `json:"resolution_id"`
	Name         string   `json:"name"`
	CauseID      string   `json:"cause_id,omitempty"`
	Steps        []string `json:"steps,omitempty"`
	Confidence   float64  `json:"confidence"`
}

// Result is the uniform payload every route produces.
type Result struct {
	Route           string                  `json:"route"`
	Chain           []ChainStep             `json:"reasoning_chain"`
	Conclusions     []Conclusion            `json:"conclusions"`
	Predictions     []rules.Prediction      `json:"predictions"`
	Recommendations []Recommendation        `json:"recommendations"`
	Paths           []traverse.Path         `json:"paths"`
	Evidence        []rules.InferenceResult `json:"evidence"`
	Confidence      float64                 `json:"confidence"`
}

// HasSignal reports whether anything beyond the chain was produced.
func (r Result) HasSignal() bool {
	return len(r.Conclusions) > 0 || len(r.Predictions) > 0 ||
		len(r.Recommendations) > 0 || len(r.Paths) > 0
}

// EvidencePaths renders the structured paths for display, dropping
// duplicates and keeping first-seen order.
func (r Result) EvidencePaths() []string {
	seen := make(map[string]bool, len(r.Paths))
	out := make([]string, 0, len(r.Paths))
	for _, p := range r.Paths {
		s := p.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// meanConfidence averages conclusion weights; no conclusions yields
// EmptyConfidence.
func meanConfidence(cs []Conclusion) float64 {
	if len(cs) == 0 {
		return EmptyConfidence
	}
	sum := 0.0
	for _, c := range cs {
		sum += c.Weight()
	}
	return sum / float64(len(cs))
}

// run accumulates one reasoning pass.
type run struct {
	res      Result
	paths    map[string]bool
	recs     map[string]int
	expanded map[string]bool // pattern ids whose causes were added
}

func newRun(route string) *run {
	return &run{
		res:      Result{Route: route},
		paths:    make(map[string]bool),
		recs:     make(map[string]int),
		expanded: make(map[string]bool),
	}
}

func (o *run) step(description, result string) {
	o.res.Chain = append(o.res.Chain, ChainStep{
		Step:        len(o.res.Chain) + 1,
		Description: description,
		Result:      result,
	})
}

func (o *run) conclude(c Conclusion) {
	o.res.Conclusions = append(o.res.Conclusions, c)
}

func (o *run) addPaths(ps ...traverse.Path) {
	for _, p := range ps {
		k := p.Key()
		if o.paths[k] {
			continue
		}
		o.paths[k] = true
		o.res.Paths = append(o.res.Paths, p)
	}
}

// recommend keeps one entry per resolution, the most confident one.
func (o *run) recommend(rec Recommendation) {
	if i, ok := o.recs[rec.ResolutionID]; ok {
		if rec.Confidence > o.res.Recommendations[i].Confidence {
			o.res.Recommendations[i] = rec
		}
		return
	}
	o.recs[rec.ResolutionID] = len(o.res.Recommendations)
	o.res.Recommendations = append(o.res.Recommendations, rec)
}

func (o *run) predict(ps ...rules.Prediction) {
	o.res.Predictions = append(o.res.Predictions, ps...)
}

func (o *run) evidence(rs ...rules.InferenceResult) {
	o.res.Evidence = append(o.res.Evidence, rs...)
}

func (o *run) finish() Result {
	o.res.Confidence = meanConfidence(o.res.Conclusions)
	return o.res
}
