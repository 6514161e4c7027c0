// Package gate decides whether a reasoning result is trustworthy enough to
// answer. Checks run in a fixed order and stop at the first failure; a
// failure is an abstain with a machine-readable reason, not an error.
package gate

import (
	"fmt"
	"math"

	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
	"github.com/cognicore/celldiag/pkg/celldiag/reasoning"
)

// Blend weights of the final confidence.
const (
	WeightClassification = 0.3
	WeightReasoning      = 0.5
	WeightEntities       = 0.2
)

// Reason is the machine-readable abstain code.
type Reason string

const (
	ReasonLowClassification      Reason = "low_classification_confidence"
	ReasonNoEntities             Reason = "no_entities"
	ReasonLowEntityConfidence    Reason = "low_entity_confidence"
	ReasonInsufficientReasoning  Reason = "insufficient_reasoning"
	ReasonLowReasoningConfidence Reason = "low_reasoning_confidence"
	ReasonLowFinalConfidence     Reason = "low_final_confidence"
)

// Reasons lists every code a verdict can carry.
var Reasons = []Reason{
	ReasonLowClassification,
	ReasonNoEntities,
	ReasonLowEntityConfidence,
	ReasonInsufficientReasoning,
	ReasonLowReasoningConfidence,
	ReasonLowFinalConfidence,
}

// Thresholds holds the floors of every check. A zero floor means "use the
// default"; set a negative floor to turn a check off (it is treated as 0).
type Thresholds struct {
	// Classification is the classifier floor when only extraction-only
	// entities (values, temporal words, categories) were found.
	// Default: 0.6
	Classification float64 `yaml:"classification" mapstructure:"classification"`

	// ClassificationWithEntity applies once any graph entity was found.
	// Default: 0.5
	ClassificationWithEntity float64 `yaml:"classification_with_entity" mapstructure:"classification_with_entity"`

	// ClassificationHighValue applies when a high-value entity type is
	// among the entities.
	// Default: 0.3
	ClassificationHighValue float64 `yaml:"classification_high_value" mapstructure:"classification_high_value"`

	// Entity is the floor of the mean entity confidence.
	// Default: 0.5
	Entity float64 `yaml:"entity" mapstructure:"entity"`

	// Reasoning is the floor of the reasoning confidence.
	// Default: 0.4
	Reasoning float64 `yaml:"reasoning" mapstructure:"reasoning"`

	// Final is the floor of the blended confidence.
	// Default: 0.5
	Final float64 `yaml:"final" mapstructure:"final"`

	// HighValueTypes are the entity types that lower the classifier floor.
	// Default: MeasurementAxis, ErrorCode, Pattern
	HighValueTypes []ontology.EntityType `yaml:"high_value_types" mapstructure:"high_value_types"`
}

// DefaultThresholds returns the standard floors.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Classification:           0.6,
		ClassificationWithEntity: 0.5,
		ClassificationHighValue:  0.3,
		Entity:                   0.5,
		Reasoning:                0.4,
		Final:                    0.5,
		HighValueTypes: []ontology.EntityType{
			ontology.TypeMeasurementAxis,
			ontology.TypeErrorCode,
			ontology.TypePattern,
		},
	}
}

// withDefaults fills zero fields from DefaultThresholds and clamps negative
// ones to 0.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	t.Classification = orDefault(t.Classification, d.Classification)
	t.ClassificationWithEntity = orDefault(t.ClassificationWithEntity, d.ClassificationWithEntity)
	t.ClassificationHighValue = orDefault(t.ClassificationHighValue, d.ClassificationHighValue)
	t.Entity = orDefault(t.Entity, d.Entity)
	t.Reasoning = orDefault(t.Reasoning, d.Reasoning)
	t.Final = orDefault(t.Final, d.Final)
	if len(t.HighValueTypes) == 0 {
		t.HighValueTypes = d.HighValueTypes
	}
	return t
}

func orDefault(v, def float64) float64 {
	switch {
	case v == 0:
		return def
	case v < 0:
		return 0
	}
	return v
}

// Stage is the outcome of one check.
type Stage struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Verdict is the gate decision. Reason and Message are empty when Passed.
type Verdict struct {
	Passed     bool     `json:"passed"`
	Reason     Reason   `json:"abstain_reason,omitempty"`
	Message    string   `json:"message,omitempty"`
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings,omitempty"`
	Stages     []Stage  `json:"stages"`
}

// Gate evaluates reasoning results against fixed thresholds. It is
// stateless and safe for concurrent use.
type Gate struct {
	th        Thresholds
	highValue map[ontology.EntityType]bool
}

// New creates a gate. Zero threshold fields take their defaults.
func New(th Thresholds) *Gate {
	th = th.withDefaults()
	hv := make(map[ontology.EntityType]bool, len(th.HighValueTypes))
	for _, t := range th.HighValueTypes {
		hv[t] = true
	}
	return &Gate{th: th, highValue: hv}
}

// Thresholds returns the effective floors.
func (g *Gate) Thresholds() Thresholds { return g.th }

// Blend is the final confidence formula.
func Blend(classification, reasoning, entities float64) float64 {
	return WeightClassification*classification + WeightReasoning*reasoning + WeightEntities*entities
}

// MeanEntityConfidence averages the extractor confidences; 0 for none.
func MeanEntityConfidence(entities []reasoning.Entity) float64 {
	if len(entities) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range entities {
		sum += e.Confidence
	}
	return sum / float64(len(entities))
}

// Evaluate runs the checks over one reasoning result. An empty entity list
// fails before any other check, whatever the other inputs are.
func (g *Gate) Evaluate(classification float64, entities []reasoning.Entity, res reasoning.Result) Verdict {
	meanEnt := MeanEntityConfidence(entities)
	v := Verdict{Confidence: clamp01(Blend(classification, res.Confidence, meanEnt))}

	fail := func(stage string, reason Reason, msg string) Verdict {
		v.Stages = append(v.Stages, Stage{Name: stage, Detail: msg})
		v.Reason = reason
		v.Message = msg
		return v
	}
	pass := func(stage, detail string) {
		v.Stages = append(v.Stages, Stage{Name: stage, Passed: true, Detail: detail})
	}

	if len(entities) == 0 {
		return fail("entities", ReasonNoEntities, "no entities extracted from the question")
	}

	// classification
	floor := g.classificationFloor(entities)
	if classification < floor {
		return fail("classification", ReasonLowClassification,
			fmt.Sprintf("classification confidence %.2f is below %.2f", classification, floor))
	}
	pass("classification", fmt.Sprintf("%.2f >= %.2f", classification, floor))

	// entities
	if meanEnt < g.th.Entity {
		return fail("entities", ReasonLowEntityConfidence,
			fmt.Sprintf("mean entity confidence %.2f is below %.2f", meanEnt, g.th.Entity))
	}
	pass("entities", fmt.Sprintf("%d entities, mean %.2f", len(entities), meanEnt))

	// reasoning
	if len(res.Chain) == 0 {
		if !res.HasSignal() {
			return fail("reasoning", ReasonInsufficientReasoning, "no reasoning chain and no conclusions, predictions, recommendations or paths")
		}
		v.Warnings = append(v.Warnings, "empty reasoning chain")
	}
	if res.Confidence < g.th.Reasoning {
		return fail("reasoning", ReasonLowReasoningConfidence,
			fmt.Sprintf("reasoning confidence %.2f is below %.2f", res.Confidence, g.th.Reasoning))
	}
	pass("reasoning", fmt.Sprintf("%d steps, confidence %.2f", len(res.Chain), res.Confidence))

	// evidence
	if len(res.Paths) == 0 {
		v.Warnings = append(v.Warnings, "no ontology evidence paths")
		pass("evidence", "no paths")
	} else {
		pass("evidence", fmt.Sprintf("%d paths", len(res.Paths)))
	}

	if v.Confidence < g.th.Final {
		return fail("final", ReasonLowFinalConfidence,
			fmt.Sprintf("final confidence %.2f is below %.2f", v.Confidence, g.th.Final))
	}
	v.Passed = true
	return v
}

// classificationFloor picks the tier: any high-value entity, else any
// graph entity, else only extraction-only entities such as values.
func (g *Gate) classificationFloor(entities []reasoning.Entity) float64 {
	floor := g.th.Classification
	for _, e := range entities {
		if g.highValue[e.Type] {
			return g.th.ClassificationHighValue
		}
		if e.Type.Known() {
			floor = g.th.ClassificationWithEntity
		}
	}
	return floor
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
