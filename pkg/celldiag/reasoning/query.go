package reasoning

import (
	"strconv"
	"strings"

	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
)

// Intent is the question class assigned by the upstream classifier.
type Intent string

const (
	IntentDiagnosis     Intent = "diagnosis"
	IntentDefinition    Intent = "definition"
	IntentSpecification Intent = "specification"
	IntentRelationship  Intent = "relationship"
	IntentComparison    Intent = "comparison"
	IntentResolution    Intent = "resolution"
	IntentMaintenance   Intent = "maintenance"
	IntentHistory       Intent = "history"
)

// Extraction-only entity types. They never appear in the graph.
const (
	TypeValue         ontology.EntityType = "Value"
	TypeTemporal      ontology.EntityType = "Temporal"
	TypeErrorCategory ontology.EntityType = "ErrorCategory"
)

// Entity is one item pulled out of the question by the extractor.
type Entity struct {
	ID         string              `json:"id"`
	Type       ontology.EntityType `json:"type"`
	Text       string              `json:"text"`
	Confidence float64             `json:"confidence"`
	Properties map[string]any      `json:"properties,omitempty"`
}

// Value returns the numeric reading carried by the entity: the "value"
// property first, then the text of a Value entity.
func (e Entity) Value() (float64, bool) {
	if v, ok := toFloat(e.Properties["value"]); ok {
		return v, true
	}
	if e.Type == TypeValue {
		return toFloat(e.Text)
	}
	return 0, false
}

// Query is the classified question handed to the reasoner. Entities and
// Context are read-only.
type Query struct {
	Text     string         `json:"text"`
	Intent   Intent         `json:"intent"`
	Entities []Entity       `json:"entities"`
	Context  map[string]any `json:"context,omitempty"`
}

// OfType returns the entities of type t in query order.
func (q Query) OfType(t ontology.EntityType) []Entity {
	var out []Entity
	for _, e := range q.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// valueFor returns the reading for an axis entity, falling back to the
// first standalone Value entity of the query.
func (q Query) valueFor(e Entity) (float64, bool) {
	if v, ok := e.Value(); ok {
		return v, true
	}
	for _, v := range q.OfType(TypeValue) {
		if f, ok := v.Value(); ok {
			return f, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
