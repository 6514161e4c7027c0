// Package ontology holds the robot-cell domain graph: typed entities, typed
// relationships and the adjacency index built over them.
package ontology

// EntityType tags an entity with one of the fixed node kinds of the cell graph.
type EntityType string

const (
	TypeRobot           EntityType = "Robot"
	TypeSensor          EntityType = "Sensor"
	TypeComponent       EntityType = "Component"
	TypeTool            EntityType = "Tool"
	TypeMeasurementAxis EntityType = "MeasurementAxis"
	TypeState           EntityType = "State"
	TypeSpecification   EntityType = "Specification"
	TypePattern         EntityType = "Pattern"
	TypeCause           EntityType = "Cause"
	TypeErrorCode       EntityType = "ErrorCode"
	TypeResolution      EntityType = "Resolution"
	TypeEnvironment     EntityType = "Environment"
	TypeMaintenanceTask EntityType = "MaintenanceTask"
	TypeDocument        EntityType = "Document"
)

// Domain groups entity types. It is never stored independently of the type.
type Domain string

const (
	DomainEquipment   Domain = "equipment"
	DomainMeasurement Domain = "measurement"
	DomainKnowledge   Domain = "knowledge"
	DomainContext     Domain = "context"
	DomainUnknown     Domain = "unknown"
)

var domainTable = map[EntityType]Domain{
	TypeRobot:           DomainEquipment,
	TypeSensor:          DomainEquipment,
	TypeComponent:       DomainEquipment,
	TypeTool:            DomainEquipment,
	TypeMeasurementAxis: DomainMeasurement,
	TypeState:           DomainMeasurement,
	TypeSpecification:   DomainMeasurement,
	TypePattern:         DomainKnowledge,
	TypeCause:           DomainKnowledge,
	TypeErrorCode:       DomainKnowledge,
	TypeResolution:      DomainKnowledge,
	TypeEnvironment:     DomainContext,
	TypeMaintenanceTask: DomainContext,
	TypeDocument:        DomainContext,
}

// DomainOf returns the domain an entity type belongs to.
func DomainOf(t EntityType) Domain {
	if d, ok := domainTable[t]; ok {
		return d
	}
	return DomainUnknown
}

// Known reports whether t is part of the entity vocabulary.
func (t EntityType) Known() bool {
	_, ok := domainTable[t]
	return ok
}

// Relation tags a directed edge.
type Relation string

const (
	RelHasState     Relation = "has_state"
	RelMountedOn    Relation = "mounted_on"
	RelMeasures     Relation = "measures"
	RelHasComponent Relation = "has_component"
	RelIndicates    Relation = "indicates"
	RelTriggers     Relation = "triggers"
	RelCausedBy     Relation = "caused_by"
	RelResolvedBy   Relation = "resolved_by"
	RelPreventedBy  Relation = "prevented_by"
	RelAffects      Relation = "affects"
	RelSpecifiedBy  Relation = "specified_by"
	RelRelatedTo    Relation = "related_to"
	RelDocumentedIn Relation = "documented_in"
)

var relations = map[Relation]struct{}{
	RelHasState: {}, RelMountedOn: {}, RelMeasures: {}, RelHasComponent: {},
	RelIndicates: {}, RelTriggers: {}, RelCausedBy: {}, RelResolvedBy: {},
	RelPreventedBy: {}, RelAffects: {}, RelSpecifiedBy: {}, RelRelatedTo: {},
	RelDocumentedIn: {},
}

// Known reports whether r is part of the relation vocabulary.
func (r Relation) Known() bool {
	_, ok := relations[r]
	return ok
}

// Direction selects which adjacency lists a lookup or traversal reads.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
	Both     Direction = "both"
)

// Entity is a typed node of the cell graph.
type Entity struct {
	ID         string         `yaml:"id" json:"id"`
	Type       EntityType     `yaml:"type" json:"type"`
	Domain     Domain         `yaml:"-" json:"domain"`
	Name       string         `yaml:"name" json:"name"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// StringProp returns a string property, or "" when absent or not a string.
func (e Entity) StringProp(key string) string {
	if s, ok := e.Properties[key].(string); ok {
		return s
	}
	return ""
}

// StringsProp returns a list property. YAML decodes lists as []any, so both
// shapes are accepted.
func (e Entity) StringsProp(key string) []string {
	switch v := e.Properties[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Relationship is a typed directed edge between two entity ids.
type Relationship struct {
	Source     string         `yaml:"source" json:"source"`
	Relation   Relation       `yaml:"relation" json:"relation"`
	Target     string         `yaml:"target" json:"target"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// Confidence returns the edge confidence, 1.0 when unset, clamped to [0,1].
func (r Relationship) Confidence() float64 {
	c, ok := toFloat(r.Properties["confidence"])
	if !ok {
		return 1.0
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
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
	}
	return 0, false
}
