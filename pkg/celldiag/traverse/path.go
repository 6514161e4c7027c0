// Package traverse walks the cell graph: bounded breadth-first search,
// shortest paths, fixed relation chains and the canonical
// pattern → cause → resolution explanation.
package traverse

import (
	"fmt"
	"strings"

	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
)

// Step is one entity on a path. Relation and Direction describe the edge
// used to reach it and are empty for the first step.
type Step struct {
	EntityID   string              `json:"entity_id"`
	EntityType ontology.EntityType `json:"entity_type"`
	EntityName string              `json:"entity_name"`
	Relation   ontology.Relation   `json:"relation,omitempty"`
	Direction  ontology.Direction  `json:"direction,omitempty"`
}

// Path is an evidentiary sequence of entities with the product of the edge
// confidences met along the way.
type Path struct {
	Steps           []Step  `json:"steps"`
	TotalConfidence float64 `json:"total_confidence"`
}

// NewPath starts a path at a single entity with confidence 1.0.
func NewPath(first Step) Path {
	return Path{Steps: []Step{first}, TotalConfidence: 1.0}
}

// Extend returns a copy of p with step appended and confidence multiplied
// by c. The receiver is left untouched so sibling branches never share
// backing arrays.
func (p Path) Extend(step Step, c float64) Path {
	steps := make([]Step, len(p.Steps), len(p.Steps)+1)
	copy(steps, p.Steps)
	return Path{
		Steps:           append(steps, step),
		TotalConfidence: p.TotalConfidence * c,
	}
}

// Edges is the number of relations on the path.
func (p Path) Edges() int {
	if len(p.Steps) == 0 {
		return 0
	}
	return len(p.Steps) - 1
}

// First returns the starting step.
func (p Path) First() Step {
	if len(p.Steps) == 0 {
		return Step{}
	}
	return p.Steps[0]
}

// Last returns the final step.
func (p Path) Last() Step {
	if len(p.Steps) == 0 {
		return Step{}
	}
	return p.Steps[len(p.Steps)-1]
}

// Contains reports whether the path already visits id.
func (p Path) Contains(id string) bool {
	for _, s := range p.Steps {
		if s.EntityID == id {
			return true
		}
	}
	return false
}

// Key identifies the path structurally for de-duplication.
func (p Path) Key() string {
	var b strings.Builder
	for i, s := range p.Steps {
		if i > 0 {
			b.WriteString("|")
			b.WriteString(string(s.Direction))
			b.WriteString(":")
			b.WriteString(string(s.Relation))
			b.WriteString("|")
		}
		b.WriteString(s.EntityID)
	}
	return b.String()
}

// String renders the path for display, e.g.
// "Collision -[indicates]-> Obstacle in path".
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p.Steps {
		if i > 0 {
			if s.Direction == ontology.Incoming {
				fmt.Fprintf(&b, " <-[%s]- ", s.Relation)
			} else {
				fmt.Fprintf(&b, " -[%s]-> ", s.Relation)
			}
		}
		name := s.EntityName
		if name == "" {
			name = s.EntityID
		}
		b.WriteString(name)
	}
	return b.String()
}

// Hop is one relationship traversed during a search. Source and Target keep
// the graph orientation; Direction records how the search crossed it.
type Hop struct {
	Source     string
	Relation   ontology.Relation
	Target     string
	Confidence float64
	Direction  ontology.Direction
}
