package ontology

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
)

// Schema is one immutable snapshot of the cell graph. A reload produces a new
// Schema; an existing one is never mutated while in use.
type Schema struct {
	Version       string         `yaml:"version" json:"version"`
	Description   string         `yaml:"description" json:"description"`
	Entities      []Entity       `yaml:"entities" json:"entities"`
	Relationships []Relationship `yaml:"relationships" json:"relationships"`
}

// Source loads and saves schema snapshots.
type Source interface {
	Load(ctx context.Context) (*Schema, error)
	Save(ctx context.Context, s *Schema) error
}

// Validate checks the invariants consumers rely on: unique ids, known types
// and relations, edges between existing entities, confidences in [0,1].
// It also fills each entity's Domain from its Type.
func (s *Schema) Validate() error {
	if len(s.Entities) == 0 {
		return fmt.Errorf("%w: no entities", internalerr.ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(s.Entities))
	for i := range s.Entities {
		e := &s.Entities[i]
		if e.ID == "" {
			return fmt.Errorf("%w: entity %d has empty id", internalerr.ErrInvalidSchema, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate entity id %q", internalerr.ErrInvalidSchema, e.ID)
		}
		if !e.Type.Known() {
			return fmt.Errorf("%w: entity %q has unknown type %q", internalerr.ErrInvalidSchema, e.ID, e.Type)
		}
		seen[e.ID] = struct{}{}
		e.Domain = DomainOf(e.Type)
	}

	for i, r := range s.Relationships {
		if !r.Relation.Known() {
			return fmt.Errorf("%w: relationship %d has unknown relation %q", internalerr.ErrInvalidSchema, i, r.Relation)
		}
		if _, ok := seen[r.Source]; !ok {
			return fmt.Errorf("%w: relationship %d source %q does not exist", internalerr.ErrInvalidSchema, i, r.Source)
		}
		if _, ok := seen[r.Target]; !ok {
			return fmt.Errorf("%w: relationship %d target %q does not exist", internalerr.ErrInvalidSchema, i, r.Target)
		}
		if raw, ok := r.Properties["confidence"]; ok {
			c, isNum := toFloat(raw)
			if !isNum || c < 0 || c > 1 {
				return fmt.Errorf("%w: relationship %d confidence %v outside [0,1]", internalerr.ErrInvalidSchema, i, raw)
			}
		}
	}
	return nil
}

// ParseSchemaYAML decodes and validates a schema document.
func ParseSchemaYAML(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidSchema, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchemaYAML loads a schema from a YAML file.
//
// Expected format:
//
//	version: "1.2"
//	entities:
//	  - id: Fz
//	    type: MeasurementAxis
//	    name: Force Z
//	relationships:
//	  - source: PAT_COLLISION
//	    relation: indicates
//	    target: CAUSE_OBSTACLE
//	    properties: {confidence: 0.8}
func LoadSchemaYAML(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSchemaYAML(data)
}

// FileSource is a Source backed by a single YAML file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (f FileSource) Load(ctx context.Context) (*Schema, error) {
	return LoadSchemaYAML(f.Path)
}

// Save implements Source. The schema is validated before anything is written.
func (f FileSource) Save(ctx context.Context, s *Schema) error {
	if s == nil {
		return fmt.Errorf("%w: nil schema", internalerr.ErrInvalidInput)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}
