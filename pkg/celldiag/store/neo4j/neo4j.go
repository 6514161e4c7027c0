// Package neo4j keeps the cell graph in a Neo4j database.
//
// Entities are stored as :CellEntity nodes and relationships as :RELATES
// edges carrying the relation name. Property maps may nest, which Neo4j
// properties cannot, so they are kept as JSON strings.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
)

const (
	loadSchemaQuery = `
		OPTIONAL MATCH (m:CellSchema)
		RETURN m.version AS version, m.description AS description
		LIMIT 1
	`
	loadEntitiesQuery = `
		MATCH (e:CellEntity)
		RETURN e.id AS id, e.type AS type, e.name AS name, e.properties AS properties
		ORDER BY e.id
	`
	loadRelationshipsQuery = `
		MATCH (s:CellEntity)-[r:RELATES]->(t:CellEntity)
		RETURN s.id AS source, r.relation AS relation, t.id AS target, r.properties AS properties
		ORDER BY r.seq
	`
	clearQuery = `
		MATCH (n) WHERE n:CellEntity OR n:CellSchema
		DETACH DELETE n
	`
	saveSchemaQuery = `
		CREATE (:CellSchema {version: $version, description: $description})
	`
	saveEntitiesQuery = `
		UNWIND $entities AS e
		CREATE (:CellEntity {id: e.id, type: e.type, name: e.name, properties: e.properties})
	`
	saveRelationshipsQuery = `
		UNWIND $relationships AS r
		MATCH (s:CellEntity {id: r.source})
		MATCH (t:CellEntity {id: r.target})
		CREATE (s)-[:RELATES {relation: r.relation, properties: r.properties, seq: r.seq}]->(t)
	`
)

// Options configures a SchemaSource.
type Options struct {
	URI      string
	Username string
	Password string
	Database string
	Logger   *zap.Logger
}

// SchemaSource is an ontology.Source backed by Neo4j.
type SchemaSource struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

var _ ontology.Source = (*SchemaSource)(nil)

// NewSchemaSource connects to Neo4j and verifies the connection.
func NewSchemaSource(ctx context.Context, opts Options) (*SchemaSource, error) {
	driver, err := neo4j.NewDriverWithContext(
		opts.URI,
		neo4j.BasicAuth(opts.Username, opts.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w: %w", internalerr.ErrStoreUnavailable, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	database := opts.Database
	if database == "" {
		database = "neo4j"
	}
	logger.Info("neo4j schema source connected", zap.String("uri", opts.URI), zap.String("database", database))

	return &SchemaSource{driver: driver, database: database, logger: logger}, nil
}

func (s *SchemaSource) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Load reads the whole graph and validates it.
func (s *SchemaSource) Load(ctx context.Context) (*ontology.Schema, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var schema ontology.Schema

		meta, err := collect(ctx, tx, loadSchemaQuery, nil)
		if err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			schema.Version = str(meta[0], "version")
			schema.Description = str(meta[0], "description")
		}

		rows, err := collect(ctx, tx, loadEntitiesQuery, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			e, err := entityFromRow(row)
			if err != nil {
				return nil, err
			}
			schema.Entities = append(schema.Entities, e)
		}

		rows, err = collect(ctx, tx, loadRelationshipsQuery, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			r, err := relationshipFromRow(row)
			if err != nil {
				return nil, err
			}
			schema.Relationships = append(schema.Relationships, r)
		}
		return &schema, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	schema := out.(*ontology.Schema)
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	s.logger.Debug("schema loaded from neo4j",
		zap.Int("entities", len(schema.Entities)),
		zap.Int("relationships", len(schema.Relationships)))
	return schema, nil
}

// Save replaces the stored graph with sch in a single transaction.
func (s *SchemaSource) Save(ctx context.Context, sch *ontology.Schema) error {
	if sch == nil {
		return fmt.Errorf("%w: nil schema", internalerr.ErrInvalidInput)
	}
	if err := sch.Validate(); err != nil {
		return err
	}
	entities, rels, err := toParams(sch)
	if err != nil {
		return err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			query  string
			params map[string]any
		}{
			{clearQuery, nil},
			{saveSchemaQuery, map[string]any{"version": sch.Version, "description": sch.Description}},
			{saveEntitiesQuery, map[string]any{"entities": asList(entities)}},
			{saveRelationshipsQuery, map[string]any{"relationships": asList(rels)}},
		}
		for _, st := range steps {
			res, err := tx.Run(ctx, st.query, st.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to save schema: %w", err)
	}

	s.logger.Info("schema saved to neo4j",
		zap.String("version", sch.Version),
		zap.Int("entities", len(entities)),
		zap.Int("relationships", len(rels)))
	return nil
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]map[string]any, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for result.Next(ctx) {
		rec := result.Record()
		row := make(map[string]any, len(rec.Keys))
		for i, k := range rec.Keys {
			row[k] = rec.Values[i]
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// toParams flattens a schema into query parameters. Relationship order is
// kept in seq so a load returns edges in the order they were saved.
func toParams(sch *ontology.Schema) ([]map[string]any, []map[string]any, error) {
	entities := make([]map[string]any, 0, len(sch.Entities))
	for _, e := range sch.Entities {
		props, err := encodeProps(e.Properties)
		if err != nil {
			return nil, nil, fmt.Errorf("encode properties of %s: %w", e.ID, err)
		}
		entities = append(entities, map[string]any{
			"id":         e.ID,
			"type":       string(e.Type),
			"name":       e.Name,
			"properties": props,
		})
	}

	rels := make([]map[string]any, 0, len(sch.Relationships))
	for i, r := range sch.Relationships {
		props, err := encodeProps(r.Properties)
		if err != nil {
			return nil, nil, fmt.Errorf("encode properties of %s -%s-> %s: %w", r.Source, r.Relation, r.Target, err)
		}
		rels = append(rels, map[string]any{
			"source":     r.Source,
			"relation":   string(r.Relation),
			"target":     r.Target,
			"properties": props,
			"seq":        int64(i),
		})
	}
	return entities, rels, nil
}

// asList widens rows to the []any the driver packs as a list.
func asList(rows []map[string]any) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

func entityFromRow(row map[string]any) (ontology.Entity, error) {
	props, err := decodeProps(row["properties"])
	if err != nil {
		return ontology.Entity{}, fmt.Errorf("%w: entity %s: %v", internalerr.ErrInvalidSchema, str(row, "id"), err)
	}
	return ontology.Entity{
		ID:         str(row, "id"),
		Type:       ontology.EntityType(str(row, "type")),
		Name:       str(row, "name"),
		Properties: props,
	}, nil
}

func relationshipFromRow(row map[string]any) (ontology.Relationship, error) {
	props, err := decodeProps(row["properties"])
	if err != nil {
		return ontology.Relationship{}, fmt.Errorf("%w: relationship %s -> %s: %v",
			internalerr.ErrInvalidSchema, str(row, "source"), str(row, "target"), err)
	}
	return ontology.Relationship{
		Source:     str(row, "source"),
		Relation:   ontology.Relation(str(row, "relation")),
		Target:     str(row, "target"),
		Properties: props,
	}, nil
}

func encodeProps(props map[string]any) (string, error) {
	if len(props) == 0 {
		return "", nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeProps(v any) (map[string]any, error) {
	s, _ := v.(string)
	if s == "" {
		return nil, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, err
	}
	return props, nil
}

func str(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return s
}
