package neo4j

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/ontology"
)

func testSchema(t *testing.T) *ontology.Schema {
	t.Helper()
	s, err := ontology.LoadSchemaYAML(filepath.Join("..", "..", "..", "..", "testdata", "schema.yaml"))
	require.NoError(t, err)
	return s
}

func TestParamsRoundTrip(t *testing.T) {
	in := testSchema(t)
	entities, rels, err := toParams(in)
	require.NoError(t, err)
	require.Len(t, entities, len(in.Entities))
	require.Len(t, rels, len(in.Relationships))

	out := &ontology.Schema{Version: in.Version}
	for _, row := range entities {
		e, err := entityFromRow(row)
		require.NoError(t, err)
		out.Entities = append(out.Entities, e)
	}
	for _, row := range rels {
		r, err := relationshipFromRow(row)
		require.NoError(t, err)
		out.Relationships = append(out.Relationships, r)
	}
	require.NoError(t, out.Validate())

	before := ontology.NewIndex(in).Statistics()
	after := ontology.NewIndex(out).Statistics()
	assert.Equal(t, before, after)

	for i, r := range in.Relationships {
		assert.InDelta(t, r.Confidence(), out.Relationships[i].Confidence(), 1e-9, "edge %d", i)
	}
}

func TestPropsEncoding(t *testing.T) {
	s, err := encodeProps(nil)
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = encodeProps(map[string]any{"range": []any{-1000, 1000}, "unit": "N"})
	require.NoError(t, err)
	props, err := decodeProps(s)
	require.NoError(t, err)
	assert.Equal(t, "N", props["unit"])
	assert.Equal(t, []any{-1000.0, 1000.0}, props["range"])

	props, err = decodeProps(nil)
	require.NoError(t, err)
	assert.Nil(t, props)

	_, err = entityFromRow(map[string]any{"id": "Fz", "properties": "{not json"})
	assert.True(t, errors.Is(err, internalerr.ErrInvalidSchema))
}

// Runs against a live server when CELLDIAG_NEO4J_URI is set.
func TestSchemaSourceIntegration(t *testing.T) {
	uri := os.Getenv("CELLDIAG_NEO4J_URI")
	if uri == "" {
		t.Skip("CELLDIAG_NEO4J_URI not set")
	}
	ctx := context.Background()
	src, err := NewSchemaSource(ctx, Options{
		URI:      uri,
		Username: os.Getenv("CELLDIAG_NEO4J_USERNAME"),
		Password: os.Getenv("CELLDIAG_NEO4J_PASSWORD"),
		Database: os.Getenv("CELLDIAG_NEO4J_DATABASE"),
	})
	require.NoError(t, err)
	defer src.Close(ctx)

	in := testSchema(t)
	require.NoError(t, src.Save(ctx, in))

	out, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.Version, out.Version)
	assert.Equal(t, ontology.NewIndex(in).Statistics(), ontology.NewIndex(out).Statistics())
}
