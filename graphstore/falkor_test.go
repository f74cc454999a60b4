package graphstore

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestParseFalkorURL(t *testing.T) {
	t.Run("host and graph", func(t *testing.T) {
		cfg, err := ParseFalkorURL("falkordb://localhost:6379/research")
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", cfg.Addr)
		assert.Equal(t, "research", cfg.Graph)
	})

	t.Run("default graph name", func(t *testing.T) {
		cfg, err := ParseFalkorURL("falkordb://localhost:6379")
		require.NoError(t, err)
		assert.Equal(t, "yagokoro", cfg.Graph)
	})

	t.Run("missing host", func(t *testing.T) {
		_, err := ParseFalkorURL("falkordb:///graph")
		assert.Equal(t, kg.KindValidation, kg.KindOf(err))
	})
}

func TestCypherString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"o'brien", `'o\'brien'`},
		{`back\slash`, `'back\\slash'`},
		{"null\x00byte", "'nullbyte'"},
		{"'; MATCH (n) DETACH DELETE n //", `'\'; MATCH (n) DETACH DELETE n //'`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cypherString(tt.in))
	}
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "AIModel", sanitizeLabel("AIModel"))
	assert.Equal(t, "DEVELOPED_BY", sanitizeLabel("DEVELOPED_BY"))
	assert.Equal(t, "bad_label_", sanitizeLabel("bad label)"))
	assert.Equal(t, "Entity", sanitizeLabel(""))
}

// wire-shaped node: [internalID, labels, [[key, value], ...]]
func wireNode(pairs ...[2]string) []any {
	props := make([]any, len(pairs))
	for i, p := range pairs {
		props[i] = []any{[]byte(p[0]), []byte(p[1])}
	}
	return []any{int64(7), []any{[]byte("AIModel")}, props}
}

func TestParseEntityNode(t *testing.T) {
	t.Run("full node", func(t *testing.T) {
		e := parseEntityNode(wireNode(
			[2]string{"id", "ent-1"},
			[2]string{"type", "AIModel"},
			[2]string{"name", "GPT-4"},
			[2]string{"norm_name", "gpt-4"},
			[2]string{"description", "a model"},
			[2]string{"confidence", "0.85"},
			[2]string{"props", `{"params":"1.7T"}`},
			[2]string{"source_chunks", `["chunk-1","chunk-2"]`},
		))
		require.NotNil(t, e)
		assert.Equal(t, "ent-1", e.ID)
		assert.Equal(t, kg.EntityAIModel, e.Type)
		assert.Equal(t, "GPT-4", e.Name)
		assert.Equal(t, 0.85, e.Confidence)
		assert.Equal(t, "1.7T", e.Properties["params"])
		assert.Equal(t, []string{"chunk-1", "chunk-2"}, e.SourceChunks)
	})

	t.Run("foreign node without schema", func(t *testing.T) {
		assert.Nil(t, parseEntityNode([]any{int64(1), []any{}, []any{}}))
		assert.Nil(t, parseEntityNode("not a node"))
	})
}

func TestParseRelationEdge(t *testing.T) {
	r := parseRelationEdge([]any{int64(3), []byte("DEVELOPED_BY"), int64(1), int64(2), []any{
		[]any{[]byte("id"), []byte("rel-1")},
		[]any{[]byte("type"), []byte("DEVELOPED_BY")},
		[]any{[]byte("source_id"), []byte("ent-1")},
		[]any{[]byte("target_id"), []byte("ent-2")},
		[]any{[]byte("confidence"), []byte("0.9")},
	}})
	require.NotNil(t, r)
	assert.Equal(t, "rel-1", r.ID)
	assert.Equal(t, "ent-1", r.SourceID)
	assert.Equal(t, "ent-2", r.TargetID)
	assert.Equal(t, kg.RelDevelopedBy, r.Type)
	assert.Equal(t, 0.9, r.Confidence)
}

func TestClassifyRedisError(t *testing.T) {
	assert.Equal(t, kg.KindTimeout, kg.KindOf(classifyRedisError(context.DeadlineExceeded)))
	assert.Equal(t, kg.KindConflictingState,
		kg.KindOf(classifyRedisError(errors.New("unique constraint violated on node"))))
	assert.Equal(t, kg.KindTransientIO,
		kg.KindOf(classifyRedisError(errors.New("dial tcp: connection refused"))))
	assert.True(t, kg.IsRetryable(classifyRedisError(errors.New("connection reset"))))
}

func TestQueryResultPrettyPrint(t *testing.T) {
	qr := &queryResult{
		header: []string{"n.id", "n.name"},
		rows:   [][]any{{"ent-1", "GPT-4"}},
		stats:  []string{"Query internal execution time: 0.2 ms"},
	}
	var buf bytes.Buffer
	qr.PrettyPrint(&buf)
	out := buf.String()
	assert.Contains(t, out, "ent-1")
	assert.Contains(t, out, "GPT-4")
	assert.Contains(t, out, "execution time")
}

func TestEntityPropsRendering(t *testing.T) {
	e := &kg.Entity{
		ID: "ent-1", Type: kg.EntityAIModel, Name: "GPT-4",
		Confidence: 0.8, Properties: map[string]any{"params": "1.7T"},
	}
	props, err := entityProps(e)
	require.NoError(t, err)
	assert.Contains(t, props, "id: 'ent-1'")
	assert.Contains(t, props, "norm_name: 'gpt-4'")
	assert.Contains(t, props, "confidence: 0.8")
}

func TestCommunityStagingLeavesLiveLayerAlone(t *testing.T) {
	stmts, err := communityStageStatements(&kg.Community{
		ID: "com-0", Level: 0, MemberIDs: []string{"ent-1", "ent-2"},
	})
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	// Staging writes only shadow nodes; :Community is untouched until the
	// promote statement.
	for _, q := range stmts {
		assert.Contains(t, q, "CommunityShadow")
		assert.NotContains(t, q, "(c:Community {")
		assert.NotContains(t, q, "DELETE")
	}
	assert.Contains(t, stmts[0], "MERGE (c:CommunityShadow {id: 'com-0'})")
	assert.Contains(t, stmts[1], "MERGE (n)-[:BELONGS_TO]->(c)")

	_, err = communityStageStatements(&kg.Community{})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestCommunityPromoteIsOneStatement(t *testing.T) {
	// Delete-old and label-flip share one statement so readers see either
	// the old partition or the new one.
	assert.Contains(t, communityPromote, "DETACH DELETE old")
	assert.Contains(t, communityPromote, "SET c:Community")
	assert.Contains(t, communityPromote, "REMOVE c:CommunityShadow")
	assert.NotContains(t, communityPromote, ";")
}
