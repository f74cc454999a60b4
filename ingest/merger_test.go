package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

func sampleExtraction() DocumentExtraction {
	return DocumentExtraction{
		Document: Document{ID: "d1", Title: "GPT-4 Technical Report"},
		Chunks: []*kg.TextChunk{
			{ID: "d1-chunk-0", Content: sampleChunkText, Metadata: kg.ChunkMetadata{DocumentID: "d1", Title: "GPT-4 Technical Report", Year: 2023}},
		},
		Entities: []*kg.Entity{
			{ID: "d1-chunk-0-e0", Type: kg.EntityAIModel, Name: "GPT-4", Confidence: 0.9, SourceChunks: []string{"d1-chunk-0"}},
			{ID: "d1-chunk-0-e1", Type: kg.EntityOrganization, Name: "OpenAI", Confidence: 0.95, SourceChunks: []string{"d1-chunk-0"}},
		},
		Relations: []*kg.Relation{
			{ID: "t1", SourceID: "d1-chunk-0-e0", TargetID: "d1-chunk-0-e1", Type: kg.RelDevelopedBy, Confidence: 0.9},
			{ID: "t2", SourceID: "d1-chunk-0-e0", TargetID: "d1-chunk-9-e7", Type: kg.RelCites, Confidence: 0.9},
		},
	}
}

func TestMergeDocument(t *testing.T) {
	ctx := context.Background()
	graph := graphstore.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore()
	merger := NewMerger(graph, vectors, llm.NewMockClient())

	result, err := merger.MergeDocument(ctx, sampleExtraction())
	require.NoError(t, err)

	assert.Equal(t, "d1", result.DocumentID)
	assert.Equal(t, 2, result.Entities)
	assert.Equal(t, 1, result.Relations)
	assert.Equal(t, 1, result.RelationsDropped)
	assert.Equal(t, 1, result.ChunksEmbedded)

	// Temporary extractor IDs were replaced with persistent graph IDs.
	stored, err := graph.FindByTypeName(ctx, kg.EntityAIModel, "GPT-4")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, result.EntityIDs["d1-chunk-0-e0"])
	assert.NotEqual(t, "d1-chunk-0-e0", stored.ID)

	// The surviving relation points at persistent IDs.
	_, relations, err := graph.Neighbours(ctx, stored.ID, 1, nil)
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, result.EntityIDs["d1-chunk-0-e1"], relations[0].TargetID)

	// Entities and chunks both landed in the vector store.
	docs, err := vectors.AllDocuments(ctx)
	require.NoError(t, err)
	kinds := make(map[string]int)
	for _, d := range docs {
		kinds[d.Kind]++
	}
	assert.Equal(t, 2, kinds[vectorstore.KindEntity])
	assert.Equal(t, 1, kinds[vectorstore.KindChunk])
}

func TestMergeDocumentIdempotent(t *testing.T) {
	ctx := context.Background()
	graph := graphstore.NewMemoryStore()
	merger := NewMerger(graph, nil, nil)

	first, err := merger.MergeDocument(ctx, sampleExtraction())
	require.NoError(t, err)
	second, err := merger.MergeDocument(ctx, sampleExtraction())
	require.NoError(t, err)

	assert.Equal(t, first.EntityIDs, second.EntityIDs)

	stats, err := graph.GraphStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 1, stats.Relations)
}

func TestMergeDocumentGraphOnly(t *testing.T) {
	merger := NewMerger(graphstore.NewMemoryStore(), nil, nil)
	result, err := merger.MergeDocument(context.Background(), sampleExtraction())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ChunksEmbedded)
}
