package backup

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

func seededStores(t *testing.T) (graphstore.Store, vectorstore.Store) {
	t.Helper()
	ctx := context.Background()
	graph := graphstore.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore()

	entities := []*kg.Entity{
		{ID: "gpt4", Type: kg.EntityAIModel, Name: "GPT-4", Confidence: 0.95, SourceChunks: []string{"c1"}},
		{ID: "openai", Type: kg.EntityOrganization, Name: "OpenAI", Confidence: 0.9},
	}
	for _, e := range entities {
		_, err := graph.UpsertEntity(ctx, e)
		require.NoError(t, err)
	}
	_, err := graph.UpsertRelation(ctx, &kg.Relation{
		SourceID: "gpt4", TargetID: "openai", Type: kg.RelDevelopedBy, Confidence: 0.95,
	})
	require.NoError(t, err)
	require.NoError(t, graph.UpsertCommunity(ctx, &kg.Community{
		ID: "community-l0-0", Level: 0, MemberIDs: []string{"gpt4", "openai"}, MemberCount: 2,
	}))
	require.NoError(t, vectors.Upsert(ctx,
		vectorstore.Document{ID: "gpt4", Kind: vectorstore.KindEntity, Content: "GPT-4",
			Metadata: map[string]string{"name": "GPT-4"}, Embedding: []float32{0.1, 0.9}},
	))
	return graph, vectors
}

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	graph, vectors := seededStores(t)
	manager := NewManager(graph, vectors)

	var buf bytes.Buffer
	require.NoError(t, manager.Write(ctx, &buf))

	// Restore into fresh stores.
	freshGraph := graphstore.NewMemoryStore()
	freshVectors := vectorstore.NewMemoryStore()
	restored := NewManager(freshGraph, freshVectors)
	result, err := restored.Restore(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Entities)
	assert.Equal(t, 1, result.Relations)
	assert.Equal(t, 1, result.Communities)
	assert.Equal(t, 1, result.Documents)

	// Node-for-node, edge-for-edge.
	wantEntities, err := graph.AllEntities(ctx)
	require.NoError(t, err)
	gotEntities, err := freshGraph.AllEntities(ctx)
	require.NoError(t, err)
	sort.Slice(wantEntities, func(i, j int) bool { return wantEntities[i].ID < wantEntities[j].ID })
	sort.Slice(gotEntities, func(i, j int) bool { return gotEntities[i].ID < gotEntities[j].ID })
	require.Len(t, gotEntities, len(wantEntities))
	for i := range wantEntities {
		assert.Equal(t, wantEntities[i].ID, gotEntities[i].ID)
		assert.Equal(t, wantEntities[i].Name, gotEntities[i].Name)
		assert.Equal(t, wantEntities[i].Confidence, gotEntities[i].Confidence)
		assert.Equal(t, wantEntities[i].SourceChunks, gotEntities[i].SourceChunks)
	}

	wantRelations, err := graph.AllRelations(ctx)
	require.NoError(t, err)
	gotRelations, err := freshGraph.AllRelations(ctx)
	require.NoError(t, err)
	assert.Len(t, gotRelations, len(wantRelations))

	docs, err := freshVectors.AllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []float32{0.1, 0.9}, docs[0].Embedding)
}

func TestRestoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	graph, vectors := seededStores(t)
	manager := NewManager(graph, vectors)

	var buf bytes.Buffer
	require.NoError(t, manager.Write(ctx, &buf))

	// Restore the archive into its own source stores twice.
	for i := 0; i < 2; i++ {
		_, err := manager.Restore(ctx, bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
	}

	entities, err := graph.AllEntities(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
	relations, err := graph.AllRelations(ctx)
	require.NoError(t, err)
	assert.Len(t, relations, 1)
}

func TestValidateRejectsBadArchives(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"version": 99, "entities": [], "relations": []}`))
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))

	dangling := `{"version": 1,
		"entities": [{"id": "a", "type": "AIModel", "name": "A"}],
		"relations": [{"id": "r1", "source_id": "a", "target_id": "ghost", "type": "RELATED_TO"}]}`
	_, err = Decode(strings.NewReader(dangling))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing from the archive")

	_, err = Decode(strings.NewReader("not json"))
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestWriteFileAndList(t *testing.T) {
	ctx := context.Background()
	graph, vectors := seededStores(t)
	manager := NewManager(graph, vectors)
	manager.now = func() time.Time { return time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC) }

	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, manager.WriteFile(ctx, path))

	infos, err := List(dir)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, path, infos[0].Path)
	assert.Equal(t, ArchiveVersion, infos[0].Version)
	assert.Equal(t, 2, infos[0].Entities)
	assert.Equal(t, 1, infos[0].Relations)
	assert.Equal(t, 2026, infos[0].CreatedAt.Year())

	result, err := NewManager(graphstore.NewMemoryStore(), vectorstore.NewMemoryStore()).RestoreFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Entities)
}
