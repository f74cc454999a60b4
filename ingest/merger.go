package ingest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

// DocumentExtraction is everything pulled out of one document, ready to be
// merged into the stores. Entity and relation IDs are still the extractor's
// temporary IDs.
type DocumentExtraction struct {
	Document  Document
	Chunks    []*kg.TextChunk
	Entities  []*kg.Entity
	Relations []*kg.Relation
}

// MergeResult reports what one document contributed to the stores.
type MergeResult struct {
	DocumentID string `json:"document_id"`
	// EntityIDs maps the extractor's temporary IDs to persistent graph IDs.
	EntityIDs        map[string]string `json:"entity_ids"`
	Entities         int               `json:"entities"`
	Relations        int               `json:"relations"`
	RelationsDropped int               `json:"relations_dropped"`
	ChunksEmbedded   int               `json:"chunks_embedded"`
}

// Merger writes an extraction into the graph and vector stores under the
// uniqueness invariants. The graph store's upsert does the
// (type, normalised name) create-or-merge; the merger's job is endpoint
// rewriting and embedding.
type Merger struct {
	graph    graphstore.Store
	vectors  vectorstore.Store
	embedder llm.Client
}

// NewMerger creates a merger. vectors and embedder may be nil together to
// skip embedding, for graph-only ingestion.
func NewMerger(graph graphstore.Store, vectors vectorstore.Store, embedder llm.Client) *Merger {
	return &Merger{graph: graph, vectors: vectors, embedder: embedder}
}

// MergeDocument merges entities first, rewrites relation endpoints from
// temporary to persistent IDs, then merges relations and embeds entities and
// chunks. Entities already written are kept when a later relation or
// embedding step fails; the document can be re-ingested idempotently.
func (m *Merger) MergeDocument(ctx context.Context, ex DocumentExtraction) (*MergeResult, error) {
	result := &MergeResult{
		DocumentID: ex.Document.ID,
		EntityIDs:  make(map[string]string, len(ex.Entities)),
	}

	persisted := make([]*kg.Entity, 0, len(ex.Entities))
	for _, e := range ex.Entities {
		// Drop the temporary ID so the store either resolves the entity by
		// its (type, name) key or mints a persistent ID.
		incoming := *e
		incoming.ID = ""
		stored, err := m.graph.UpsertEntity(ctx, &incoming)
		if err != nil {
			return result, kg.Wrap(err, fmt.Sprintf("merge entity %q", e.Name))
		}
		result.EntityIDs[e.ID] = stored.ID
		persisted = append(persisted, stored)
	}
	result.Entities = len(persisted)

	for _, r := range ex.Relations {
		sourceID, okS := result.EntityIDs[r.SourceID]
		targetID, okT := result.EntityIDs[r.TargetID]
		if !okS || !okT {
			result.RelationsDropped++
			continue
		}
		rewritten := *r
		rewritten.ID = ""
		rewritten.SourceID = sourceID
		rewritten.TargetID = targetID
		if _, err := m.graph.UpsertRelation(ctx, &rewritten); err != nil {
			// Entities stay; the relation can be retried on re-ingestion.
			return result, kg.Wrap(err, fmt.Sprintf("merge relation %s", r.Type))
		}
		result.Relations++
	}

	if m.vectors == nil || m.embedder == nil {
		return result, nil
	}

	if err := m.embedEntities(ctx, persisted); err != nil {
		return result, err
	}
	embedded, err := m.embedChunks(ctx, ex)
	if err != nil {
		return result, err
	}
	result.ChunksEmbedded = embedded
	return result, nil
}

func (m *Merger) embedEntities(ctx context.Context, entities []*kg.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = e.Name
		if e.Description != "" {
			texts[i] += ": " + e.Description
		}
	}
	vecs, err := m.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return kg.Wrap(err, "embed entities")
	}

	docs := make([]vectorstore.Document, len(entities))
	for i, e := range entities {
		docs[i] = vectorstore.Document{
			ID:      e.ID,
			Kind:    vectorstore.KindEntity,
			Content: texts[i],
			Metadata: map[string]string{
				"type": string(e.Type),
				"name": e.Name,
			},
			Embedding: vecs[i],
		}
	}
	return m.vectors.Upsert(ctx, docs...)
}

func (m *Merger) embedChunks(ctx context.Context, ex DocumentExtraction) (int, error) {
	if len(ex.Chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(ex.Chunks))
	for i, c := range ex.Chunks {
		texts[i] = c.Content
	}
	vecs, err := m.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return 0, kg.Wrap(err, "embed chunks")
	}

	docs := make([]vectorstore.Document, len(ex.Chunks))
	for i, c := range ex.Chunks {
		md := map[string]string{"document_id": c.Metadata.DocumentID}
		if c.Metadata.Title != "" {
			md["title"] = c.Metadata.Title
		}
		if c.Metadata.Year != 0 {
			md["year"] = strconv.Itoa(c.Metadata.Year)
		}
		docs[i] = vectorstore.Document{
			ID:        c.ID,
			Kind:      vectorstore.KindChunk,
			Content:   c.Content,
			Metadata:  md,
			Embedding: vecs[i],
		}
	}
	if err := m.vectors.Upsert(ctx, docs...); err != nil {
		return 0, err
	}
	log.Debug("ingest: embedded %d chunks for document %s", len(docs), ex.Document.ID)
	return len(docs), nil
}
