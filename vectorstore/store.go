// Package vectorstore is the vector store adapter: embedding persistence and
// top-k cosine similarity search over the three embedded corpora (text
// chunks, entity descriptions, community summaries).
//
// MemoryStore serves tests and small graphs; PGStore persists to PostgreSQL
// with the pgvector extension.
package vectorstore

import (
	"context"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// Document kinds, one per embedded corpus.
const (
	KindChunk     = "chunk"
	KindEntity    = "entity"
	KindCommunity = "community"
)

// Document is one embedded item.
type Document struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
}

// SearchResult pairs a document with its cosine similarity to the query,
// in [-1, 1] with 1 meaning identical direction.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Filter restricts a search to one corpus and/or exact metadata values, and
// optionally drops results below a similarity floor. The zero value matches
// everything.
type Filter struct {
	Kind     string
	Metadata map[string]string
	MinScore float64
}

// Stats summarises the stored vectors.
type Stats struct {
	Documents int `json:"documents"`
	Dimension int `json:"dimension"`
}

// Store is the vector store adapter contract. Upsert replaces any existing
// document with the same ID. Search returns at most k results ordered by
// descending similarity.
type Store interface {
	Upsert(ctx context.Context, docs ...Document) error
	Search(ctx context.Context, embedding []float32, k int, filter Filter) ([]SearchResult, error)
	Delete(ctx context.Context, ids ...string) error
	VectorStats(ctx context.Context) (*Stats, error)
	Close() error
}

func validateSearch(embedding []float32, k int) error {
	if k <= 0 {
		return kg.NewValidation("k", "k must be positive")
	}
	if len(embedding) == 0 {
		return kg.NewValidation("embedding", "query embedding is required")
	}
	return nil
}

// Lister enumerates every stored document, ordered by ID. Backup uses it to
// snapshot the store; both shipped backends implement it.
type Lister interface {
	AllDocuments(ctx context.Context) ([]Document, error)
}

// Embedder is the slice of the LLM client used to embed query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchText embeds the query with the given client and searches the store.
// Every engine-level semantic search funnels through here.
func SearchText(ctx context.Context, s Store, embedder Embedder, query string, k int, filter Filter) ([]SearchResult, error) {
	if query == "" {
		return nil, kg.NewValidation("query", "query text is required")
	}
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, vec, k, filter)
}

// matches reports whether a document passes the filter.
func (f Filter) matches(d Document) bool {
	if f.Kind != "" && d.Kind != f.Kind {
		return false
	}
	for k, v := range f.Metadata {
		if d.Metadata[k] != v {
			return false
		}
	}
	return true
}
