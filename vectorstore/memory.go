package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// MemoryStore is an in-memory Store with exact cosine search. The dimension
// is fixed by the first upserted document; later documents and search
// queries must match it, as the pgvector column enforces on PGStore.
type MemoryStore struct {
	mu   sync.RWMutex
	dim  int
	docs map[string]Document
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, docs ...Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if d.ID == "" {
			return kg.NewValidation("id", "document id is required")
		}
		if len(d.Embedding) == 0 {
			return kg.NewValidation("embedding", "document embedding is required")
		}
		if s.dim == 0 {
			s.dim = len(d.Embedding)
		} else if len(d.Embedding) != s.dim {
			return kg.NewValidation("embedding",
				fmt.Sprintf("embedding has dimension %d, store is dimension %d", len(d.Embedding), s.dim))
		}
		s.docs[d.ID] = cloneDocument(d)
	}
	return nil
}

// Search implements Store with a full scan, exact for small corpora.
func (s *MemoryStore) Search(_ context.Context, embedding []float32, k int, filter Filter) ([]SearchResult, error) {
	if err := validateSearch(embedding, k); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(embedding) != s.dim {
		return nil, kg.NewValidation("embedding",
			fmt.Sprintf("query has dimension %d, store is dimension %d", len(embedding), s.dim))
	}

	results := make([]SearchResult, 0, len(s.docs))
	for _, d := range s.docs {
		if !filter.matches(d) {
			continue
		}
		score := CosineSimilarity(embedding, d.Embedding)
		if score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			Document: cloneDocument(d),
			Score:    score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Delete implements Store. Missing IDs are ignored.
func (s *MemoryStore) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

// AllDocuments implements Lister.
func (s *MemoryStore) AllDocuments(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, cloneDocument(d))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// VectorStats implements Store.
func (s *MemoryStore) VectorStats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Stats{Documents: len(s.docs), Dimension: s.dim}, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.docs = make(map[string]Document)
	s.dim = 0
	s.mu.Unlock()
	return nil
}

func cloneDocument(d Document) Document {
	cp := d
	cp.Embedding = append([]float32(nil), d.Embedding...)
	if d.Metadata != nil {
		cp.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
