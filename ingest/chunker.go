package ingest

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// Default chunking geometry, tuned for research-paper paragraphs.
const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// Document is one unit of ingestion input.
type Document struct {
	ID         string
	Title      string
	Content    string
	Authors    []string
	Year       int
	Categories []string
}

// Chunker splits documents into overlapping text chunks with stable IDs.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a chunker. Non-positive size or overlap fall back to
// the defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}
}

// Chunk splits the document. Chunk IDs are "<docID>-chunk-<n>" so provenance
// stays stable across re-ingestion of the same document.
func (c *Chunker) Chunk(doc Document) ([]*kg.TextChunk, error) {
	if doc.ID == "" {
		return nil, kg.NewValidation("id", "document id is required")
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, kg.NewValidation("content", "document content is empty")
	}

	parts, err := c.splitter.SplitText(doc.Content)
	if err != nil {
		return nil, kg.NewValidation("content", "split document: "+err.Error())
	}

	chunks := make([]*kg.TextChunk, 0, len(parts))
	searchFrom := 0
	for i, part := range parts {
		offset := strings.Index(doc.Content[searchFrom:], part)
		if offset >= 0 {
			offset += searchFrom
			// Overlapping chunks may rewind; advance conservatively.
			if next := offset + len(part)/2; next > searchFrom {
				searchFrom = next
			}
		} else {
			offset = 0
		}
		chunks = append(chunks, &kg.TextChunk{
			ID:      fmt.Sprintf("%s-chunk-%d", doc.ID, i),
			Content: part,
			Metadata: kg.ChunkMetadata{
				DocumentID: doc.ID,
				Title:      doc.Title,
				Authors:    doc.Authors,
				Categories: doc.Categories,
				Year:       doc.Year,
				Offset:     offset,
			},
		})
	}
	return chunks, nil
}
