package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestChunkerSplitsLongDocument(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Paragraph %d discusses scaling behaviour of transformer language models.\n\n", i)
	}
	doc := Document{
		ID:         "arxiv-2001.08361",
		Title:      "Scaling Laws",
		Content:    b.String(),
		Authors:    []string{"Kaplan"},
		Categories: []string{"cs.LG"},
		Year:       2020,
	}

	chunks, err := NewChunker(400, 50).Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.Equal(t, fmt.Sprintf("arxiv-2001.08361-chunk-%d", i), c.ID)
		assert.NotEmpty(t, c.Content)
		assert.Equal(t, doc.ID, c.Metadata.DocumentID)
		assert.Equal(t, "Scaling Laws", c.Metadata.Title)
		assert.Equal(t, 2020, c.Metadata.Year)
		assert.Contains(t, doc.Content, c.Content)
	}
}

func TestChunkerShortDocument(t *testing.T) {
	doc := Document{ID: "d1", Content: "A single short abstract."}
	chunks, err := NewChunker(0, 0).Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "d1-chunk-0", chunks[0].ID)
	assert.Equal(t, 0, chunks[0].Metadata.Offset)
}

func TestChunkerValidation(t *testing.T) {
	c := NewChunker(0, 0)

	_, err := c.Chunk(Document{Content: "text"})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))

	_, err = c.Chunk(Document{ID: "d1", Content: "   \n"})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}
