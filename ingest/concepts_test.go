package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func conceptChunks() []*kg.TextChunk {
	return []*kg.TextChunk{
		{ID: "c1", Content: "transformer models, transformer models"},
		{ID: "c2", Content: "transformer models and attention heads attention heads"},
	}
}

func TestConceptExtract(t *testing.T) {
	concepts, cooccs, err := NewConceptExtractor().Extract(conceptChunks(), ConceptOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, concepts)

	byText := make(map[string]*kg.Concept, len(concepts))
	for _, c := range concepts {
		byText[c.Text] = c
	}

	// "transformer models" appears three times across both chunks.
	tm := byText["transformer models"]
	require.NotNil(t, tm)
	assert.Equal(t, 3, tm.Frequency)
	assert.Equal(t, 1.0, tm.Importance)
	assert.ElementsMatch(t, []string{"c1", "c2"}, tm.SourceChunks)

	ah := byText["attention heads"]
	require.NotNil(t, ah)
	assert.Equal(t, []string{"c2"}, ah.SourceChunks)
	assert.InDelta(t, 2.0/3.0, ah.Importance, 1e-9)

	// Below the default frequency threshold.
	assert.NotContains(t, byText, "models transformer")

	// Ordering: frequency desc, ties alphabetical.
	assert.Equal(t, "models", concepts[0].Text)

	require.NotEmpty(t, cooccs)
	assert.Equal(t, 2, cooccs[0].Count)
	assert.Equal(t, 1.0, cooccs[0].Strength)
}

func TestConceptExtractExtraStopWords(t *testing.T) {
	concepts, _, err := NewConceptExtractor().Extract(conceptChunks(), ConceptOptions{
		ExtraStopWords: []string{"transformer"},
	})
	require.NoError(t, err)
	for _, c := range concepts {
		assert.NotContains(t, c.Text, "transformer")
	}
}

func TestConceptExtractMaxConcepts(t *testing.T) {
	concepts, _, err := NewConceptExtractor().Extract(conceptChunks(), ConceptOptions{MaxConcepts: 2})
	require.NoError(t, err)
	assert.Len(t, concepts, 2)
}

func TestConceptExtractValidation(t *testing.T) {
	_, _, err := NewConceptExtractor().Extract(nil, ConceptOptions{})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestConceptExtractNothingFrequent(t *testing.T) {
	chunks := []*kg.TextChunk{{ID: "c1", Content: "every word here occurs once only"}}
	concepts, cooccs, err := NewConceptExtractor().Extract(chunks, ConceptOptions{})
	require.NoError(t, err)
	assert.Empty(t, concepts)
	assert.Empty(t, cooccs)
}

func TestConceptExtractProperNouns(t *testing.T) {
	chunks := []*kg.TextChunk{
		{ID: "c1", Content: "Models train on The Pile. Models train on The Pile."},
	}

	concepts, _, err := NewConceptExtractor().Extract(chunks, ConceptOptions{})
	require.NoError(t, err)
	for _, c := range concepts {
		// "The" is a stop word, so the capitalised title loses its run.
		assert.NotEqual(t, "the pile", c.Text)
	}

	concepts, _, err = NewConceptExtractor().Extract(chunks, ConceptOptions{IncludeProperNouns: true})
	require.NoError(t, err)
	texts := make([]string, 0, len(concepts))
	for _, c := range concepts {
		texts = append(texts, c.Text)
	}
	assert.Contains(t, texts, "the pile")
}
