package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
)

const sampleChunkText = "GPT-4 was developed by OpenAI and evaluated on MMLU."

func sampleChunk() *kg.TextChunk {
	return &kg.TextChunk{ID: "d1-chunk-0", Content: sampleChunkText}
}

func TestEntityExtract(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockClient().Respond("Extract named entities", `{"entities": [
		{"name": "GPT-4", "type": "AIModel", "description": "large language model", "confidence": 0.9},
		{"name": "OpenAI", "type": "Organization", "confidence": 1.4},
		{"name": "USS Enterprise", "type": "Spaceship", "confidence": 0.9},
		{"name": "maybe-a-model", "type": "AIModel", "confidence": 0.2},
		{"name": "  ", "type": "Concept", "confidence": 0.9}
	]}`)

	entities, meta, err := NewEntityExtractor(mock).Extract(ctx, sampleChunk(), ExtractOptions{})
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "mock", meta.Model)

	// Unknown type, low confidence and blank name are dropped, not errors.
	require.Len(t, entities, 2)
	assert.Equal(t, "d1-chunk-0-e0", entities[0].ID)
	assert.Equal(t, kg.EntityAIModel, entities[0].Type)
	assert.Equal(t, "large language model", entities[0].Description)
	assert.Equal(t, []string{"d1-chunk-0"}, entities[0].SourceChunks)

	// Confidence clamps into [0,1].
	assert.Equal(t, 1.0, entities[1].Confidence)
}

func TestEntityExtractFencedJSON(t *testing.T) {
	mock := llm.NewMockClient()
	mock.DefaultResponse = "```json\n{\"entities\": [{\"name\": \"RLHF\", \"type\": \"Technique\", \"confidence\": 0.8}]}\n```"

	entities, _, err := NewEntityExtractor(mock).Extract(context.Background(), sampleChunk(), ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "RLHF", entities[0].Name)
}

func TestEntityExtractBadResponse(t *testing.T) {
	mock := llm.NewMockClient()
	mock.DefaultResponse = "Sure! Here are the entities I found:"

	_, meta, err := NewEntityExtractor(mock).Extract(context.Background(), sampleChunk(), ExtractOptions{})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
	assert.NotNil(t, meta)
}

func TestEntityExtractEmptyChunk(t *testing.T) {
	x := NewEntityExtractor(llm.NewMockClient())
	_, _, err := x.Extract(context.Background(), nil, ExtractOptions{})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))

	_, _, err = x.Extract(context.Background(), &kg.TextChunk{ID: "c", Content: " "}, ExtractOptions{})
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestRelationExtract(t *testing.T) {
	known := []*kg.Entity{
		{ID: "e-gpt4", Type: kg.EntityAIModel, Name: "GPT-4"},
		{ID: "e-openai", Type: kg.EntityOrganization, Name: "OpenAI"},
	}
	mock := llm.NewMockClient().Respond("Extract relationships", `{"relations": [
		{"source": "gpt-4", "target": "OpenAI", "type": "DEVELOPED_BY", "confidence": 0.9},
		{"source": "GPT-4", "target": "DeepMind", "type": "DEVELOPED_BY", "confidence": 0.9},
		{"source": "GPT-4", "target": "OpenAI", "type": "LIKES", "confidence": 0.9},
		{"source": "GPT-4", "target": "GPT-4", "type": "RELATED_TO", "confidence": 0.9},
		{"source": "GPT-4", "target": "OpenAI", "type": "CITES", "confidence": 0.1}
	]}`)

	relations, _, err := NewRelationExtractor(mock).Extract(context.Background(), sampleChunk(), known, ExtractOptions{})
	require.NoError(t, err)

	// Endpoint resolution is by normalised name; unknown endpoints, unknown
	// types, self loops and low confidence are dropped.
	require.Len(t, relations, 1)
	assert.Equal(t, "e-gpt4", relations[0].SourceID)
	assert.Equal(t, "e-openai", relations[0].TargetID)
	assert.Equal(t, kg.RelDevelopedBy, relations[0].Type)
	assert.Equal(t, []string{"d1-chunk-0"}, relations[0].SourceChunks)
}

func TestRelationExtractShortCircuits(t *testing.T) {
	mock := llm.NewMockClient()
	one := []*kg.Entity{{ID: "e1", Type: kg.EntityAIModel, Name: "GPT-4"}}

	relations, meta, err := NewRelationExtractor(mock).Extract(context.Background(), sampleChunk(), one, ExtractOptions{})
	require.NoError(t, err)
	assert.Empty(t, relations)
	require.NotNil(t, meta)
	assert.Zero(t, mock.ChatCallCount())
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
