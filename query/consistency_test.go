package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestCheckConsistencyTemporalContradiction(t *testing.T) {
	result := CheckConsistency([]string{
		"GPT-4 released in 2023",
		"GPT-4 released in 2022",
	})

	assert.False(t, result.IsCoherent)
	assert.Less(t, result.CoherenceScore, 0.7)
	require.Len(t, result.Contradictions, 1)
	assert.Equal(t, ContradictionTemporal, result.Contradictions[0].Kind)
}

func TestCheckConsistencyNumericContradiction(t *testing.T) {
	result := CheckConsistency([]string{
		"The model has 175 billion parameters",
		"The model has 540 billion parameters",
	})
	assert.False(t, result.IsCoherent)
	require.Len(t, result.Contradictions, 1)
	assert.Equal(t, ContradictionNumeric, result.Contradictions[0].Kind)
}

func TestCheckConsistencyNegation(t *testing.T) {
	result := CheckConsistency([]string{
		"GPT-4 is open source",
		"GPT-4 is not open source",
	})
	assert.False(t, result.IsCoherent)
	require.Len(t, result.Contradictions, 1)
	assert.Equal(t, ContradictionNegation, result.Contradictions[0].Kind)
}

func TestCheckConsistencyCoherentClaims(t *testing.T) {
	result := CheckConsistency([]string{
		"GPT-4 released in 2023",
		"GPT-4 was developed by OpenAI",
		"BERT released in 2018",
	})
	assert.True(t, result.IsCoherent)
	assert.Equal(t, 1.0, result.CoherenceScore)
	assert.Empty(t, result.Contradictions)
}

func TestCheckConsistencyDifferentSubjects(t *testing.T) {
	// Same template, different subject: not a contradiction.
	result := CheckConsistency([]string{
		"GPT-4 released in 2023",
		"Claude released in 2023",
	})
	assert.True(t, result.IsCoherent)
}

func TestCheckConsistencyScoreFloor(t *testing.T) {
	result := CheckConsistency([]string{
		"A released in 2020",
		"A released in 2021",
		"A released in 2022",
	})
	// Three pairwise contradictions drive the score to the floor.
	assert.Equal(t, 0.0, result.CoherenceScore)
}

func TestValidateAnswerFlagsUnknownEntities(t *testing.T) {
	ctx := kg.ContextData{
		Entities: []*kg.Entity{
			{ID: "gpt4", Name: "GPT-4"},
			{ID: "openai", Name: "OpenAI"},
		},
	}

	assert.Empty(t, ValidateAnswer("GPT-4 was developed by OpenAI.", ctx))

	unsupported := ValidateAnswer("GPT-4 was developed by DeepMind.", ctx)
	require.Len(t, unsupported, 1)
	assert.Equal(t, "DeepMind", unsupported[0])
}

func TestValidateAnswerUsesChunksAndSummaries(t *testing.T) {
	ctx := kg.ContextData{
		CommunitySummaries: []string{"Research around Anthropic and its models"},
		TextChunks:         []*kg.TextChunk{{ID: "c1", Content: "Claude is built by Anthropic."}},
	}
	assert.Empty(t, ValidateAnswer("Claude comes from Anthropic.", ctx))
}

func TestValidateAnswerIgnoresSentenceStarts(t *testing.T) {
	ctx := kg.ContextData{Entities: []*kg.Entity{{ID: "e1", Name: "GPT-4"}}}
	assert.Empty(t, ValidateAnswer("The GPT-4 model. However, details are scarce.", ctx))
}
