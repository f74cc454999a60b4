package pathfind

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
)

func explainPath() *kg.Path {
	return &kg.Path{
		Entities: []*kg.Entity{
			{ID: "gpt4", Name: "GPT-4"},
			{ID: "openai", Name: "OpenAI"},
		},
		Relations: []*kg.Relation{
			{SourceID: "gpt4", TargetID: "openai", Type: kg.RelDevelopedBy, Confidence: 0.95},
		},
		Hops: 1,
	}
}

func TestExplainTemplateEnglish(t *testing.T) {
	x := NewExplainer(nil, LocaleEN)
	got, err := x.Explain(context.Background(), explainPath())
	require.NoError(t, err)

	assert.Equal(t, "GPT-4 was developed by OpenAI.", got.Text)
	assert.False(t, got.Polished)
	require.Len(t, got.KeyRelations, 1)
	assert.Equal(t, "GPT-4", got.KeyRelations[0].Source)
	assert.Equal(t, "OpenAI", got.KeyRelations[0].Target)
	assert.Equal(t, kg.RelDevelopedBy, got.KeyRelations[0].Type)
}

func TestExplainTemplateJapanese(t *testing.T) {
	x := NewExplainer(nil, LocaleJA)
	got, err := x.Explain(context.Background(), explainPath())
	require.NoError(t, err)
	assert.Contains(t, got.Text, "GPT-4")
	assert.Contains(t, got.Text, "開発")
}

func TestExplainUnknownLocaleFallsBackToEnglish(t *testing.T) {
	x := NewExplainer(nil, "fr")
	got, err := x.Explain(context.Background(), explainPath())
	require.NoError(t, err)
	assert.Contains(t, got.Text, "was developed by")
}

func TestExplainLLMPolish(t *testing.T) {
	client := llm.NewMockClient().Respond("Rewrite", "OpenAI built GPT-4.")
	x := NewExplainer(client, LocaleEN)

	got, err := x.Explain(context.Background(), explainPath())
	require.NoError(t, err)
	assert.True(t, got.Polished)
	assert.Equal(t, "OpenAI built GPT-4.", got.Text)
	// The template still backs the key relations.
	require.Len(t, got.KeyRelations, 1)
	assert.Equal(t, "GPT-4 was developed by OpenAI", got.KeyRelations[0].Description)
}

func TestExplainLLMFailureFallsBackToTemplate(t *testing.T) {
	client := llm.NewMockClient()
	client.Err = errors.New("model down")
	x := NewExplainer(client, LocaleEN)

	got, err := x.Explain(context.Background(), explainPath())
	require.NoError(t, err)
	assert.False(t, got.Polished)
	assert.Equal(t, "GPT-4 was developed by OpenAI.", got.Text)
}

func TestExplainReversedEdge(t *testing.T) {
	// The walk traverses openai -> gpt4 against the edge direction; the
	// sentence must still read from the edge's source.
	p := &kg.Path{
		Entities: []*kg.Entity{
			{ID: "openai", Name: "OpenAI"},
			{ID: "gpt4", Name: "GPT-4"},
		},
		Relations: []*kg.Relation{
			{SourceID: "gpt4", TargetID: "openai", Type: kg.RelDevelopedBy},
		},
		Hops: 1,
	}
	got, err := NewExplainer(nil, LocaleEN).Explain(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "GPT-4 was developed by OpenAI.", got.Text)
}

func TestExplainEmptyPath(t *testing.T) {
	_, err := NewExplainer(nil, LocaleEN).Explain(context.Background(), nil)
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))
}

func TestReasonerDerivatives(t *testing.T) {
	store := researchGraph(t)
	reasoner := NewReasoner(store, nil, LocaleEN, CacheConfig{})
	ctx := context.Background()

	t.Run("shortest", func(t *testing.T) {
		p, err := reasoner.FindShortest(ctx, Query{StartID: "gpt4", EndID: "consortium", MaxHops: 4})
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, 2, p.Hops)
	})

	t.Run("connected", func(t *testing.T) {
		ok, err := reasoner.AreConnected(ctx, Query{StartID: "bert", EndID: "attention", MaxHops: 3})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("degrees", func(t *testing.T) {
		n, err := reasoner.DegreesOfSeparation(ctx, Query{StartID: "gpt4", EndID: "attention", MaxHops: 4})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = reasoner.DegreesOfSeparation(ctx, Query{StartID: "consortium", EndID: "bert", MaxHops: 1})
		require.NoError(t, err)
		assert.Equal(t, -1, n)
	})

	t.Run("common connections", func(t *testing.T) {
		common, err := reasoner.CommonConnections(ctx, "gpt4", "bert")
		require.NoError(t, err)
		require.Len(t, common, 1)
		assert.Equal(t, "transformer", common[0].ID)
	})

	t.Run("relation paths by name", func(t *testing.T) {
		result, err := reasoner.FindRelationPaths(ctx, "GPT-4", "Attention", Query{MaxHops: 3})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Paths)

		_, err = reasoner.FindRelationPaths(ctx, "", "Attention", Query{})
		assert.Equal(t, kg.KindValidation, kg.KindOf(err))
	})
}
