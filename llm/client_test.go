package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagokoro-dev/yagokoro/kg"
)

func TestMockClientChat(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient().
		Respond("GPT-4", `{"entities":[]}`).
		Respond("summarize", "A research community.")

	t.Run("pattern match", func(t *testing.T) {
		res, err := m.Chat(ctx, []Message{{Role: RoleUser, Content: "Who made GPT-4?"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, `{"entities":[]}`, res.Content)
		assert.Equal(t, "stop", res.FinishReason)
		assert.Positive(t, res.Usage.TotalTokens)
	})

	t.Run("default response", func(t *testing.T) {
		res, err := m.Chat(ctx, []Message{{Role: RoleUser, Content: "unrelated"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Content)
	})

	t.Run("call recording", func(t *testing.T) {
		assert.Equal(t, 2, m.ChatCallCount())
	})
}

func TestMockClientEmbeddings(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()

	a, err := m.Embed(ctx, "graph retrieval")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "graph retrieval")
	require.NoError(t, err)
	assert.Equal(t, a, b, "embeddings are deterministic")

	many, err := m.EmbedMany(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, many, 2)
	assert.Len(t, many[0], 8)
}

func TestMockClientError(t *testing.T) {
	m := NewMockClient()
	m.Err = kg.NewRateLimited("slow down", 0)

	_, err := m.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil)
	assert.Equal(t, kg.KindRateLimited, kg.KindOf(err))

	_, err = m.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestOpenAIClientValidation(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{APIKey: "test", Model: "m"})

	_, err := c.Chat(context.Background(), nil, nil)
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))

	_, err = c.EmbedMany(context.Background(), nil)
	assert.Equal(t, kg.KindValidation, kg.KindOf(err))

	assert.Equal(t, "m", c.ModelName())
}
