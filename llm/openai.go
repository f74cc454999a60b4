package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// OpenAIConfig configures an OpenAI-compatible endpoint. BaseURL may point
// at any server speaking the OpenAI chat/embeddings protocol (vLLM, Ollama,
// LM Studio, a gateway).
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	// Dimension is the embedding dimension the deployment is pinned to.
	// 0 accepts whatever the endpoint returns.
	Dimension int
}

// OpenAIClient implements Client against an OpenAI-compatible endpoint.
type OpenAIClient struct {
	client         *openai.Client
	model          string
	embeddingModel string
	dimension      int
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the given endpoint configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(c),
		model:          model,
		embeddingModel: embeddingModel,
		dimension:      cfg.Dimension,
	}
}

// Chat implements Client.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*ChatResult, error) {
	if len(messages) == 0 {
		return nil, kg.NewValidation("messages", "at least one message is required")
	}

	model := c.model
	req := openai.ChatCompletionRequest{Model: model}
	if opts != nil {
		if opts.Model != "" {
			req.Model = opts.Model
		}
		req.Temperature = opts.Temperature
		req.MaxTokens = opts.MaxTokens
	}
	req.Messages = make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyAPIError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, kg.NewFatal("chat completion returned no choices", nil)
	}

	choice := resp.Choices[0]
	return &ChatResult{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model: resp.Model,
	}, nil
}

// Embed implements Client.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany implements Client.
func (c *OpenAIClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, kg.NewValidation("texts", "at least one text is required")
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, classifyAPIError("embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, kg.NewFatal("embeddings response length mismatch", nil)
	}

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if c.dimension > 0 && len(d.Embedding) != c.dimension {
			return nil, kg.NewValidation("embedding",
				"endpoint returned a vector of the wrong dimension")
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// ModelName implements Client.
func (c *OpenAIClient) ModelName() string { return c.model }

// classifyAPIError maps provider errors onto the kg error kinds.
func classifyAPIError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return kg.NewTimeout(op, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return kg.NewRateLimited(op+": rate limited", 5*time.Second)
		case apiErr.HTTPStatusCode >= 500:
			return kg.NewTransient(op+": upstream failure", err)
		case apiErr.HTTPStatusCode == 408:
			return kg.NewTimeout(op, err)
		default:
			return kg.NewValidation("request", op+": "+apiErr.Message)
		}
	}

	// Network-level failures without an HTTP status are transient.
	return kg.NewTransient(op, err)
}
