// Package llm defines the chat and embedding client interface used by every
// component that talks to a language model, plus an OpenAI-compatible
// implementation and a scriptable mock for tests.
//
// No component holds a concrete provider reference; clients are injected via
// constructor arguments so implementations can be swapped or mocked at the
// interface boundary.
package llm

import (
	"context"
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a single chat call. Zero values fall back to the
// client's defaults.
type ChatOptions struct {
	Temperature float32
	MaxTokens   int
	Model       string
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the outcome of a chat call.
type ChatResult struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
	Model        string `json:"model"`
}

// Client is the LLM boundary of the engine. Chat errors are classified into
// the kg error kinds: rate limits are retryable with a server delay,
// timeouts are retryable once, invalid requests are permanent.
type Client interface {
	// Chat sends the conversation and returns the assistant reply.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*ChatResult, error)

	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany embeds a batch of texts, preserving order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the default chat model identifier.
	ModelName() string
}
