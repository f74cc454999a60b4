package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// MockClient is a scriptable in-memory Client for tests.
//
// Chat responses are matched by substring against the last user message:
// the first Respond rule whose pattern appears in the message wins, then
// DefaultResponse. Embeddings are deterministic unit vectors derived from a
// hash of the text, so identical texts are identical vectors and similar
// calls are reproducible across runs.
type MockClient struct {
	mu sync.Mutex

	rules           []mockRule
	DefaultResponse string
	// Err, when set, is returned by every call.
	Err error
	// Dimension of generated embeddings. Defaults to 8.
	Dimension int

	// Calls records every chat invocation for assertions.
	Calls []string
}

type mockRule struct {
	pattern  string
	response string
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a mock with a default echo response.
func NewMockClient() *MockClient {
	return &MockClient{DefaultResponse: "ok", Dimension: 8}
}

// Respond registers a canned response for messages containing pattern.
func (m *MockClient) Respond(pattern, response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: pattern, response: response})
	return m
}

// Chat implements Client.
func (m *MockClient) Chat(_ context.Context, messages []Message, _ *ChatOptions) (*ChatResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			last = messages[i].Content
			break
		}
	}
	m.Calls = append(m.Calls, last)

	content := m.DefaultResponse
	for _, r := range m.rules {
		if strings.Contains(last, r.pattern) {
			content = r.response
			break
		}
	}

	promptTokens := len(strings.Fields(last))
	completionTokens := len(strings.Fields(content))
	return &ChatResult{
		Content:      content,
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Model: "mock",
	}, nil
}

// Embed implements Client.
func (m *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.vector(text), nil
}

// EmbedMany implements Client.
func (m *MockClient) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

// ModelName implements Client.
func (m *MockClient) ModelName() string { return "mock" }

// ChatCallCount returns how many chat calls the mock has served.
func (m *MockClient) ChatCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// vector builds a deterministic unit vector from the token hashes of text,
// so texts sharing words are closer in cosine space than unrelated texts.
func (m *MockClient) vector(text string) []float32 {
	dim := m.Dimension
	if dim <= 0 {
		dim = 8
	}

	vec := make([]float32, dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		vec[int(sum)%dim] += 1.0
		vec[int(sum>>8)%dim] += 0.5
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
