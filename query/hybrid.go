package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
)

// Hybrid weighting defaults.
const (
	DefaultLocalWeight  = 0.5
	DefaultGlobalWeight = 0.5
)

// HybridOptions tunes the combined strategy.
type HybridOptions struct {
	// LocalWeight scales entity citation relevances. Zero means
	// DefaultLocalWeight.
	LocalWeight float64
	// GlobalWeight scales community citation relevances. Zero means
	// DefaultGlobalWeight.
	GlobalWeight float64
	// Mode tunes seed retrieval inside the local branch; both branches run
	// regardless.
	Mode kg.SearchMode
}

func (o HybridOptions) localWeight() float64 {
	if o.LocalWeight <= 0 {
		return DefaultLocalWeight
	}
	return o.LocalWeight
}

func (o HybridOptions) globalWeight() float64 {
	if o.GlobalWeight <= 0 {
		return DefaultGlobalWeight
	}
	return o.GlobalWeight
}

// HybridEngine runs the local and global strategies concurrently and merges
// their results. It fails open: when exactly one branch succeeds its answer
// is returned alone, and only when both fail does the query fail.
type HybridEngine struct {
	local  *LocalEngine
	global *GlobalEngine
	opts   HybridOptions
	now    func() time.Time
}

// NewHybridEngine wires a hybrid engine over existing local and global
// engines.
func NewHybridEngine(local *LocalEngine, global *GlobalEngine, opts HybridOptions) *HybridEngine {
	local.opts.Mode = opts.Mode
	return &HybridEngine{local: local, global: global, opts: opts, now: time.Now}
}

type branchResult struct {
	response *kg.QueryResponse
	err      error
}

// Query joins the two branches. Citation relevances are scaled by the branch
// weights; context and chunks are merged.
func (e *HybridEngine) Query(ctx context.Context, q string) (*kg.QueryResponse, error) {
	if strings.TrimSpace(q) == "" {
		return nil, kg.NewValidation("query", "query text is required")
	}

	started := e.now()
	localCh := make(chan branchResult, 1)
	globalCh := make(chan branchResult, 1)
	go func() {
		r, err := e.local.Query(ctx, q)
		localCh <- branchResult{response: r, err: err}
	}()
	go func() {
		r, err := e.global.Query(ctx, q)
		globalCh <- branchResult{response: r, err: err}
	}()
	local, global := <-localCh, <-globalCh

	switch {
	case local.err != nil && global.err != nil:
		log.Warn("query: both hybrid branches failed: local=%v global=%v", local.err, global.err)
		return &kg.QueryResponse{
			Query:     q,
			QueryType: kg.QueryHybrid,
			Success:   false,
			Error:     "local: " + local.err.Error() + "; global: " + global.err.Error(),
		}, kg.Wrap(local.err, "hybrid query: both branches failed")
	case local.err != nil:
		log.Warn("query: local branch failed, using global only: %v", local.err)
		return e.adopt(global.response, started), nil
	case global.err != nil:
		log.Warn("query: global branch failed, using local only: %v", global.err)
		return e.adopt(local.response, started), nil
	}

	return e.merge(ctx, q, local.response, global.response, started)
}

// adopt rebrands a single surviving branch as the hybrid result.
func (e *HybridEngine) adopt(r *kg.QueryResponse, started time.Time) *kg.QueryResponse {
	out := *r
	out.QueryType = kg.QueryHybrid
	out.Metrics.RetrievalMs = e.now().Sub(started).Milliseconds() - out.Metrics.GenerationMs
	return &out
}

// merge combines both branch responses: a synthesised answer, weighted
// citations, and the union of contexts.
func (e *HybridEngine) merge(ctx context.Context, q string, local, global *kg.QueryResponse, started time.Time) (*kg.QueryResponse, error) {
	answer, usage, err := e.synthesise(ctx, q, local.Answer, global.Answer)
	if err != nil {
		// Synthesis is best-effort; the local answer carries the more
		// specific citations.
		log.Warn("query: hybrid synthesis failed, using local answer: %v", err)
		answer = local.Answer
	}

	citations := make([]kg.Citation, 0, len(local.Citations)+len(global.Citations))
	for _, c := range local.Citations {
		c.Relevance *= e.opts.localWeight()
		citations = append(citations, c)
	}
	for _, c := range global.Citations {
		c.Relevance *= e.opts.globalWeight()
		citations = append(citations, c)
	}

	chunks := append([]*kg.TextChunk(nil), local.Context.TextChunks...)
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		seen[c.ID] = true
	}
	for _, c := range global.Context.TextChunks {
		if !seen[c.ID] {
			chunks = append(chunks, c)
		}
	}

	total := e.now().Sub(started).Milliseconds()
	generation := local.Metrics.GenerationMs + global.Metrics.GenerationMs
	return &kg.QueryResponse{
		Query:     q,
		Answer:    answer,
		QueryType: kg.QueryHybrid,
		Citations: citations,
		Context: kg.ContextData{
			Entities:           local.Context.Entities,
			Relations:          local.Context.Relations,
			CommunitySummaries: global.Context.CommunitySummaries,
			TextChunks:         chunks,
		},
		Metrics: kg.QueryMetrics{
			RetrievalMs:  total - generation,
			GenerationMs: generation,
			Entities:     local.Metrics.Entities,
			Relations:    local.Metrics.Relations,
			Communities:  global.Metrics.Communities,
			Tokens:       local.Metrics.Tokens + global.Metrics.Tokens + usage,
		},
		Success: true,
	}, nil
}

const synthesisPrompt = `Two retrieval strategies answered the same question: one from specific entities, one from corpus-wide community summaries. Combine them into a single coherent answer, preferring the specific answer where they overlap.

Entity-level answer:
%s

Corpus-level answer:
%s

Question: %s`

func (e *HybridEngine) synthesise(ctx context.Context, q, localAnswer, globalAnswer string) (string, int, error) {
	prompt := fmt.Sprintf(synthesisPrompt, localAnswer, globalAnswer, q)
	result, err := e.local.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
	if err != nil {
		return "", 0, err
	}
	answer := strings.TrimSpace(result.Content)
	if answer == "" {
		return "", result.Usage.TotalTokens, kg.NewValidation("response", "synthesis returned an empty answer")
	}
	return answer, result.Usage.TotalTokens, nil
}
