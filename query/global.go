package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

// Global retrieval defaults.
const (
	DefaultMaxCommunities = 10
	DefaultBatchSize      = 5
)

const mapPrompt = `Using only the community summaries below, write a short partial answer to the question. If the summaries say nothing relevant, answer exactly: NONE.

Summaries:
%s
Question: %s`

const reducePrompt = `Combine the partial answers below into one final answer to the question. Resolve overlaps; drop anything irrelevant.

Partial answers:
%s
Question: %s`

// GlobalOptions tunes community-centric retrieval.
type GlobalOptions struct {
	// CommunityLevel selects the hierarchy level to reason over; 0 is the
	// finest partition.
	CommunityLevel int
	// MaxCommunities caps the ranked summary set. Zero means
	// DefaultMaxCommunities.
	MaxCommunities int
	// BatchSize is the map-phase batch width. Zero means DefaultBatchSize.
	BatchSize int
	// Chat options forwarded to the model.
	Chat *llm.ChatOptions
}

func (o GlobalOptions) maxCommunities() int {
	if o.MaxCommunities <= 0 {
		return DefaultMaxCommunities
	}
	return o.MaxCommunities
}

func (o GlobalOptions) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// rankedCommunity pairs a community with its query relevance.
type rankedCommunity struct {
	community *kg.Community
	relevance float64
}

// GlobalEngine answers corpus-level questions by map-reducing over
// pre-computed community summaries.
type GlobalEngine struct {
	graph  graphstore.Store
	client llm.Client
	opts   GlobalOptions
	now    func() time.Time
}

// NewGlobalEngine wires a global engine.
func NewGlobalEngine(graph graphstore.Store, client llm.Client, opts GlobalOptions) *GlobalEngine {
	return &GlobalEngine{graph: graph, client: client, opts: opts, now: time.Now}
}

// Query ranks community summaries by similarity to the query, produces
// partial answers per batch, and reduces them into one final answer with
// community citations.
func (e *GlobalEngine) Query(ctx context.Context, q string) (*kg.QueryResponse, error) {
	if strings.TrimSpace(q) == "" {
		return nil, kg.NewValidation("query", "query text is required")
	}

	retrievalStart := e.now()
	ranked, err := e.rankCommunities(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, kg.NewNotFound("summarised communities at level", fmt.Sprint(e.opts.CommunityLevel))
	}
	retrievalMs := e.now().Sub(retrievalStart).Milliseconds()

	generationStart := e.now()
	partials, usage, err := e.mapPhase(ctx, q, ranked)
	if err != nil {
		return nil, err
	}
	answer, reduceUsage, err := e.reducePhase(ctx, q, partials)
	if err != nil {
		return nil, err
	}
	usage.TotalTokens += reduceUsage.TotalTokens

	summaries := make([]string, len(ranked))
	citations := make([]kg.Citation, len(ranked))
	for i, rc := range ranked {
		summaries[i] = rc.community.Summary
		citations[i] = kg.Citation{
			SourceID:   rc.community.ID,
			SourceName: strings.Join(rc.community.Keywords, ", "),
			SourceType: "community",
			Relevance:  rc.relevance,
			Excerpt:    rc.community.Summary,
		}
	}

	return &kg.QueryResponse{
		Query:     q,
		Answer:    answer,
		QueryType: kg.QueryGlobal,
		Citations: citations,
		Context:   kg.ContextData{CommunitySummaries: summaries},
		Metrics: kg.QueryMetrics{
			RetrievalMs:  retrievalMs,
			GenerationMs: e.now().Sub(generationStart).Milliseconds(),
			Communities:  len(ranked),
			Tokens:       usage.TotalTokens,
		},
		Success: true,
	}, nil
}

// rankCommunities embeds the query and every summary, keeping the top
// MaxCommunities by cosine similarity. Communities without a summary are
// skipped; they have not been through the summariser yet.
func (e *GlobalEngine) rankCommunities(ctx context.Context, q string) ([]rankedCommunity, error) {
	communities, err := e.graph.Communities(ctx, e.opts.CommunityLevel)
	if err != nil {
		return nil, err
	}
	var summarised []*kg.Community
	for _, c := range communities {
		if c.Summary != "" {
			summarised = append(summarised, c)
		}
	}
	if len(summarised) == 0 {
		return nil, nil
	}

	queryVec, err := e.client.Embed(ctx, q)
	if err != nil {
		return nil, kg.Wrap(err, "embed query")
	}
	texts := make([]string, len(summarised))
	for i, c := range summarised {
		texts[i] = c.Summary
	}
	summaryVecs, err := e.client.EmbedMany(ctx, texts)
	if err != nil {
		return nil, kg.Wrap(err, "embed community summaries")
	}

	ranked := make([]rankedCommunity, len(summarised))
	for i, c := range summarised {
		ranked[i] = rankedCommunity{
			community: c,
			relevance: vectorstore.CosineSimilarity(queryVec, summaryVecs[i]),
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].relevance != ranked[j].relevance {
			return ranked[i].relevance > ranked[j].relevance
		}
		return ranked[i].community.ID < ranked[j].community.ID
	})
	if len(ranked) > e.opts.maxCommunities() {
		ranked = ranked[:e.opts.maxCommunities()]
	}
	return ranked, nil
}

// mapPhase produces one partial answer per summary batch. Batches that
// answer NONE are dropped.
func (e *GlobalEngine) mapPhase(ctx context.Context, q string, ranked []rankedCommunity) ([]string, llm.Usage, error) {
	var partials []string
	var usage llm.Usage

	size := e.opts.batchSize()
	for start := 0; start < len(ranked); start += size {
		end := start + size
		if end > len(ranked) {
			end = len(ranked)
		}

		var b strings.Builder
		for _, rc := range ranked[start:end] {
			fmt.Fprintf(&b, "- [%s] %s\n", rc.community.ID, rc.community.Summary)
		}
		prompt := fmt.Sprintf(mapPrompt, b.String(), q)
		result, err := e.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, e.opts.Chat)
		if err != nil {
			return nil, usage, kg.Wrap(err, "global map phase")
		}
		usage.TotalTokens += result.Usage.TotalTokens

		partial := strings.TrimSpace(result.Content)
		if partial == "" || strings.EqualFold(partial, "NONE") {
			continue
		}
		partials = append(partials, partial)
	}
	return partials, usage, nil
}

// reducePhase folds the partial answers into the final one. A single partial
// skips the reduce call; no partials at all yields an honest empty-handed
// answer without another model round-trip.
func (e *GlobalEngine) reducePhase(ctx context.Context, q string, partials []string) (string, llm.Usage, error) {
	switch len(partials) {
	case 0:
		log.Debug("query: no community batch produced a partial answer for %q", q)
		return "The indexed communities contain no information relevant to this question.", llm.Usage{}, nil
	case 1:
		return partials[0], llm.Usage{}, nil
	}

	var b strings.Builder
	for i, p := range partials {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	result, err := e.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(reducePrompt, b.String(), q)}}, e.opts.Chat)
	if err != nil {
		return "", llm.Usage{}, kg.Wrap(err, "global reduce phase")
	}
	answer := strings.TrimSpace(result.Content)
	if answer == "" {
		return "", result.Usage, kg.NewValidation("response", "reduce phase returned an empty answer")
	}
	return answer, result.Usage, nil
}
