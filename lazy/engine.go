// Package lazy is the budgeted retrieval core: a query is expanded into
// sub-queries, candidate chunks are enumerated through the concept graph's
// reverse indexes, and an assessor model spends a fixed budget of relevance
// tests before claims are extracted and the generator model writes the
// answer.
//
// The assessor and generator are separate clients so deployments can pair a
// cheap assessment model with a stronger generation model.
package lazy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
)

// Preset fixes the relevance-test budget and the sub-query fan-out.
type Preset struct {
	Name       string `json:"name"`
	Budget     int    `json:"budget"`
	SubQueries int    `json:"sub_queries"`
}

// The shipped presets, cheapest first.
var (
	PresetZ100Lite = Preset{Name: "Z100_LITE", Budget: 100, SubQueries: 3}
	PresetZ500     = Preset{Name: "Z500", Budget: 500, SubQueries: 4}
	PresetZ1500    = Preset{Name: "Z1500", Budget: 1500, SubQueries: 5}
)

// PresetByName resolves a preset from its configuration name.
func PresetByName(name string) (Preset, error) {
	switch strings.ToUpper(name) {
	case PresetZ100Lite.Name:
		return PresetZ100Lite, nil
	case PresetZ500.Name:
		return PresetZ500, nil
	case PresetZ1500.Name:
		return PresetZ1500, nil
	}
	return Preset{}, kg.NewValidation("preset", "unknown preset "+name)
}

// DefaultAssessThreshold keeps a chunk only when the assessor scores it at
// least this relevant.
const DefaultAssessThreshold = 0.5

// Options tunes one engine instance.
type Options struct {
	Preset Preset
	// AssessThreshold floors the assessor score for a chunk to survive.
	// Zero means DefaultAssessThreshold.
	AssessThreshold float64
	// Chat options forwarded to both models.
	Chat *llm.ChatOptions
}

func (o Options) preset() Preset {
	if o.Preset.Budget <= 0 {
		return PresetZ100Lite
	}
	return o.Preset
}

func (o Options) threshold() float64 {
	if o.AssessThreshold <= 0 {
		return DefaultAssessThreshold
	}
	return o.AssessThreshold
}

// Claim is one statement extracted from a relevant chunk.
type Claim struct {
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
	ChunkID   string  `json:"chunk_id"`
}

// Response is the outcome of one lazy query. BudgetRemaining always equals
// the preset budget minus RelevanceTestsUsed.
type Response struct {
	Query              string        `json:"query"`
	Answer             string        `json:"answer"`
	SubQueries         []string      `json:"sub_queries"`
	Claims             []Claim       `json:"claims,omitempty"`
	Sources            []string      `json:"sources,omitempty"`
	RelevanceTestsUsed int           `json:"relevance_tests_used"`
	BudgetRemaining    int           `json:"budget_remaining"`
	Elapsed            time.Duration `json:"elapsed"`
}

// Engine runs the five lazy stages over a concept graph and its chunks.
type Engine struct {
	assessor  llm.Client
	generator llm.Client
	graph     *kg.ConceptGraph
	chunks    map[string]*kg.TextChunk
	opts      Options
}

// NewEngine wires an engine. The chunk slice must cover the chunk IDs the
// concept graph's reverse indexes reference.
func NewEngine(assessor, generator llm.Client, graph *kg.ConceptGraph, chunks []*kg.TextChunk, opts Options) *Engine {
	byID := make(map[string]*kg.TextChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	return &Engine{assessor: assessor, generator: generator, graph: graph, chunks: byID, opts: opts}
}

const expandPrompt = `Decompose the question into %d focused sub-queries that each target a different aspect or concept cluster.

Return a JSON object only, no prose:
{"sub_queries": ["...", "..."]}

Question: %s`

const assessPrompt = `Judge whether the passage is relevant to the question.

Return a JSON object only, no prose:
{"relevant": true, "score": 0.0}

Question: %s

Passage:
%s`

const claimsPrompt = `Extract the factual claims in the passage that bear on the question, each with a relevance score in [0,1].

Return a JSON object only, no prose:
{"claims": [{"text": "...", "relevance": 0.0}]}

Question: %s

Passage:
%s`

const generatePrompt = `Answer the question from the claims below, citing no facts beyond them.

Claims:
%s
Question: %s`

// Query runs expand, search, assess, extract, generate. The budget bounds
// only the assessment stage; a query never issues more relevance tests than
// the preset allows, and an answer is produced even when every test comes
// back negative.
func (e *Engine) Query(ctx context.Context, q string) (*Response, error) {
	if strings.TrimSpace(q) == "" {
		return nil, kg.NewValidation("query", "query text is required")
	}
	if e.graph == nil {
		return nil, kg.NewValidation("graph", "concept graph is required")
	}

	started := time.Now()
	preset := e.opts.preset()
	response := &Response{Query: q, BudgetRemaining: preset.Budget}

	response.SubQueries = e.expand(ctx, q, preset.SubQueries)
	candidates := e.search(response.SubQueries)

	relevant := e.assess(ctx, q, candidates, response)
	response.Claims = e.extract(ctx, q, relevant)

	answer, err := e.generate(ctx, q, response.Claims, candidates)
	if err != nil {
		return nil, err
	}
	response.Answer = answer

	sourceSet := make(map[string]bool)
	for _, c := range response.Claims {
		if !sourceSet[c.ChunkID] {
			sourceSet[c.ChunkID] = true
			response.Sources = append(response.Sources, c.ChunkID)
		}
	}
	sort.Strings(response.Sources)
	response.Elapsed = time.Since(started)
	return response, nil
}

type subQueryEnvelope struct {
	SubQueries []string `json:"sub_queries"`
}

// expand asks the assessor model for sub-queries; any failure degrades to
// the original query so the pipeline always proceeds.
func (e *Engine) expand(ctx context.Context, q string, n int) []string {
	prompt := fmt.Sprintf(expandPrompt, n, q)
	result, err := e.assessor.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, e.opts.Chat)
	if err != nil {
		log.Warn("lazy: sub-query expansion failed, using the query itself: %v", err)
		return []string{q}
	}

	var envelope subQueryEnvelope
	if err := json.Unmarshal([]byte(stripCodeFence(result.Content)), &envelope); err != nil || len(envelope.SubQueries) == 0 {
		log.Warn("lazy: sub-query expansion returned no usable JSON")
		return []string{q}
	}
	if len(envelope.SubQueries) > n {
		envelope.SubQueries = envelope.SubQueries[:n]
	}
	return envelope.SubQueries
}

// candidate is one chunk with its accumulated concept-match weight.
type candidate struct {
	chunk  *kg.TextChunk
	weight float64
}

// search enumerates candidate chunks through the concept graph: concepts
// matched directly in a sub-query count full weight, concepts pulled in via
// shared community membership count half. The result is ranked and
// de-duplicated across sub-queries.
func (e *Engine) search(subQueries []string) []candidate {
	weights := make(map[string]float64)
	for _, sq := range subQueries {
		matched := e.matchConcepts(sq)
		expanded := e.communityConcepts(matched)

		for concept := range matched {
			importance := e.graph.Concepts[concept].Importance
			for _, chunkID := range e.graph.ConceptChunks[concept] {
				weights[chunkID] += importance
			}
		}
		for concept := range expanded {
			if matched[concept] {
				continue
			}
			node, ok := e.graph.Concepts[concept]
			if !ok {
				continue
			}
			for _, chunkID := range e.graph.ConceptChunks[concept] {
				weights[chunkID] += node.Importance * 0.5
			}
		}
	}

	candidates := make([]candidate, 0, len(weights))
	for chunkID, w := range weights {
		chunk, ok := e.chunks[chunkID]
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{chunk: chunk, weight: w})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].weight != candidates[j].weight {
			return candidates[i].weight > candidates[j].weight
		}
		return candidates[i].chunk.ID < candidates[j].chunk.ID
	})
	return candidates
}

// matchConcepts finds graph concepts mentioned in the text, by unigram and
// bigram.
func (e *Engine) matchConcepts(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		words[i] = strings.Trim(w, ".,;:!?\"'()")
	}

	matched := make(map[string]bool)
	try := func(phrase string) {
		if _, ok := e.graph.Concepts[phrase]; ok {
			matched[phrase] = true
		}
	}
	for i, w := range words {
		try(w)
		if i+1 < len(words) {
			try(w + " " + words[i+1])
		}
	}
	return matched
}

// communityConcepts expands a concept set to the top concepts of every
// community containing one of them.
func (e *Engine) communityConcepts(matched map[string]bool) map[string]bool {
	expanded := make(map[string]bool)
	for _, community := range e.graph.Communities {
		touches := false
		for _, member := range community.MemberIDs {
			if matched[member] {
				touches = true
				break
			}
		}
		if !touches {
			continue
		}
		for _, top := range e.graph.TopConcepts[community.ID] {
			expanded[top] = true
		}
	}
	return expanded
}

type assessEnvelope struct {
	Relevant bool    `json:"relevant"`
	Score    float64 `json:"score"`
}

// assess spends the budget: one relevance test per candidate, stopping the
// moment the budget is exhausted. Unparseable verdicts consume their test
// and count as negative.
func (e *Engine) assess(ctx context.Context, q string, candidates []candidate, response *Response) []candidate {
	preset := e.opts.preset()
	threshold := e.opts.threshold()

	var relevant []candidate
	for _, c := range candidates {
		if response.BudgetRemaining <= 0 {
			break
		}
		response.RelevanceTestsUsed++
		response.BudgetRemaining = preset.Budget - response.RelevanceTestsUsed

		prompt := fmt.Sprintf(assessPrompt, q, c.chunk.Content)
		result, err := e.assessor.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, e.opts.Chat)
		if err != nil {
			log.Warn("lazy: relevance test for %s failed: %v", c.chunk.ID, err)
			continue
		}
		var verdict assessEnvelope
		if err := json.Unmarshal([]byte(stripCodeFence(result.Content)), &verdict); err != nil {
			log.Warn("lazy: relevance test for %s returned invalid JSON", c.chunk.ID)
			continue
		}
		if verdict.Relevant && verdict.Score >= threshold {
			relevant = append(relevant, c)
		}
	}
	return relevant
}

type claimsEnvelope struct {
	Claims []struct {
		Text      string  `json:"text"`
		Relevance float64 `json:"relevance"`
	} `json:"claims"`
}

// extract pulls claims from every surviving chunk. Extraction failures drop
// the chunk, not the query.
func (e *Engine) extract(ctx context.Context, q string, relevant []candidate) []Claim {
	var claims []Claim
	for _, c := range relevant {
		prompt := fmt.Sprintf(claimsPrompt, q, c.chunk.Content)
		result, err := e.assessor.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, e.opts.Chat)
		if err != nil {
			log.Warn("lazy: claim extraction for %s failed: %v", c.chunk.ID, err)
			continue
		}
		var envelope claimsEnvelope
		if err := json.Unmarshal([]byte(stripCodeFence(result.Content)), &envelope); err != nil {
			log.Warn("lazy: claim extraction for %s returned invalid JSON", c.chunk.ID)
			continue
		}
		for _, claim := range envelope.Claims {
			text := strings.TrimSpace(claim.Text)
			if text == "" {
				continue
			}
			claims = append(claims, Claim{Text: text, Relevance: claim.Relevance, ChunkID: c.chunk.ID})
		}
	}
	sort.SliceStable(claims, func(i, j int) bool { return claims[i].Relevance > claims[j].Relevance })
	return claims
}

// generate writes the final answer from the claims, or best-effort from the
// top-ranked candidates when no claim survived.
func (e *Engine) generate(ctx context.Context, q string, claims []Claim, candidates []candidate) (string, error) {
	var material strings.Builder
	if len(claims) > 0 {
		for _, c := range claims {
			fmt.Fprintf(&material, "- (%.2f) %s\n", c.Relevance, c.Text)
		}
	} else {
		// Best effort: no claim survived the budget, fall back to the
		// strongest raw candidates so the caller still gets an answer.
		limit := 3
		for i, c := range candidates {
			if i >= limit {
				break
			}
			fmt.Fprintf(&material, "- %s\n", c.chunk.Content)
		}
		if material.Len() == 0 {
			material.WriteString("- (no indexed material matched the question)\n")
		}
	}

	prompt := fmt.Sprintf(generatePrompt, material.String(), q)
	result, err := e.generator.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, e.opts.Chat)
	if err != nil {
		return "", kg.Wrap(err, "lazy answer generation")
	}
	answer := strings.TrimSpace(result.Content)
	if answer == "" {
		return "", kg.NewValidation("response", "generator returned an empty answer")
	}
	return answer, nil
}

// stripCodeFence removes a surrounding markdown code fence from a model
// reply.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
