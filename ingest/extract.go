package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
)

// DefaultMinConfidence drops low-certainty extractions before they reach the
// merge step.
const DefaultMinConfidence = 0.5

const entityPromptTemplate = `Extract named entities from the research text below.

Allowed entity types: %s

Return a JSON object only, no prose:
{"entities": [{"name": "...", "type": "...", "description": "...", "confidence": 0.0}]}

Confidence is your certainty in [0,1] that the entity is real and correctly typed.

Text:
%s`

const relationPromptTemplate = `Extract relationships between the entities listed below, based only on the research text.

Allowed relation types: %s

Known entities:
%s

Return a JSON object only, no prose:
{"relations": [{"source": "...", "target": "...", "type": "...", "confidence": 0.0}]}

Source and target must be entity names from the list above.

Text:
%s`

// ExtractOptions tunes one extraction call.
type ExtractOptions struct {
	// MinConfidence filters extractions below the threshold. Zero means
	// DefaultMinConfidence.
	MinConfidence float64
	// AllowedTypes restricts the entity types offered to the model. Empty
	// means all types.
	AllowedTypes []kg.EntityType
	// Chat options forwarded to the model.
	Chat *llm.ChatOptions
}

func (o ExtractOptions) minConfidence() float64 {
	if o.MinConfidence <= 0 {
		return DefaultMinConfidence
	}
	return o.MinConfidence
}

func (o ExtractOptions) entityTypes() []kg.EntityType {
	if len(o.AllowedTypes) == 0 {
		return kg.AllEntityTypes
	}
	return o.AllowedTypes
}

// ExtractionMeta reports cost and timing for one extraction call.
type ExtractionMeta struct {
	Model   string        `json:"model"`
	Usage   llm.Usage     `json:"usage"`
	Elapsed time.Duration `json:"elapsed"`
}

type entityDTO struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type entityEnvelope struct {
	Entities []entityDTO `json:"entities"`
}

type relationDTO struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type relationEnvelope struct {
	Relations []relationDTO `json:"relations"`
}

// EntityExtractor pulls typed entities out of a text chunk with an LLM.
type EntityExtractor struct {
	client llm.Client
}

// NewEntityExtractor creates an extractor backed by client.
func NewEntityExtractor(client llm.Client) *EntityExtractor {
	return &EntityExtractor{client: client}
}

// Extract returns the entities found in chunk. IDs are temporary
// ("<chunkID>-e<n>") until the merge step resolves them against the graph;
// SourceChunks carries the chunk ID as provenance. Entities with an unknown
// type or confidence below the threshold are dropped, not errors. A response
// that is not valid JSON is a validation error.
func (x *EntityExtractor) Extract(ctx context.Context, chunk *kg.TextChunk, opts ExtractOptions) ([]*kg.Entity, *ExtractionMeta, error) {
	if chunk == nil || strings.TrimSpace(chunk.Content) == "" {
		return nil, nil, kg.NewValidation("chunk", "chunk content is empty")
	}

	types := opts.entityTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	prompt := fmt.Sprintf(entityPromptTemplate, strings.Join(names, ", "), chunk.Content)

	start := time.Now()
	result, err := x.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts.Chat)
	if err != nil {
		return nil, nil, kg.Wrap(err, "entity extraction")
	}
	meta := &ExtractionMeta{Model: result.Model, Usage: result.Usage, Elapsed: time.Since(start)}

	var envelope entityEnvelope
	if err := json.Unmarshal([]byte(stripCodeFence(result.Content)), &envelope); err != nil {
		return nil, meta, kg.NewValidation("response", "entity extraction returned invalid JSON: "+err.Error())
	}

	minConf := opts.minConfidence()
	now := time.Now().UTC()
	entities := make([]*kg.Entity, 0, len(envelope.Entities))
	for i, dto := range envelope.Entities {
		name := strings.TrimSpace(dto.Name)
		if name == "" {
			continue
		}
		typ := kg.EntityType(dto.Type)
		if !typ.Valid() {
			log.Debug("ingest: dropping entity %q with unknown type %q", name, dto.Type)
			continue
		}
		if dto.Confidence < minConf {
			continue
		}
		entities = append(entities, &kg.Entity{
			ID:           fmt.Sprintf("%s-e%d", chunk.ID, i),
			Type:         typ,
			Name:         name,
			Description:  strings.TrimSpace(dto.Description),
			Confidence:   clamp01(dto.Confidence),
			SourceChunks: []string{chunk.ID},
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return entities, meta, nil
}

// RelationExtractor pulls typed relations between known entities out of a
// text chunk.
type RelationExtractor struct {
	client llm.Client
}

// NewRelationExtractor creates an extractor backed by client.
func NewRelationExtractor(client llm.Client) *RelationExtractor {
	return &RelationExtractor{client: client}
}

// Extract returns relations whose endpoints resolve, by normalised name, to
// one of the supplied entities. Relations naming unknown entities or unknown
// types are dropped. Fewer than two entities short-circuits to an empty
// result without a model call.
func (x *RelationExtractor) Extract(ctx context.Context, chunk *kg.TextChunk, entities []*kg.Entity, opts ExtractOptions) ([]*kg.Relation, *ExtractionMeta, error) {
	if chunk == nil || strings.TrimSpace(chunk.Content) == "" {
		return nil, nil, kg.NewValidation("chunk", "chunk content is empty")
	}
	if len(entities) < 2 {
		return nil, &ExtractionMeta{}, nil
	}

	byName := make(map[string]*kg.Entity, len(entities))
	listing := make([]string, len(entities))
	for i, e := range entities {
		byName[kg.NormalizeName(e.Name)] = e
		listing[i] = fmt.Sprintf("- %s (%s)", e.Name, e.Type)
	}

	relNames := make([]string, len(kg.AllRelationTypes))
	for i, t := range kg.AllRelationTypes {
		relNames[i] = string(t)
	}
	prompt := fmt.Sprintf(relationPromptTemplate,
		strings.Join(relNames, ", "), strings.Join(listing, "\n"), chunk.Content)

	start := time.Now()
	result, err := x.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts.Chat)
	if err != nil {
		return nil, nil, kg.Wrap(err, "relation extraction")
	}
	meta := &ExtractionMeta{Model: result.Model, Usage: result.Usage, Elapsed: time.Since(start)}

	var envelope relationEnvelope
	if err := json.Unmarshal([]byte(stripCodeFence(result.Content)), &envelope); err != nil {
		return nil, meta, kg.NewValidation("response", "relation extraction returned invalid JSON: "+err.Error())
	}

	minConf := opts.minConfidence()
	now := time.Now().UTC()
	relations := make([]*kg.Relation, 0, len(envelope.Relations))
	for _, dto := range envelope.Relations {
		source, ok := byName[kg.NormalizeName(dto.Source)]
		if !ok {
			log.Debug("ingest: dropping relation with unknown source %q", dto.Source)
			continue
		}
		target, ok := byName[kg.NormalizeName(dto.Target)]
		if !ok {
			log.Debug("ingest: dropping relation with unknown target %q", dto.Target)
			continue
		}
		typ := kg.RelationType(dto.Type)
		if !typ.Valid() {
			log.Debug("ingest: dropping relation with unknown type %q", dto.Type)
			continue
		}
		if dto.Confidence < minConf || source.ID == target.ID {
			continue
		}
		relations = append(relations, &kg.Relation{
			ID:           fmt.Sprintf("%s->%s:%s", source.ID, target.ID, typ),
			SourceID:     source.ID,
			TargetID:     target.ID,
			Type:         typ,
			Confidence:   clamp01(dto.Confidence),
			SourceChunks: []string{chunk.ID},
			CreatedAt:    now,
		})
	}
	return relations, meta, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some models
// wrap around JSON even when told not to.
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

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
