package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/llm"
	"github.com/yagokoro-dev/yagokoro/log"
)

// DefaultMaxConcurrentDocuments bounds cross-document parallelism.
const DefaultMaxConcurrentDocuments = 5

// PipelineOptions tunes one ingestion batch.
type PipelineOptions struct {
	// MaxConcurrentDocuments bounds how many documents are processed in
	// parallel. Zero means DefaultMaxConcurrentDocuments.
	MaxConcurrentDocuments int
	// ChunkSize and ChunkOverlap configure the splitter; zero values use
	// the chunker defaults.
	ChunkSize    int
	ChunkOverlap int
	// Extract is forwarded to both extractors.
	Extract ExtractOptions
	// Concepts, when true, also runs statistical concept extraction and
	// returns a concept graph for the whole batch.
	Concepts bool
	// ConceptOptions tunes concept extraction when Concepts is set.
	ConceptOptions ConceptOptions
	// Build tunes concept-graph construction when Concepts is set.
	Build BuildOptions
}

func (o PipelineOptions) maxConcurrent() int {
	if o.MaxConcurrentDocuments <= 0 {
		return DefaultMaxConcurrentDocuments
	}
	return o.MaxConcurrentDocuments
}

// DocumentStatus is the per-document outcome of a batch. A failed document
// never aborts the batch; Err carries its first error.
type DocumentStatus struct {
	DocumentID string       `json:"document_id"`
	Merge      *MergeResult `json:"merge,omitempty"`
	Err        error        `json:"-"`
}

// BatchResult is the outcome of one IngestDocuments call. Statuses preserves
// input order.
type BatchResult struct {
	Statuses     []DocumentStatus `json:"statuses"`
	ConceptGraph *kg.ConceptGraph `json:"concept_graph,omitempty"`
}

// Failed returns the statuses of documents that did not ingest.
func (r *BatchResult) Failed() []DocumentStatus {
	var failed []DocumentStatus
	for _, s := range r.Statuses {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Pipeline runs the full ingestion flow: chunk, extract entities, extract
// relations, merge, and optionally build a concept graph over the batch.
type Pipeline struct {
	chunker   *Chunker
	entities  *EntityExtractor
	relations *RelationExtractor
	concepts  *ConceptExtractor
	builder   *ConceptGraphBuilder
	merger    *Merger
	opts      PipelineOptions
}

// NewPipeline wires a pipeline from an LLM client and a merger.
func NewPipeline(client llm.Client, merger *Merger, opts PipelineOptions) *Pipeline {
	return &Pipeline{
		chunker:   NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		entities:  NewEntityExtractor(client),
		relations: NewRelationExtractor(client),
		concepts:  NewConceptExtractor(),
		builder:   NewConceptGraphBuilder(),
		merger:    merger,
		opts:      opts,
	}
}

// IngestDocuments processes the batch with bounded concurrency across
// documents; within a document the stages run sequentially. Per-document
// failures are captured in the result so one bad paper cannot sink a batch;
// only context cancellation stops the run early.
func (p *Pipeline) IngestDocuments(ctx context.Context, docs []Document) (*BatchResult, error) {
	if len(docs) == 0 {
		return nil, kg.NewValidation("documents", "no documents to ingest")
	}

	result := &BatchResult{Statuses: make([]DocumentStatus, len(docs))}

	var mu sync.Mutex
	var allChunks []*kg.TextChunk

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.maxConcurrent())
	for i, doc := range docs {
		g.Go(func() error {
			status := DocumentStatus{DocumentID: doc.ID}
			chunks, err := p.ingestOne(gctx, doc, &status)
			if err != nil {
				log.Warn("ingest: document %s failed: %v", doc.ID, err)
				status.Err = err
			}
			mu.Lock()
			result.Statuses[i] = status
			allChunks = append(allChunks, chunks...)
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return result, kg.NewTimeout("ingestion batch cancelled", err)
	}

	if p.opts.Concepts && len(allChunks) > 0 {
		concepts, cooccs, err := p.concepts.Extract(allChunks, p.opts.ConceptOptions)
		if err != nil {
			return result, err
		}
		if len(concepts) > 0 {
			graph, err := p.builder.Build(concepts, cooccs, allChunks, p.opts.Build)
			if err != nil {
				return result, err
			}
			result.ConceptGraph = graph
		}
	}
	return result, nil
}

// ingestOne runs the sequential per-document stages and merges the result.
func (p *Pipeline) ingestOne(ctx context.Context, doc Document, status *DocumentStatus) ([]*kg.TextChunk, error) {
	chunks, err := p.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}

	extraction := DocumentExtraction{Document: doc, Chunks: chunks}
	for _, chunk := range chunks {
		entities, _, err := p.entities.Extract(ctx, chunk, p.opts.Extract)
		if err != nil {
			return chunks, err
		}
		relations, _, err := p.relations.Extract(ctx, chunk, entities, p.opts.Extract)
		if err != nil {
			return chunks, err
		}
		extraction.Entities = append(extraction.Entities, entities...)
		extraction.Relations = append(extraction.Relations, relations...)
	}

	merge, err := p.merger.MergeDocument(ctx, extraction)
	status.Merge = merge
	if err != nil {
		return chunks, err
	}
	log.Info("ingest: document %s merged %d entities, %d relations", doc.ID, merge.Entities, merge.Relations)
	return chunks, nil
}
