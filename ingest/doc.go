// Package ingest turns documents into knowledge: chunking, LLM entity and
// relation extraction, statistical concept extraction, concept-graph
// construction, and the merge step that writes everything into the graph and
// vector stores under the uniqueness invariants.
//
// The pipeline caps document-level concurrency and embeds chunks in batches;
// a failed document does not abort the batch.
package ingest
