// Package yagokoro is a knowledge-graph retrieval engine (GraphRAG) for
// research literature.
//
// It ingests documents into a labelled property graph augmented with vector
// embeddings, discovers hierarchical communities over that graph, and answers
// natural-language queries through local neighbourhood expansion, global
// community-summary reasoning, multi-hop path search, and budgeted lazy
// retrieval over a concept graph.
//
// The top-level packages are:
//
//   - kg          — core data model (entities, relations, chunks, concepts,
//     communities, paths) and the shared error model
//   - graphstore  — graph store adapter (in-memory and FalkorDB backends)
//   - vectorstore — vector store adapter (in-memory and pgvector backends)
//   - llm         — LLM chat/embedding client interface and OpenAI-compatible
//     implementation
//   - ingest      — chunking, entity/relation/concept extraction and the
//     idempotent merge pipeline
//   - community   — label-propagation community detection, hierarchy and
//     LLM summarisation
//   - query       — local, global and hybrid retrieval engines
//   - pathfind    — multi-hop path search, caching and explanation
//   - lazy        — budgeted relevance-test retrieval core
//   - analytics   — research-cluster and trend analysis
//   - secure      — secrets, API keys, RBAC, rate limiting and input
//     validation
//   - services    — external collaborators (arXiv, Unpaywall, translation,
//     PDF extraction)
//   - config      — YAML configuration schema, loader and env overrides
//   - backup      — versioned JSON archive snapshot/restore
//   - mcpserver   — MCP tool/resource server surface
//
// The CLI lives in cmd/yagokoro.
package yagokoro // import "github.com/yagokoro-dev/yagokoro"
