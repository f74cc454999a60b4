// Package community detects, summarises, and persists entity communities.
//
// Detection is deterministic label propagation over a graph projection, with
// a connected-components fallback when propagation does not converge, and
// hierarchical agglomeration that contracts each level's communities into
// super-nodes for the next. The summariser asks an LLM for a short summary
// and keywords per community and is idempotent on the membership hash.
package community
