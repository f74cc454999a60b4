// Package query implements the retrieval strategies of the engine: local
// (entity-neighbourhood expansion), global (community-summary map-reduce) and
// hybrid (both at once, fail-open), plus the answer consistency checker.
//
// Every strategy produces the same kg.QueryResponse shape with citations,
// retrieval context and timing metrics, so callers can switch strategies
// without changing how they consume results.
package query
