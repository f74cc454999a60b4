// Package kg defines the core data model of the yagokoro knowledge graph:
// entities, relations, text chunks, concepts, communities, paths, query
// responses and API keys, together with the closed enumerations they use and
// the shared error model.
//
// Two rules keep the graph consistent and are enforced here rather than in
// any single store implementation:
//
//   - Entity uniqueness: (Type, NormalizeName(Name)) identifies an entity.
//     NormalizeName is the one normalisation function shared by the graph
//     store adapter and the ingestion merge step.
//   - Relation uniqueness: (SourceID, TargetID, Type) identifies a relation.
//     Duplicates merge, keeping the maximum confidence and the union of
//     provenance chunk IDs.
package kg
