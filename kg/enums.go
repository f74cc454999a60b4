package kg

// EntityType is the closed set of node labels in the knowledge graph.
// Open extension requires a migration; see Valid.
type EntityType string

const (
	EntityAIModel      EntityType = "AIModel"
	EntityOrganization EntityType = "Organization"
	EntityPerson       EntityType = "Person"
	EntityTechnique    EntityType = "Technique"
	EntityConcept      EntityType = "Concept"
	EntityPublication  EntityType = "Publication"
	EntityBenchmark    EntityType = "Benchmark"
	EntityEvent        EntityType = "Event"
	EntityCommunity    EntityType = "Community"
	EntityDataset      EntityType = "Dataset"
)

// AllEntityTypes lists every valid entity type.
var AllEntityTypes = []EntityType{
	EntityAIModel, EntityOrganization, EntityPerson, EntityTechnique,
	EntityConcept, EntityPublication, EntityBenchmark, EntityEvent,
	EntityCommunity, EntityDataset,
}

// Valid reports whether t is a member of the closed entity-type set.
func (t EntityType) Valid() bool {
	for _, e := range AllEntityTypes {
		if t == e {
			return true
		}
	}
	return false
}

// RelationType is the closed set of edge labels in the knowledge graph.
type RelationType string

const (
	RelDevelopedBy   RelationType = "DEVELOPED_BY"
	RelUsesTechnique RelationType = "USES_TECHNIQUE"
	RelBasedOn       RelationType = "BASED_ON"
	RelEmployedAt    RelationType = "EMPLOYED_AT"
	RelEvaluatedOn   RelationType = "EVALUATED_ON"
	RelAuthored      RelationType = "AUTHORED"
	RelMemberOf      RelationType = "MEMBER_OF"
	RelImproves      RelationType = "IMPROVES"
	RelDerivedFrom   RelationType = "DERIVED_FROM"
	RelBelongsTo     RelationType = "BELONGS_TO"
	RelCites         RelationType = "CITES"
	RelRelatedTo     RelationType = "RELATED_TO"
)

// AllRelationTypes lists every valid relation type.
var AllRelationTypes = []RelationType{
	RelDevelopedBy, RelUsesTechnique, RelBasedOn, RelEmployedAt,
	RelEvaluatedOn, RelAuthored, RelMemberOf, RelImproves,
	RelDerivedFrom, RelBelongsTo, RelCites, RelRelatedTo,
}

// Valid reports whether t is a member of the closed relation-type set.
func (t RelationType) Valid() bool {
	for _, r := range AllRelationTypes {
		if t == r {
			return true
		}
	}
	return false
}

// QueryType identifies the retrieval strategy that produced a response.
type QueryType string

const (
	QueryLocal  QueryType = "local"
	QueryGlobal QueryType = "global"
	QueryHybrid QueryType = "hybrid"
	QueryPath   QueryType = "path"
	QueryLazy   QueryType = "lazy"
)

// SearchMode tunes seed retrieval inside the query engines.
type SearchMode string

const (
	SearchKeyword  SearchMode = "keyword"
	SearchSemantic SearchMode = "semantic"
	SearchHybrid   SearchMode = "hybrid"
)

// UserRole is the closed set of API-key roles.
type UserRole string

const (
	RoleReader UserRole = "reader"
	RoleWriter UserRole = "writer"
	RoleAdmin  UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleReader || r == RoleWriter || r == RoleAdmin
}

// Permission is an "operation:resource" capability string, e.g.
// "write:entities" or "admin:backup".
type Permission string

const (
	PermReadEntities    Permission = "read:entities"
	PermWriteEntities   Permission = "write:entities"
	PermReadRelations   Permission = "read:relations"
	PermWriteRelations  Permission = "write:relations"
	PermReadCommunities Permission = "read:communities"
	PermRunDetection    Permission = "write:communities"
	PermSearch          Permission = "read:search"
	PermIngest          Permission = "write:ingest"
	PermAdminBackup     Permission = "admin:backup"
	PermAdminKeys       Permission = "admin:keys"
)

// TrendDirection classifies the slope of a monthly activity series.
type TrendDirection string

const (
	TrendRising    TrendDirection = "rising"
	TrendStable    TrendDirection = "stable"
	TrendDeclining TrendDirection = "declining"
	TrendVolatile  TrendDirection = "volatile"
)

// LifecyclePhase is the ordered technology-lifecycle state machine used by
// the trend predictor.
type LifecyclePhase string

const (
	PhaseInnovationTrigger     LifecyclePhase = "innovation_trigger"
	PhasePeakOfExpectations    LifecyclePhase = "peak_of_expectations"
	PhaseTroughOfDisillusion   LifecyclePhase = "trough_of_disillusionment"
	PhaseSlopeOfEnlightenment  LifecyclePhase = "slope_of_enlightenment"
	PhasePlateauOfProductivity LifecyclePhase = "plateau_of_productivity"
)

// LifecycleOrder lists the phases in transition order.
var LifecycleOrder = []LifecyclePhase{
	PhaseInnovationTrigger,
	PhasePeakOfExpectations,
	PhaseTroughOfDisillusion,
	PhaseSlopeOfEnlightenment,
	PhasePlateauOfProductivity,
}

// Next returns the following lifecycle phase, or the phase itself when it is
// terminal.
func (p LifecyclePhase) Next() LifecyclePhase {
	for i, ph := range LifecycleOrder {
		if ph == p && i+1 < len(LifecycleOrder) {
			return LifecycleOrder[i+1]
		}
	}
	return p
}
