package model

import "fmt"

type RefKind string

const (
	RefEntity       RefKind = "entity"
	RefRelationship RefKind = "relationship"
	RefEvidence     RefKind = "evidence"
)

type Ref struct {
	Kind RefKind `json:"kind"`
	ID   string  `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

type Intent string

const (
	IntentEntityLookup Intent = "entity_lookup"
	IntentRelationship Intent = "relationship"
	IntentOpen         Intent = "open"
)

type QueryResultItem struct {
	Rank        int                 `json:"rank"`
	Ref         Ref                 `json:"ref"`
	Label       string              `json:"label"`
	Score       float64             `json:"score"`
	Evidence    []EvidenceReference `json:"evidence"`
	Explanation string              `json:"explanation"`
	Community   *int                `json:"community,omitempty"`
	Hops        int                 `json:"hops"`
}

type QueryResponse struct {
	ID        string            `json:"id"`
	Query     string            `json:"query"`
	Intent    Intent            `json:"intent"`
	Items     []QueryResultItem `json:"items"`
	Warnings  []Warning         `json:"warnings,omitempty"`
	Narrative string            `json:"narrative,omitempty"`
}

// ExtractionBatch is one unit of work handed over by the extraction collaborator.
type ExtractionBatch struct {
	Entities      []Entity            `json:"entities,omitempty"`
	Relationships []Relationship      `json:"relationships,omitempty"`
	Evidence      []EvidenceReference `json:"evidence,omitempty"`
	Embeddings    []EmbeddingRecord   `json:"embeddings,omitempty"`
}

func (b ExtractionBatch) Empty() bool {
	return len(b.Entities) == 0 && len(b.Relationships) == 0 && len(b.Evidence) == 0 && len(b.Embeddings) == 0
}
