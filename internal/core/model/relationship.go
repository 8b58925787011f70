package model

import "time"

// Relationship confidence is extraction confidence times source reliability. SourceReliability
// is inherited from the originating document, the same way Entity's is.
type Relationship struct {
	ID                string    `json:"id" validate:"required"`
	SourceID          string    `json:"source_id" validate:"required"`
	TargetID          string    `json:"target_id" validate:"required"`
	Type              string    `json:"type" validate:"required"`
	Directed          bool      `json:"directed"`
	Confidence        float64   `json:"confidence" validate:"gte=0,lte=1"`
	SourceReliability float64   `json:"source_reliability" validate:"gte=0,lte=1"`
	EvidenceIDs       []string  `json:"evidence_ids,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Inert reports whether the relationship carries no weight. Inert edges are kept for audit.
func (r Relationship) Inert() bool {
	return r.Confidence <= 0
}

// Other returns the endpoint opposite to id.
func (r Relationship) Other(id string) string {
	if r.SourceID == id {
		return r.TargetID
	}
	return r.SourceID
}

// DeriveConfidence combines extraction confidence and source reliability into an edge confidence.
func DeriveConfidence(extraction, reliability float64) float64 {
	return clamp01(extraction) * clamp01(reliability)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
