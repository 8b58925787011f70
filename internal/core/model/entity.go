package model

import "time"

// Common entity types produced by the extraction collaborator.
const (
	EntityPerson       = "person"
	EntityOrganization = "organization"
	EntityLocation     = "location"
	EntityAccount      = "account"
	EntityEvent        = "event"
)

type Entity struct {
	ID                string           `json:"id" validate:"required"`
	Type              string           `json:"type" validate:"required"`
	Name              string           `json:"name" validate:"required"`
	Aliases           []string         `json:"aliases,omitempty"`
	Attributes        map[string]Value `json:"attributes,omitempty"`
	SourceReliability float64          `json:"source_reliability" validate:"gte=0,lte=1"`
	EvidenceIDs       []string         `json:"evidence_ids,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}
