package model

// EvidenceReference points back into the originating document. It is immutable once stored.
type EvidenceReference struct {
	ID         string `json:"id" validate:"required"`
	DocumentID string `json:"document_id" validate:"required"`
	SpanStart  int    `json:"span_start" validate:"gte=0"`
	SpanEnd    int    `json:"span_end" validate:"gtefield=SpanStart"`
	Page       string `json:"page,omitempty"`
	Excerpt    string `json:"excerpt"`
}

type EmbeddingRecord struct {
	OwnerID      string    `json:"owner_id" validate:"required"`
	OwnerKind    RefKind   `json:"owner_kind"`
	Vector       []float32 `json:"vector" validate:"required,min=1"`
	ModelVersion string    `json:"model_version" validate:"required"`
}
