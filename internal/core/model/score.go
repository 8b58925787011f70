package model

// StructuralScore is derived data. Community labels are only stable until the next recompute.
type StructuralScore struct {
	EntityID   string  `json:"entity_id"`
	Importance float64 `json:"importance"`
	Community  int     `json:"community"`
}
