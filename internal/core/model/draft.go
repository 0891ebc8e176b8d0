package model

// EntityDraft is an unresolved extraction candidate. Nothing is persisted
// until the resolver has decided what it refers to.
type EntityDraft struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Description    string  `json:"description,omitempty"`
	Confidence     float64 `json:"confidence"`
	SourceDocument string  `json:"source_document,omitempty"`
}

// RelationshipDraft references its endpoints by extracted name; the resolver
// maps names to canonical ids before the edge is created.
type RelationshipDraft struct {
	SourceName  string  `json:"source_name"`
	TargetName  string  `json:"target_name"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// ExtractedDrafts is one document's worth of extraction output.
type ExtractedDrafts struct {
	Entities      []EntityDraft       `json:"entities"`
	Relationships []RelationshipDraft `json:"relationships"`
}
