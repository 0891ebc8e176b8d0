package model

// OutcomeKind classifies what resolution decided for one draft.
type OutcomeKind string

const (
	OutcomeNewEntity  OutcomeKind = "new_entity"
	OutcomeMergedInto OutcomeKind = "merged_into"
	OutcomeAmbiguous  OutcomeKind = "ambiguous"
)

// ResolutionCandidate is one strategy match against an existing entity.
type ResolutionCandidate struct {
	EntityID   string  `json:"entity_id"`
	Strategy   string  `json:"strategy"`
	Confidence float64 `json:"confidence"`
}

// ResolutionOutcome is the resolver's decision for one draft. For MergedInto,
// Candidates carries the weaker runners-up recorded as near-duplicates.
type ResolutionOutcome struct {
	Kind            OutcomeKind           `json:"kind"`
	EntityID        string                `json:"entity_id,omitempty"`
	Strategy        string                `json:"strategy,omitempty"`
	MatchConfidence float64               `json:"match_confidence,omitempty"`
	Candidates      []ResolutionCandidate `json:"candidates,omitempty"`
}

// PromotionResult reports one promotion attempt. Blocked lists the
// unsatisfied guard names when the attempt did not go through.
type PromotionResult struct {
	Promoted bool             `json:"promoted"`
	Record   *PromotionRecord `json:"record,omitempty"`
	Blocked  []string         `json:"blocked,omitempty"`
}

// ItemOutcome is the per-draft line in an ingest report.
type ItemOutcome struct {
	Name     string      `json:"name"`
	Kind     OutcomeKind `json:"kind"`
	EntityID string      `json:"entity_id,omitempty"`
	Strategy string      `json:"strategy,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// IngestReport summarizes one document's ingestion.
type IngestReport struct {
	DocumentID    string        `json:"document_id"`
	Entities      []ItemOutcome `json:"entities"`
	Relationships []ItemOutcome `json:"relationships"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// ScanSummary counts one promotion scan pass.
type ScanSummary struct {
	Attempted int `json:"attempted"`
	Promoted  int `json:"promoted"`
	Blocked   int `json:"blocked"`
	Skipped   int `json:"skipped"`
}
