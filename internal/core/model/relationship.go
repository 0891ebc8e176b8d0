package model

import (
	"time"

	"github.com/agenthands/strata/internal/core/confidence"
)

// Relationship is one typed edge. Its layer never exceeds the lower of its
// endpoints' layers.
type Relationship struct {
	ID         string           `json:"id"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       string           `json:"type"`
	Layer      Layer            `json:"layer"`
	Confidence confidence.Value `json:"confidence"`
	Provenance string           `json:"provenance,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	Version    int64            `json:"version"`
}
