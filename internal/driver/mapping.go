package driver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agenthands/strata/internal/core/confidence"
	"github.com/agenthands/strata/internal/core/model"
)

// Structured sub-documents (evidence, source refs) are stored JSON-encoded:
// the backend only takes primitive property values.

// EntityProps flattens an entity into node properties.
func EntityProps(e *model.Entity, nameKey string, embedding []float32) (map[string]interface{}, error) {
	evidence, err := json.Marshal(e.Confidence.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evidence: %w", err)
	}
	refs, err := json.Marshal(e.SourceRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source refs: %w", err)
	}
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to encode properties: %w", err)
	}

	out := map[string]interface{}{
		"id":               e.ID,
		"canonical_name":   e.CanonicalName,
		"name_key":         nameKey,
		"type":             e.Type,
		"layer":            e.Layer.String(),
		"confidence":       e.Confidence.Score,
		"evidence":         string(evidence),
		"aliases":          e.Aliases,
		"source_refs":      string(refs),
		"properties":       string(props),
		"validation_count": int64(e.ValidationCount),
		"ontology_match":   e.OntologyMatch,
		"created_at":       e.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":       e.UpdatedAt.Format(time.RFC3339Nano),
	}
	if len(embedding) > 0 {
		out["name_embedding"] = embedding
	}
	return out, nil
}

// RelationshipProps flattens an edge into properties.
func RelationshipProps(rel *model.Relationship) (map[string]interface{}, error) {
	evidence, err := json.Marshal(rel.Confidence.Evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evidence: %w", err)
	}
	return map[string]interface{}{
		"id":         rel.ID,
		"layer":      rel.Layer.String(),
		"confidence": rel.Confidence.Score,
		"evidence":   string(evidence),
		"provenance": rel.Provenance,
		"created_at": rel.CreatedAt.Format(time.RFC3339Nano),
	}, nil
}

// EntityFromRecord rebuilds an entity from a query row.
func EntityFromRecord(rec Record) (*model.Entity, error) {
	e := &model.Entity{
		ID:            asString(rec["id"]),
		CanonicalName: asString(rec["canonical_name"]),
		Type:          asString(rec["type"]),
	}
	if e.ID == "" {
		return nil, fmt.Errorf("record has no entity id")
	}

	layer, ok := model.ParseLayer(asString(rec["layer"]))
	if !ok {
		return nil, fmt.Errorf("entity %s has unknown layer %q", e.ID, rec["layer"])
	}
	e.Layer = layer

	e.Confidence = confidence.Value{Score: asFloat(rec["confidence"])}
	if raw := asString(rec["evidence"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Confidence.Evidence); err != nil {
			return nil, fmt.Errorf("entity %s has corrupt evidence: %w", e.ID, err)
		}
	}
	if raw := asString(rec["source_refs"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.SourceRefs); err != nil {
			return nil, fmt.Errorf("entity %s has corrupt source refs: %w", e.ID, err)
		}
	}
	if raw := asString(rec["properties"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Properties); err != nil {
			return nil, fmt.Errorf("entity %s has corrupt properties: %w", e.ID, err)
		}
	}

	e.Aliases = asStrings(rec["aliases"])
	e.ValidationCount = int(asInt(rec["validation_count"]))
	e.OntologyMatch = asBool(rec["ontology_match"])
	e.Version = asInt(rec["version"])
	e.CreatedAt = asTime(rec["created_at"])
	e.UpdatedAt = asTime(rec["updated_at"])
	return e, nil
}

// RelationshipFromRecord rebuilds an edge from a query row.
func RelationshipFromRecord(rec Record) (*model.Relationship, error) {
	rel := &model.Relationship{
		ID:         asString(rec["id"]),
		SourceID:   asString(rec["source_id"]),
		TargetID:   asString(rec["target_id"]),
		Type:       asString(rec["type"]),
		Provenance: asString(rec["provenance"]),
	}
	if rel.ID == "" {
		return nil, fmt.Errorf("record has no relationship id")
	}

	layer, ok := model.ParseLayer(asString(rec["layer"]))
	if !ok {
		return nil, fmt.Errorf("relationship %s has unknown layer %q", rel.ID, rec["layer"])
	}
	rel.Layer = layer

	rel.Confidence = confidence.Value{Score: asFloat(rec["confidence"])}
	if raw := asString(rec["evidence"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rel.Confidence.Evidence); err != nil {
			return nil, fmt.Errorf("relationship %s has corrupt evidence: %w", rel.ID, err)
		}
	}
	rel.Version = asInt(rec["version"])
	rel.CreatedAt = asTime(rec["created_at"])
	return rel, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func asInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func asStrings(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
