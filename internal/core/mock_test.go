package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/agenthands/strata/internal/driver"
)

// mockStore is an in-memory GraphStore that understands the query constants
// the engine issues, including the version compare-and-swap. failUpdates
// injects that many ErrConflict responses before writes go through.
type mockStore struct {
	mu          sync.Mutex
	nodes       map[string]map[string]interface{}
	edges       map[string]map[string]interface{}
	failUpdates int
}

func newMockStore() *mockStore {
	return &mockStore{
		nodes: make(map[string]map[string]interface{}),
		edges: make(map[string]map[string]interface{}),
	}
}

func (m *mockStore) CreateNode(_ context.Context, id string, _ []string, props map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[id]; ok {
		return fmt.Errorf("node %s already exists: %w", id, driver.ErrConflict)
	}
	stored := make(map[string]interface{}, len(props)+1)
	for k, v := range props {
		stored[k] = v
	}
	stored["version"] = int64(0)
	m.nodes[id] = stored
	return nil
}

func (m *mockStore) CreateEdge(_ context.Context, sourceID, targetID, edgeType string, props map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[sourceID]; !ok {
		return fmt.Errorf("edge endpoint %s: %w", sourceID, driver.ErrNotFound)
	}
	if _, ok := m.nodes[targetID]; !ok {
		return fmt.Errorf("edge endpoint %s: %w", targetID, driver.ErrNotFound)
	}

	stored := make(map[string]interface{}, len(props)+4)
	for k, v := range props {
		stored[k] = v
	}
	stored["source_id"] = sourceID
	stored["target_id"] = targetID
	stored["type"] = edgeType
	stored["version"] = int64(0)
	m.edges[stored["id"].(string)] = stored
	return nil
}

func (m *mockStore) UpdateProperties(_ context.Context, id string, patch map[string]interface{}, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpdates > 0 {
		m.failUpdates--
		return fmt.Errorf("injected: %w", driver.ErrConflict)
	}

	subject, ok := m.nodes[id]
	if !ok {
		subject, ok = m.edges[id]
	}
	if !ok {
		return fmt.Errorf("update %s: %w", id, driver.ErrNotFound)
	}
	if subject["version"].(int64) != expectedVersion {
		return fmt.Errorf("update %s at version %d: %w", id, expectedVersion, driver.ErrConflict)
	}
	for k, v := range patch {
		subject[k] = v
	}
	subject["version"] = expectedVersion + 1
	return nil
}

func (m *mockStore) Query(_ context.Context, query string, params map[string]interface{}) ([]driver.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch query {
	case driver.GetEntityByIDQuery:
		if props, ok := m.nodes[params["id"].(string)]; ok {
			return []driver.Record{copyRecord(props)}, nil
		}
		return nil, nil

	case driver.GetEntitiesByNameKeyQuery:
		var out []driver.Record
		for _, props := range m.nodes {
			if props["name_key"] == params["name_key"] {
				out = append(out, driver.Record{"id": props["id"]})
			}
		}
		return out, nil

	case driver.GetCandidatesByTypeQuery:
		var out []driver.Record
		for id, props := range m.nodes {
			if props["type"] != params["type"] {
				continue
			}
			out = append(out, driver.Record{
				"id":             props["id"],
				"canonical_name": props["canonical_name"],
				"aliases":        props["aliases"],
				"name_embedding": props["name_embedding"],
				"neighbor_ids":   m.neighborsLocked(id),
			})
		}
		return out, nil

	case driver.GetPromotionCandidatesQuery:
		var out []driver.Record
		for _, props := range m.nodes {
			if props["layer"] == params["layer"] &&
				props["confidence"].(float64) >= params["min_confidence"].(float64) {
				out = append(out, copyRecord(props))
			}
		}
		return out, nil

	case driver.GetRelationshipCandidatesQuery:
		var out []driver.Record
		for _, props := range m.edges {
			if props["layer"] != params["layer"] ||
				props["confidence"].(float64) < params["min_confidence"].(float64) {
				continue
			}
			rec := copyRecord(props)
			rec["source_layer"] = m.nodes[props["source_id"].(string)]["layer"]
			rec["target_layer"] = m.nodes[props["target_id"].(string)]["layer"]
			out = append(out, rec)
		}
		return out, nil

	case driver.CountEntitiesByLayerQuery:
		var n int64
		for _, props := range m.nodes {
			if props["layer"] == params["layer"] {
				n++
			}
		}
		return []driver.Record{{"count": n}}, nil

	case driver.GetEntitySummariesQuery:
		var out []driver.Record
		for _, props := range m.nodes {
			out = append(out, driver.Record{
				"id":             props["id"],
				"canonical_name": props["canonical_name"],
				"aliases":        props["aliases"],
				"created_at":     props["created_at"],
			})
		}
		return out, nil

	case driver.RewriteEdgeEndpointsQuery:
		absorbed := params["absorbed_id"].(string)
		survivor := params["survivor_id"].(string)
		for _, props := range m.edges {
			if props["source_id"] == absorbed {
				props["source_id"] = survivor
			}
			if props["target_id"] == absorbed {
				props["target_id"] = survivor
			}
		}
		return []driver.Record{{"id": survivor}}, nil

	case driver.GetNeighborIDsQuery:
		var out []driver.Record
		for _, id := range m.neighborsLocked(params["id"].(string)) {
			out = append(out, driver.Record{"id": id})
		}
		return out, nil
	}
	return nil, fmt.Errorf("mock store: unrecognized query")
}

func (m *mockStore) neighborsLocked(id string) []string {
	seen := map[string]bool{}
	var out []string
	for _, props := range m.edges {
		other := ""
		if props["source_id"] == id {
			other = props["target_id"].(string)
		} else if props["target_id"] == id {
			other = props["source_id"].(string)
		}
		if other != "" && !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out
}

func (m *mockStore) BuildIndices(context.Context) error { return nil }
func (m *mockStore) Close(context.Context) error        { return nil }

func (m *mockStore) nodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

func (m *mockStore) edgeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edges)
}

func (m *mockStore) nodeSnapshot() map[string]driver.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]driver.Record, len(m.nodes))
	for id, props := range m.nodes {
		out[id] = copyRecord(props)
	}
	return out
}

func (m *mockStore) injectConflicts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpdates = n
}

func copyRecord(props map[string]interface{}) driver.Record {
	rec := make(driver.Record, len(props))
	for k, v := range props {
		rec[k] = v
	}
	return rec
}
