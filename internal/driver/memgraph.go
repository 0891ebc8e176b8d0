package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// MemgraphStore implements GraphStore over the Bolt protocol. Each call runs
// as a single auto-commit query, so per-call atomicity comes from the backend.
type MemgraphStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

func NewMemgraphStore(ctx context.Context, uri, username, password string, logger *zap.Logger) (*MemgraphStore, error) {
	d, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	if err := d.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	logger.Info("connected to graph store", zap.String("uri", uri))
	return &MemgraphStore{driver: d, logger: logger.Named("graphstore")}, nil
}

func (s *MemgraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *MemgraphStore) execute(ctx context.Context, query string, params map[string]interface{}) ([]Record, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	records := make([]Record, 0, len(result.Records))
	for _, rec := range result.Records {
		row := make(Record, len(rec.Keys))
		for _, key := range rec.Keys {
			val, _ := rec.Get(key)
			row[key] = val
		}
		records = append(records, row)
	}
	return records, nil
}

func (s *MemgraphStore) Query(ctx context.Context, query string, params map[string]interface{}) ([]Record, error) {
	return s.execute(ctx, query, params)
}

func (s *MemgraphStore) CreateNode(ctx context.Context, id string, labels []string, props map[string]interface{}) error {
	safe := make([]string, 0, len(labels))
	for _, l := range labels {
		safe = append(safe, SanitizeLabel(l))
	}
	// Labels cannot be parameterized in Cypher; they are sanitized above.
	query := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		ON CREATE SET n += $props, n.version = 0, n._created = true
		ON MATCH SET n._created = false
		WITH n, n._created AS created
		REMOVE n._created
		RETURN created
	`, strings.Join(safe, ":"))

	records, err := s.execute(ctx, query, map[string]interface{}{"id": id, "props": props})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("create node %s: no result", id)
	}
	if created, ok := records[0]["created"].(bool); ok && !created {
		return fmt.Errorf("node %s already exists: %w", id, ErrConflict)
	}
	return nil
}

func (s *MemgraphStore) CreateEdge(ctx context.Context, sourceID, targetID, edgeType string, props map[string]interface{}) error {
	query := `
		MATCH (source:Entity {id: $source_id})
		MATCH (target:Entity {id: $target_id})
		CREATE (source)-[e:RELATES_TO]->(target)
		SET e += $props, e.type = $type, e.version = 0
		RETURN e.id AS id
	`
	params := map[string]interface{}{
		"source_id": sourceID,
		"target_id": targetID,
		"type":      edgeType,
		"props":     props,
	}

	records, err := s.execute(ctx, query, params)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("edge %s -> %s: endpoint missing: %w", sourceID, targetID, ErrNotFound)
	}
	return nil
}

// UpdateProperties applies a compare-and-swap on the version property so
// concurrent writers (resolver, reasoner, scanner) never clobber each other.
func (s *MemgraphStore) UpdateProperties(ctx context.Context, id string, patch map[string]interface{}, expectedVersion int64) error {
	params := map[string]interface{}{
		"id":       id,
		"patch":    patch,
		"expected": expectedVersion,
	}

	casNode := `
		MATCH (n {id: $id})
		WHERE n.version = $expected
		SET n += $patch, n.version = $expected + 1
		RETURN n.version AS version
	`
	records, err := s.execute(ctx, casNode, params)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		return nil
	}

	casEdge := `
		MATCH ()-[e:RELATES_TO {id: $id}]->()
		WHERE e.version = $expected
		SET e += $patch, e.version = $expected + 1
		RETURN e.version AS version
	`
	records, err = s.execute(ctx, casEdge, params)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		return nil
	}

	// CAS missed. Distinguish a stale version from a missing subject.
	exists := `
		OPTIONAL MATCH (n {id: $id})
		OPTIONAL MATCH ()-[e:RELATES_TO {id: $id}]->()
		RETURN n.id IS NOT NULL OR e.id IS NOT NULL AS found
	`
	records, err = s.execute(ctx, exists, map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	if len(records) > 0 {
		if found, ok := records[0]["found"].(bool); ok && found {
			return fmt.Errorf("update %s at version %d: %w", id, expectedVersion, ErrConflict)
		}
	}
	return fmt.Errorf("update %s: %w", id, ErrNotFound)
}

func (s *MemgraphStore) BuildIndices(ctx context.Context) error {
	queries := []string{
		"CREATE INDEX ON :Entity(id);",
		"CREATE INDEX ON :Entity(name_key);",
		"CREATE INDEX ON :Entity(layer);",
		"CREATE INDEX ON :Entity(confidence);",
	}

	for _, q := range queries {
		if _, err := s.execute(ctx, q, nil); err != nil {
			// Index may already exist.
			s.logger.Warn("failed to create index", zap.String("query", q), zap.Error(err))
		}
	}
	return nil
}
