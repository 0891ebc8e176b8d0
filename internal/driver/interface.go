package driver

import "context"

// Record is one row of query output, keyed by the RETURN aliases.
type Record map[string]interface{}

// GraphStore is the storage abstraction the engine writes through. Every call
// is atomic against the backend; not-found and conflict are reported as
// distinct errors (ErrNotFound, ErrConflict).
type GraphStore interface {
	// CreateNode creates a node with the given id, labels and properties.
	// Returns ErrConflict if a node with that id already exists.
	CreateNode(ctx context.Context, id string, labels []string, props map[string]interface{}) error

	// CreateEdge creates a typed edge between two existing nodes. Returns
	// ErrNotFound if either endpoint is missing.
	CreateEdge(ctx context.Context, sourceID, targetID, edgeType string, props map[string]interface{}) error

	// UpdateProperties patches a node's properties if its version property
	// still equals expectedVersion, then increments the version. Returns
	// ErrConflict on version mismatch, ErrNotFound if the node is missing.
	UpdateProperties(ctx context.Context, id string, patch map[string]interface{}, expectedVersion int64) error

	// Query runs a read query and returns the matching records.
	Query(ctx context.Context, query string, params map[string]interface{}) ([]Record, error)

	BuildIndices(ctx context.Context) error
	Close(ctx context.Context) error
}
