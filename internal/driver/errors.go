package driver

import "errors"

var (
	// ErrNotFound is returned when a node or edge referenced by id does not
	// exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on a concurrent-write conflict (version
	// mismatch or duplicate create). Callers retry with backoff.
	ErrConflict = errors.New("conflict")
)
