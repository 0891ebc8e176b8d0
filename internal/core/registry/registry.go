// Package registry maintains the authoritative entity for each resolved
// cluster of aliases. It is one of the two components holding shared mutable
// state (the other is the graph store); every mutation goes through its
// locked operations.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/core/resolve"
	"github.com/agenthands/strata/internal/driver"
)

// Concept groups the entities with an identical real-world referent under
// one canonical id. Concepts are never deleted; aliases are revoked by
// marking them inactive.
type Concept struct {
	CanonicalID string
	CreatedAt   time.Time
	aliases     map[string]bool // alias key -> active
	display     map[string]string
}

// Aliases returns the active alias display forms, sorted.
func (c *Concept) Aliases() []string {
	out := make([]string, 0, len(c.aliases))
	for key, active := range c.aliases {
		if active {
			out = append(out, c.display[key])
		}
	}
	sort.Strings(out)
	return out
}

// Registry resolves any alias to its canonical entity id. Lookup is
// case-insensitive and abbreviation-aware via the injected synonym table.
type Registry struct {
	mu       sync.RWMutex
	concepts map[string]*Concept
	byAlias  map[string]string // alias key -> canonical id
	// absorbed canonical ids redirect to their survivor, so a lookup racing
	// a merge never returns a dangling id.
	redirects map[string]string
	synonyms  map[string]string
	store     driver.GraphStore
	logger    *zap.Logger
}

func New(synonyms map[string]string, store driver.GraphStore, logger *zap.Logger) *Registry {
	if synonyms == nil {
		synonyms = map[string]string{}
	}
	return &Registry{
		concepts:  make(map[string]*Concept),
		byAlias:   make(map[string]string),
		redirects: make(map[string]string),
		synonyms:  synonyms,
		store:     store,
		logger:    logger.Named("registry"),
	}
}

func (r *Registry) aliasKey(name string) string {
	expanded := name
	for abbr, full := range r.synonyms {
		if strings.EqualFold(abbr, name) {
			expanded = full
			break
		}
	}
	return resolve.NameKey(expanded)
}

// Register creates the concept for a newly created entity.
func (r *Registry) Register(entityID string, initialAliases []string, createdAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.concepts[entityID]
	if !ok {
		c = &Concept{
			CanonicalID: entityID,
			CreatedAt:   createdAt,
			aliases:     make(map[string]bool),
			display:     make(map[string]string),
		}
		r.concepts[entityID] = c
	}
	for _, alias := range initialAliases {
		r.addAliasLocked(c, alias)
	}
}

// AddAlias records a newly discovered alias for an existing concept.
func (r *Registry) AddAlias(canonicalID, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.concepts[r.followLocked(canonicalID)]
	if !ok {
		return fmt.Errorf("concept %s not registered", canonicalID)
	}
	r.addAliasLocked(c, alias)
	return nil
}

func (r *Registry) addAliasLocked(c *Concept, alias string) {
	key := r.aliasKey(alias)
	if key == "" {
		return
	}
	c.aliases[key] = true
	if _, ok := c.display[key]; !ok {
		c.display[key] = alias
	}
	// Last writer wins on alias ownership; acceptable under concurrent
	// merges, dangling ids are not.
	r.byAlias[key] = c.CanonicalID
}

// RevokeAlias marks an alias inactive without forgetting it.
func (r *Registry) RevokeAlias(canonicalID, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.concepts[r.followLocked(canonicalID)]
	if !ok {
		return fmt.Errorf("concept %s not registered", canonicalID)
	}
	key := r.aliasKey(alias)
	if _, ok := c.aliases[key]; !ok {
		return fmt.Errorf("alias %q not known for %s", alias, canonicalID)
	}
	c.aliases[key] = false
	delete(r.byAlias, key)
	return nil
}

// Lookup returns the canonical id for a name or alias, following merge
// redirects.
func (r *Registry) Lookup(nameOrAlias string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAlias[r.aliasKey(nameOrAlias)]
	if !ok {
		return "", false
	}
	return r.followLocked(id), true
}

// Aliases returns the active aliases of a concept.
func (r *Registry) Aliases(canonicalID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.concepts[r.followLocked(canonicalID)]
	if !ok {
		return nil
	}
	return c.Aliases()
}

func (r *Registry) followLocked(id string) string {
	for {
		next, ok := r.redirects[id]
		if !ok {
			return id
		}
		id = next
	}
}

// Merge folds two concepts into one. The earlier-created concept survives,
// alias sets are unioned, and every relationship endpoint pointing at the
// absorbed entity is rewritten in the graph store. The in-memory maps flip
// atomically under the write lock; the absorbed id redirects to the survivor
// from that moment on, so concurrent lookups never observe a dangling id.
func (r *Registry) Merge(ctx context.Context, a, b string) (string, error) {
	r.mu.Lock()
	ca, okA := r.concepts[r.followLocked(a)]
	cb, okB := r.concepts[r.followLocked(b)]
	if !okA || !okB {
		r.mu.Unlock()
		return "", fmt.Errorf("merge %s + %s: concept not registered", a, b)
	}
	if ca.CanonicalID == cb.CanonicalID {
		r.mu.Unlock()
		return ca.CanonicalID, nil
	}

	survivor, absorbed := ca, cb
	if cb.CreatedAt.Before(ca.CreatedAt) {
		survivor, absorbed = cb, ca
	}

	for key, active := range absorbed.aliases {
		if prev, ok := survivor.aliases[key]; !ok || !prev {
			survivor.aliases[key] = active
		}
		if _, ok := survivor.display[key]; !ok {
			survivor.display[key] = absorbed.display[key]
		}
		if active {
			r.byAlias[key] = survivor.CanonicalID
		}
	}
	r.redirects[absorbed.CanonicalID] = survivor.CanonicalID
	delete(r.concepts, absorbed.CanonicalID)
	r.mu.Unlock()

	// Repoint graph edges outside the lock; lookups already resolve the
	// absorbed id to the survivor via the redirect.
	if r.store != nil {
		_, err := r.store.Query(ctx, driver.RewriteEdgeEndpointsQuery, map[string]interface{}{
			"absorbed_id": absorbed.CanonicalID,
			"survivor_id": survivor.CanonicalID,
		})
		if err != nil {
			return "", fmt.Errorf("failed to rewrite endpoints for merge %s -> %s: %w",
				absorbed.CanonicalID, survivor.CanonicalID, err)
		}
	}

	r.logger.Info("concepts merged",
		zap.String("survivor", survivor.CanonicalID),
		zap.String("absorbed", absorbed.CanonicalID))
	return survivor.CanonicalID, nil
}

// Canonical follows merge redirects from any historical id to the live one.
// Unknown ids pass through unchanged.
func (r *Registry) Canonical(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.followLocked(id)
}

// Resolved reports whether the id is a live canonical id (not absorbed).
func (r *Registry) Resolved(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.concepts[id]
	return ok
}
