package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/driver"
)

type fakeStore struct {
	driver.GraphStore
	mu      sync.Mutex
	queries []string
}

func (f *fakeStore) Query(_ context.Context, query string, _ map[string]interface{}) ([]driver.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return []driver.Record{{"id": "survivor"}}, nil
}

func newTestRegistry(synonyms map[string]string) (*Registry, *fakeStore) {
	store := &fakeStore{}
	return New(synonyms, store, zap.NewNop()), store
}

func TestLookupIsCaseAndPunctuationInsensitive(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.Register("e1", []string{"Crohn's Disease"}, time.Now())

	for _, name := range []string{"crohn's disease", "CROHN'S DISEASE", "crohns-disease"} {
		id, ok := r.Lookup(name)
		assert.True(t, ok, "lookup %q", name)
		assert.Equal(t, "e1", id)
	}
}

func TestLookupExpandsAbbreviations(t *testing.T) {
	r, _ := newTestRegistry(map[string]string{"IBD": "Inflammatory Bowel Disease"})
	r.Register("e1", []string{"Inflammatory Bowel Disease"}, time.Now())

	id, ok := r.Lookup("IBD")
	assert.True(t, ok)
	assert.Equal(t, "e1", id)
}

func TestRevokeAliasKeepsConcept(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.Register("e1", []string{"Aspirin", "ASA"}, time.Now())

	assert.NoError(t, r.RevokeAlias("e1", "ASA"))
	_, ok := r.Lookup("ASA")
	assert.False(t, ok)

	id, ok := r.Lookup("Aspirin")
	assert.True(t, ok)
	assert.Equal(t, "e1", id)
	assert.Equal(t, []string{"Aspirin"}, r.Aliases("e1"))

	assert.Error(t, r.RevokeAlias("e1", "never seen"))
}

func TestMergeKeepsEarlierConcept(t *testing.T) {
	r, store := newTestRegistry(nil)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Register("old", []string{"Crohn's Disease"}, older)
	r.Register("new", []string{"Regional Enteritis"}, older.Add(time.Hour))

	survivor, err := r.Merge(context.Background(), "new", "old")
	assert.NoError(t, err)
	assert.Equal(t, "old", survivor)

	// Alias union: both names now resolve to the survivor.
	for _, name := range []string{"Crohn's Disease", "Regional Enteritis"} {
		id, ok := r.Lookup(name)
		assert.True(t, ok)
		assert.Equal(t, "old", id)
	}

	// The absorbed id keeps resolving through the redirect.
	assert.Equal(t, "old", r.Canonical("new"))
	assert.False(t, r.Resolved("new"))
	assert.True(t, r.Resolved("old"))

	// Edges were repointed in the store.
	assert.Contains(t, store.queries, driver.RewriteEdgeEndpointsQuery)
}

func TestMergeIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.Register("e1", []string{"Aspirin"}, time.Now())

	survivor, err := r.Merge(context.Background(), "e1", "e1")
	assert.NoError(t, err)
	assert.Equal(t, "e1", survivor)
}

func TestMergeUnknownConceptFails(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.Register("e1", []string{"Aspirin"}, time.Now())

	_, err := r.Merge(context.Background(), "e1", "ghost")
	assert.Error(t, err)
}

func TestConcurrentLookupsDuringMergesNeverDangle(t *testing.T) {
	r, _ := newTestRegistry(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	const n = 20
	for i := 0; i < n; i++ {
		r.Register(fmt.Sprintf("e%d", i), []string{fmt.Sprintf("name %d", i)}, base.Add(time.Duration(i)*time.Second))
	}

	var wg sync.WaitGroup
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Merge(context.Background(), "e0", fmt.Sprintf("e%d", i))
			assert.NoError(t, err)
		}(i)
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if id, ok := r.Lookup(fmt.Sprintf("name %d", i)); ok {
					// Whatever id comes back must be live or redirect to one.
					assert.True(t, r.Resolved(r.Canonical(id)))
				}
			}
		}(i)
	}
	wg.Wait()

	// Everything collapsed into the oldest concept.
	for i := 0; i < n; i++ {
		id, ok := r.Lookup(fmt.Sprintf("name %d", i))
		assert.True(t, ok)
		assert.Equal(t, "e0", r.Canonical(id))
	}
}
