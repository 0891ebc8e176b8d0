package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/audit"
	"github.com/agenthands/strata/internal/config"
	"github.com/agenthands/strata/internal/core/layers"
	"github.com/agenthands/strata/internal/core/reasoning"
	"github.com/agenthands/strata/internal/core/scanner"
	"github.com/agenthands/strata/internal/driver"
)

// recordingStore returns no candidates but remembers the batch limits the
// scanner asked for.
type recordingStore struct {
	driver.GraphStore
	limits []int64
}

func (r *recordingStore) Query(_ context.Context, _ string, params map[string]interface{}) ([]driver.Record, error) {
	if limit, ok := params["limit"].(int64); ok {
		r.limits = append(r.limits, limit)
	}
	return nil, nil
}

func newScanServer(t *testing.T, store *recordingStore, batchSize int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Scanner.BatchSize = batchSize

	sink, err := audit.NewSink(filepath.Join(t.TempDir(), "audit.jsonl"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	engine := reasoning.NewEngine(zap.NewNop())
	reasoning.RegisterDefaults(engine, cfg.HalfLife())
	sc := scanner.New(store, layers.NewMachine(cfg.Layers), engine, sink, cfg.Scanner, zap.NewNop())

	return New(nil, nil, sc, sink, zap.NewNop()).SetupRouter()
}

func postScan(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestScanDefaultsBatchSizeFromConfig(t *testing.T) {
	store := &recordingStore{}
	r := newScanServer(t, store, 7)

	w := postScan(r, `{"layer":"perception"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	// One entity pass and one relationship pass, both at the configured size.
	require.Len(t, store.limits, 2)
	assert.Equal(t, int64(7), store.limits[0])
	assert.Equal(t, int64(7), store.limits[1])
}

func TestScanHonorsExplicitBatchSize(t *testing.T) {
	store := &recordingStore{}
	r := newScanServer(t, store, 7)

	w := postScan(r, `{"layer":"perception","batch_size":3}`)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.limits, 2)
	assert.Equal(t, int64(3), store.limits[0])
	assert.Equal(t, int64(3), store.limits[1])
}

func TestScanRejectsUnknownLayer(t *testing.T) {
	store := &recordingStore{}
	r := newScanServer(t, store, 7)

	w := postScan(r, `{"layer":"wisdom"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.limits)
}
