package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	cfg := memory.StoreConfig{
		CacheCapacity:       100,
		EmbeddingsEnabled:   false,
		EmbeddingDimensions: 4,
		EmbeddingTimeout:    time.Second,
		PersistenceEnabled:  false,
	}
	return memory.NewStore(cfg, nil, nil, zap.NewNop(), nil)
}

func newMemoryMux(t *testing.T) (*http.ServeMux, *memory.Store) {
	t.Helper()
	store := newTestStore(t)
	h := NewMemoryHandler(store, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/memory/entries", h.HandleStore)
	mux.HandleFunc("GET /api/v1/memory/entries/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/v1/memory/entries/{id}", h.HandleDelete)
	mux.HandleFunc("POST /api/v1/memory/search", h.HandleSearch)
	mux.HandleFunc("GET /api/v1/memory/stats", h.HandleStats)
	return mux, store
}

func jsonReader(t *testing.T, body any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, path, jsonReader(t, body))
	r.Header.Set("Content-Type", "application/json")
	mux.ServeHTTP(w, r)
	return w
}

func TestMemoryHandler_StoreAndGet(t *testing.T) {
	mux, _ := newMemoryMux(t)

	entry := types.MemoryEntry{
		ID:             "e-1",
		ConversationID: "conv-1",
		AgentID:        "agent-1",
		Context:        map[string]any{"domain": "AML", "risk_level": "high"},
	}

	w := postJSON(t, mux, "/api/v1/memory/entries", entry)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/memory/entries/e-1", nil)
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    types.MemoryEntry `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "e-1", resp.Data.ID)
	// The store derives importance and topics on admission.
	assert.Equal(t, types.ImportanceHigh, resp.Data.Importance)
	assert.Contains(t, resp.Data.Topics, "aml")
}

func TestMemoryHandler_StoreRejectsInvalidEntry(t *testing.T) {
	mux, _ := newMemoryMux(t)

	w := postJSON(t, mux, "/api/v1/memory/entries", types.MemoryEntry{ID: "e-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMemoryHandler_GetNotFound(t *testing.T) {
	mux, _ := newMemoryMux(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/memory/entries/missing", nil)
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMemoryHandler_Search(t *testing.T) {
	mux, store := newMemoryMux(t)

	for _, id := range []string{"a", "b"} {
		require.NoError(t, store.Store(t.Context(), &types.MemoryEntry{
			ID:             id,
			ConversationID: "conv-" + id,
			AgentID:        "agent-1",
			Context:        map[string]any{"domain": "AML", "risk_level": "high"},
		}))
	}

	w := postJSON(t, mux, "/api/v1/memory/search", types.RetrievalQuery{
		QueryText:  "recent AML alerts",
		MaxResults: 10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool                `json:"success"`
		Data    []types.ScoredEntry `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Data, 2)
}

func TestMemoryHandler_Delete(t *testing.T) {
	mux, store := newMemoryMux(t)

	require.NoError(t, store.Store(t.Context(), &types.MemoryEntry{
		ID:             "e-1",
		ConversationID: "conv-1",
		AgentID:        "agent-1",
		Context:        map[string]any{"domain": "AML"},
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodDelete, "/api/v1/memory/entries/e-1", nil)
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 0, store.Len())
}

func TestMemoryHandler_Stats(t *testing.T) {
	mux, _ := newMemoryMux(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/memory/stats", nil)
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    memory.StoreStats `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 100, resp.Data.Capacity)
}
