package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/manager"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

func newManagerMux(t *testing.T) (*http.ServeMux, *memory.Store) {
	t.Helper()
	store := newTestStore(t)
	m, err := manager.New(manager.DefaultConfig(), store, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	h := NewManagerHandler(m, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/memory/optimize", h.HandleOptimize)
	mux.HandleFunc("GET /api/v1/memory/health", h.HandleHealth)
	mux.HandleFunc("GET /api/v1/memory/backup", h.HandleBackup)
	mux.HandleFunc("POST /api/v1/memory/restore", h.HandleRestore)
	return mux, store
}

func TestManagerHandler_Optimize(t *testing.T) {
	mux, _ := newManagerMux(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/memory/optimize", nil)
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool                       `json:"success"`
		Data    manager.OptimizationResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
}

func TestManagerHandler_Health(t *testing.T) {
	mux, _ := newManagerMux(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/memory/health", nil)
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                  `json:"success"`
		Data    manager.HealthMetrics `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.GreaterOrEqual(t, resp.Data.HealthScore, 0.0)
	assert.LessOrEqual(t, resp.Data.HealthScore, 1.0)
}

func TestManagerHandler_BackupAndRestore(t *testing.T) {
	mux, store := newManagerMux(t)

	require.NoError(t, store.Store(t.Context(), &types.MemoryEntry{
		ID:             "critical-1",
		ConversationID: "conv-1",
		AgentID:        "agent-1",
		Context:        map[string]any{"domain": "sanctions", "regulatory": true},
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/memory/backup", nil)
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var backup manager.Backup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &backup))
	require.Len(t, backup.Entries, 1)
	assert.Equal(t, "critical-1", backup.Entries[0].ID)

	// Wipe and restore from the exported payload.
	_, err := store.RemoveWhere(t.Context(), func(*types.MemoryEntry) bool { return true })
	require.NoError(t, err)
	require.Equal(t, 0, store.Len())

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/api/v1/memory/restore", strings.NewReader(encodeJSON(t, backup)))
	mux.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Data["restored"])
	assert.Equal(t, 1, store.Len())
}

func TestManagerHandler_RestoreRejectsBadPayload(t *testing.T) {
	mux, _ := newManagerMux(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/memory/restore", strings.NewReader("not json"))
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func encodeJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
