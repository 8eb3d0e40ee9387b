package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newListener(t *testing.T, name string, handler http.Handler) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = ":0"
	m := NewManager(name, handler, cfg, zap.NewNop())
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestManager_ServesRequests(t *testing.T) {
	m := newListener(t, "api", jsonHandler(`{"success":true}`))

	assert.False(t, m.IsRunning())
	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	resp, err := http.Get("http://" + m.BoundAddr() + "/api/v1/memory/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

// The serve command runs the API and metrics listeners in the same
// process; both must bind and answer independently.
func TestManager_APIAndMetricsSideBySide(t *testing.T) {
	api := newListener(t, "api", jsonHandler(`{"success":true}`))
	metrics := newListener(t, "metrics", jsonHandler(`{}`))

	require.NoError(t, api.Start())
	require.NoError(t, metrics.Start())
	assert.NotEqual(t, api.BoundAddr(), metrics.BoundAddr())

	for _, addr := range []string{api.BoundAddr(), metrics.BoundAddr()} {
		resp, err := http.Get("http://" + addr + "/")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestManager_DoubleStart(t *testing.T) {
	m := newListener(t, "api", http.NewServeMux())
	require.NoError(t, m.Start())

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := newListener(t, "api", http.NewServeMux())
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := newListener(t, "api", http.NewServeMux())
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestManager_BoundAddrBeforeStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = ":9090"
	m := NewManager("metrics", http.NewServeMux(), cfg, zap.NewNop())

	// Before the listener binds, only the configured address is known.
	assert.Equal(t, ":9090", m.Addr())
	assert.Equal(t, ":9090", m.BoundAddr())
}

func TestManager_ErrorsEmptyWhileHealthy(t *testing.T) {
	m := newListener(t, "api", http.NewServeMux())
	require.NoError(t, m.Start())

	select {
	case err := <-m.Errors():
		t.Fatalf("unexpected serve error: %v", err)
	default:
	}
}
