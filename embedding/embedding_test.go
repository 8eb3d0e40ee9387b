package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 1)

		resp := openAIEmbedResponse{Model: req.Model}
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}{Index: 0, Embedding: []float64{0.1, 0.2, 0.3}})
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 3,
		Timeout:    time.Second,
	})

	vec, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Timeout: time.Second})

	_, err := p.EmbedQuery(context.Background(), "hello")
	require.Error(t, err)
	require.Equal(t, types.ErrProviderUnavailable, types.GetErrorCode(err))
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	p := NewDisabled(4)
	vec, err := p.EmbedQuery(context.Background(), "anything")
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0, 0, 0}, vec)
	require.True(t, IsZero(vec))

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
}

func TestZeroVector(t *testing.T) {
	t.Parallel()

	require.Nil(t, ZeroVector(0))
	require.Len(t, ZeroVector(384), 384)
	require.False(t, IsZero([]float64{0, 1}))
	require.True(t, IsZero(nil))
}
