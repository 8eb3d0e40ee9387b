package embedding

import (
	"context"
	"time"
)

// Provider defines the unified embedding provider interface.
type Provider interface {
	// EmbedQuery generates an embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float64, error)

	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)

	// Name returns the provider name.
	Name() string

	// Dimensions returns the embedding dimensionality.
	Dimensions() int
}

// ZeroVector returns an all-zero vector of the given dimensionality. It is
// the degraded-mode substitute when a provider is absent or unavailable.
func ZeroVector(dimensions int) []float64 {
	if dimensions <= 0 {
		return nil
	}
	return make([]float64, dimensions)
}

// IsZero reports whether the vector is empty or all zeros.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// HealthStatus represents a provider health check result.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Message string        `json:"message,omitempty"`
}
