package embedding

import "context"

// Disabled is a provider used when embeddings are turned off. It returns
// zero vectors of the configured dimensionality and never fails.
type Disabled struct {
	dimensions int
}

// NewDisabled creates a disabled provider with the given dimensionality.
func NewDisabled(dimensions int) *Disabled {
	return &Disabled{dimensions: dimensions}
}

func (d *Disabled) Name() string    { return "disabled" }
func (d *Disabled) Dimensions() int { return d.dimensions }

func (d *Disabled) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return ZeroVector(d.dimensions), nil
}

func (d *Disabled) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = ZeroVector(d.dimensions)
	}
	return out, nil
}
