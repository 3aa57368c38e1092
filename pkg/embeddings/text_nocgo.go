//go:build !cgo

package embeddings

import "context"

// TextEmbedding is unavailable without CGO.
type TextEmbedding struct{}

// NewTextEmbedding validates the model name and returns ErrONNXNotAvailable.
func NewTextEmbedding(_ context.Context, opts TextInitOptions) (*TextEmbedding, error) {
	if _, _, err := LookupTextModel(string(opts.Model)); err != nil {
		return nil, err
	}
	return nil, ErrONNXNotAvailable
}

// Embed returns ErrONNXNotAvailable.
func (t *TextEmbedding) Embed(_ context.Context, _ []string, _ int) ([][]float32, error) {
	return nil, ErrONNXNotAvailable
}

// PassageEmbed returns ErrONNXNotAvailable.
func (t *TextEmbedding) PassageEmbed(_ context.Context, _ []string, _ int) ([][]float32, error) {
	return nil, ErrONNXNotAvailable
}

// QueryEmbed returns ErrONNXNotAvailable.
func (t *TextEmbedding) QueryEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrONNXNotAvailable
}

// Model returns an empty name.
func (t *TextEmbedding) Model() EmbeddingModel {
	return ""
}

// Dimension returns 0.
func (t *TextEmbedding) Dimension() int {
	return 0
}

// Close is a no-op.
func (t *TextEmbedding) Close() error {
	return nil
}
