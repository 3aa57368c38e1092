//go:build !cgo

package embeddings

import "context"

// ImageEmbedding is unavailable without CGO.
type ImageEmbedding struct{}

// NewImageEmbedding validates the options and returns ErrONNXNotAvailable.
func NewImageEmbedding(_ context.Context, opts ImageInitOptions) (*ImageEmbedding, error) {
	if _, err := resolveImageSpec(opts); err != nil {
		return nil, err
	}
	return nil, ErrONNXNotAvailable
}

// Embed returns ErrONNXNotAvailable.
func (e *ImageEmbedding) Embed(_ context.Context, _ [][]byte, _ int) ([][]float32, error) {
	return nil, ErrONNXNotAvailable
}

// EmbedFiles returns ErrONNXNotAvailable.
func (e *ImageEmbedding) EmbedFiles(_ context.Context, _ []string, _ int) ([][]float32, error) {
	return nil, ErrONNXNotAvailable
}

// Model returns an empty name.
func (e *ImageEmbedding) Model() ImageEmbeddingModel {
	return ""
}

// Dimension returns 0.
func (e *ImageEmbedding) Dimension() int {
	return 0
}

// Close is a no-op.
func (e *ImageEmbedding) Close() error {
	return nil
}
