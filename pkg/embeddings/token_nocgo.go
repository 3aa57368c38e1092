//go:build !cgo

package embeddings

import "context"

// Local sparse and cross-encoder models need onnxruntime, which needs CGO.
// TEI endpoints and the lexical reranker still work.

func newSpladeBackend(context.Context, onnxSource, SparseInitOptions) (sparseBackend, error) {
	return nil, ErrONNXNotAvailable
}

func newCrossEncoder(context.Context, onnxSource, RerankInitOptions) (scorer, error) {
	return nil, ErrONNXNotAvailable
}
