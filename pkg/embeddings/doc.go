// Package embeddings provides the embedding-capable model types served by
// embedpool.
//
// Four backends are supported:
//
//   - TextEmbedding: dense text embeddings via FastEmbed (local ONNX).
//   - ImageEmbedding: dense image embeddings via an ONNX vision encoder.
//   - SparseTextEmbedding: sparse (SPLADE-style) embeddings from a local
//     ONNX export, or a Text Embeddings Inference server.
//   - TextRerank: cross-encoder reranking from a local ONNX export, a Text
//     Embeddings Inference server, or a built-in lexical scorer.
//
// Each backend is constructed from an init-options value (NewTextEmbedding,
// NewImageEmbedding, NewSparseTextEmbedding, NewTextRerank). Model names are
// resolved against the registries in models.go; unknown names fail with
// ErrModelNotFound.
//
// ONNX backends require CGO and the onnxruntime shared library. See
// EnsureONNXRuntime for locating or downloading it.
package embeddings
