package embeddings

import "errors"

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrModelNotFound indicates the requested model is not in the registry
	ErrModelNotFound = errors.New("model not found")

	// ErrONNXNotAvailable is returned by ONNX backends in binaries built without CGO.
	ErrONNXNotAvailable = errors.New("onnx backend not available (binary built without CGO support)")

	// ErrClosed is returned when using a backend after Close.
	ErrClosed = errors.New("embedding backend closed")
)
