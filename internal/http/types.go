package http

import (
	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status  string           `json:"status"`
	Version string           `json:"version,omitempty"`
	Kind    string           `json:"kind"`
	Model   string           `json:"model"`
	Pool    embedpool.Status `json:"pool"`
}

// EmbedRequest is the request body for POST /api/v1/embed.
type EmbedRequest struct {
	Inputs []string `json:"inputs"`

	// Mode is "passage" (default), "query" or "raw". Query and passage add
	// the model's prefixes; raw embeds the text as given.
	Mode      string `json:"mode,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// EmbedResponse is the response body for dense embedding endpoints.
type EmbedResponse struct {
	Model      string      `json:"model"`
	Dimension  int         `json:"dimension"`
	Embeddings [][]float32 `json:"embeddings"`
}

// SparseRequest is the request body for POST /api/v1/embed/sparse.
type SparseRequest struct {
	Inputs []string `json:"inputs"`
}

// SparseResponse is the response body for POST /api/v1/embed/sparse.
type SparseResponse struct {
	Model      string                       `json:"model"`
	Embeddings []embeddings.SparseEmbedding `json:"embeddings"`
}

// ImageRequest is the request body for POST /api/v1/embed/image. Images are
// base64 encoded PNG, JPEG, GIF or WebP files.
type ImageRequest struct {
	Images    [][]byte `json:"images"`
	BatchSize int      `json:"batch_size,omitempty"`
}

// RerankRequest is the request body for POST /api/v1/rerank.
type RerankRequest struct {
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopK            int      `json:"top_k,omitempty"`
	ReturnDocuments bool     `json:"return_documents,omitempty"`
}

// RerankResponse is the response body for POST /api/v1/rerank.
type RerankResponse struct {
	Model   string                    `json:"model"`
	Results []embeddings.RerankResult `json:"results"`
}
