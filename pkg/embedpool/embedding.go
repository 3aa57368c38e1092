package embedpool

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
)

// Embedding holds exactly one model instance. Use the accessor matching
// Kind to reach it.
type Embedding struct {
	kind   Kind
	text   *embeddings.TextEmbedding
	image  *embeddings.ImageEmbedding
	sparse *embeddings.SparseTextEmbedding
	rerank *embeddings.TextRerank
}

// NewEmbedding constructs the backend selected by model. Library errors are
// returned unchanged.
func NewEmbedding(ctx context.Context, model ModelKind) (*Embedding, error) {
	if model == nil {
		return nil, errors.New("model kind is nil")
	}
	return model.Clone().newEmbedding(ctx)
}

// Kind reports which backend e holds.
func (e *Embedding) Kind() Kind {
	return e.kind
}

// Text returns the text backend, or false if e holds another kind.
func (e *Embedding) Text() (*embeddings.TextEmbedding, bool) {
	return e.text, e.kind == KindText
}

// Image returns the image backend, or false if e holds another kind.
func (e *Embedding) Image() (*embeddings.ImageEmbedding, bool) {
	return e.image, e.kind == KindImage
}

// Sparse returns the sparse backend, or false if e holds another kind.
func (e *Embedding) Sparse() (*embeddings.SparseTextEmbedding, bool) {
	return e.sparse, e.kind == KindSparse
}

// Rerank returns the reranker, or false if e holds another kind.
func (e *Embedding) Rerank() (*embeddings.TextRerank, bool) {
	return e.rerank, e.kind == KindRerank
}

// Close releases the backend.
func (e *Embedding) Close() error {
	switch e.kind {
	case KindText:
		return e.text.Close()
	case KindImage:
		return e.image.Close()
	case KindSparse:
		return e.sparse.Close()
	case KindRerank:
		return e.rerank.Close()
	}
	return nil
}
