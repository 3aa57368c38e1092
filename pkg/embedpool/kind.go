package embedpool

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
)

// Kind identifies an embedding capability.
type Kind int

const (
	KindText Kind = iota + 1
	KindImage
	KindSparse
	KindRerank
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindSparse:
		return "sparse"
	case KindRerank:
		return "rerank"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return KindText, nil
	case "image":
		return KindImage, nil
	case "sparse":
		return KindSparse, nil
	case "rerank", "reranker":
		return KindRerank, nil
	default:
		return 0, fmt.Errorf("unknown model kind %q", s)
	}
}

// ModelKind selects which backend a pool builds and with which options.
// The variants are TextKind, ImageKind, SparseKind and RerankKind.
type ModelKind interface {
	Kind() Kind

	// Model returns the configured model name.
	Model() string

	// Clone returns a deep copy that shares no mutable state.
	Clone() ModelKind

	// Validate resolves the model against the registry.
	Validate() error

	newEmbedding(ctx context.Context) (*Embedding, error)
}

// TextKind selects a dense text embedding model.
type TextKind struct {
	Options embeddings.TextInitOptions
}

// ImageKind selects an image embedding model.
type ImageKind struct {
	Options embeddings.ImageInitOptions
}

// SparseKind selects a sparse text embedding model.
type SparseKind struct {
	Options embeddings.SparseInitOptions
}

// RerankKind selects a reranking model.
type RerankKind struct {
	Options embeddings.RerankInitOptions
}

// Text returns a text selector with default options.
func Text(model embeddings.EmbeddingModel) TextKind {
	return TextKind{Options: embeddings.NewTextInitOptions(model)}
}

// Image returns an image selector with default options.
func Image(model embeddings.ImageEmbeddingModel) ImageKind {
	return ImageKind{Options: embeddings.NewImageInitOptions(model)}
}

// Sparse returns a sparse selector with default options.
func Sparse(model embeddings.SparseModel) SparseKind {
	return SparseKind{Options: embeddings.NewSparseInitOptions(model)}
}

// Rerank returns a reranker selector with default options.
func Rerank(model embeddings.RerankerModel) RerankKind {
	return RerankKind{Options: embeddings.NewRerankInitOptions(model)}
}

// DefaultModel is the selector used when none is configured: the default
// text model.
func DefaultModel() ModelKind {
	return Text(embeddings.DefaultEmbeddingModel)
}

func (TextKind) Kind() Kind   { return KindText }
func (ImageKind) Kind() Kind  { return KindImage }
func (SparseKind) Kind() Kind { return KindSparse }
func (RerankKind) Kind() Kind { return KindRerank }

func (k TextKind) Model() string { return string(k.Options.Model) }

// Model returns "user-defined" when the image model is supplied as bytes.
func (k ImageKind) Model() string {
	if k.Options.UserDefined != nil {
		return "user-defined"
	}
	return string(k.Options.Model)
}

func (k SparseKind) Model() string { return string(k.Options.Model) }
func (k RerankKind) Model() string { return string(k.Options.Model) }

func (k TextKind) Clone() ModelKind   { return TextKind{Options: k.Options.Clone()} }
func (k ImageKind) Clone() ModelKind  { return ImageKind{Options: k.Options.Clone()} }
func (k SparseKind) Clone() ModelKind { return SparseKind{Options: k.Options.Clone()} }
func (k RerankKind) Clone() ModelKind { return RerankKind{Options: k.Options.Clone()} }

func (k TextKind) Validate() error   { return k.Options.Validate() }
func (k ImageKind) Validate() error  { return k.Options.Validate() }
func (k SparseKind) Validate() error { return k.Options.Validate() }
func (k RerankKind) Validate() error { return k.Options.Validate() }

func (k TextKind) newEmbedding(ctx context.Context) (*Embedding, error) {
	te, err := embeddings.NewTextEmbedding(ctx, k.Options)
	if err != nil {
		return nil, err
	}
	return &Embedding{kind: KindText, text: te}, nil
}

func (k ImageKind) newEmbedding(ctx context.Context) (*Embedding, error) {
	ie, err := embeddings.NewImageEmbedding(ctx, k.Options)
	if err != nil {
		return nil, err
	}
	return &Embedding{kind: KindImage, image: ie}, nil
}

func (k SparseKind) newEmbedding(ctx context.Context) (*Embedding, error) {
	se, err := embeddings.NewSparseTextEmbedding(ctx, k.Options)
	if err != nil {
		return nil, err
	}
	return &Embedding{kind: KindSparse, sparse: se}, nil
}

func (k RerankKind) newEmbedding(ctx context.Context) (*Embedding, error) {
	tr, err := embeddings.NewTextRerank(ctx, k.Options)
	if err != nil {
		return nil, err
	}
	return &Embedding{kind: KindRerank, rerank: tr}, nil
}
