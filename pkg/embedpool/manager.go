package embedpool

import (
	"context"
	"time"
)

// Metrics describes a pooled instance's history. The pool supplies it to
// Manager.Recycle.
type Metrics struct {
	// Created is when the instance was constructed.
	Created time.Time

	// Recycled is when the instance last passed Recycle; zero if never.
	Recycled time.Time

	// RecycleCount is how many times the instance has been recycled.
	RecycleCount int
}

// Age returns how long ago the instance was created.
func (m Metrics) Age() time.Duration {
	return time.Since(m.Created)
}

// LastUsed returns the most recent of Created and Recycled.
func (m Metrics) LastUsed() time.Time {
	if m.Recycled.After(m.Created) {
		return m.Recycled
	}
	return m.Created
}

// Manager builds pooled instances and decides whether a returning instance
// may be handed out again.
type Manager interface {
	Create(ctx context.Context) (*Embedding, error)
	Recycle(ctx context.Context, e *Embedding, m Metrics) error
}

// EmbeddingManager is the Manager for embedding pools. It holds one
// selector and nothing else, so it is safe for concurrent use.
type EmbeddingManager struct {
	model ModelKind
}

var _ Manager = (*EmbeddingManager)(nil)

// NewManager returns a manager for a copy of model. A nil model selects
// DefaultModel.
func NewManager(model ModelKind) *EmbeddingManager {
	if model == nil {
		model = DefaultModel()
	}
	return &EmbeddingManager{model: model.Clone()}
}

// Model returns a copy of the manager's selector.
func (m *EmbeddingManager) Model() ModelKind {
	return m.model.Clone()
}

// Create builds a new instance. There are no retries.
func (m *EmbeddingManager) Create(ctx context.Context) (*Embedding, error) {
	return NewEmbedding(ctx, m.model)
}

// Recycle always reports the instance as reusable. Instances are not
// inspected or reset.
func (m *EmbeddingManager) Recycle(context.Context, *Embedding, Metrics) error {
	return nil
}
