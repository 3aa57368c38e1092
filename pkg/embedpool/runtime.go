package embedpool

import (
	"context"
	"time"
)

// Runtime enforces pool timeouts. A pool configured with any timeout needs
// one.
type Runtime interface {
	WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc)
}

// StdRuntime enforces timeouts with context deadlines.
type StdRuntime struct{}

// WithTimeout wraps context.WithTimeout.
func (StdRuntime) WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
