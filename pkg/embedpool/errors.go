package embedpool

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/embedpool/pkg/embeddings"
)

var (
	// ErrModelNotFound indicates the configured model is not in the registry.
	ErrModelNotFound = embeddings.ErrModelNotFound

	// ErrNoRuntimeSpecified is returned by Build when a timeout is configured
	// without a Runtime to enforce it.
	ErrNoRuntimeSpecified = errors.New("timeouts require a runtime")

	// ErrInvalidMaxSize is returned by Build when MaxSize is less than 1.
	ErrInvalidMaxSize = errors.New("max size must be at least 1")

	// ErrNoManager is returned by Build when the builder has no Manager.
	ErrNoManager = errors.New("manager is required")

	// ErrPoolClosed is returned by Get after Close.
	ErrPoolClosed = errors.New("pool is closed")
)

// ConfigError reports a Config that cannot produce a builder, such as an
// unknown model.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// BuildError reports invalid pool settings found by PoolBuilder.Build.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build pool: %v", e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// TimeoutOp names the pool operation that timed out.
type TimeoutOp string

const (
	TimeoutWait    TimeoutOp = "wait"
	TimeoutCreate  TimeoutOp = "create"
	TimeoutRecycle TimeoutOp = "recycle"
)

// TimeoutError is returned by Get when a configured timeout elapses.
type TimeoutError struct {
	Op TimeoutOp
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout while waiting for %s", e.Op)
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// Timeout reports true, matching net.Error.
func (e *TimeoutError) Timeout() bool {
	return true
}
