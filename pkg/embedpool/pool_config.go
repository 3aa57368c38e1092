package embedpool

import (
	"runtime"
	"time"
)

// Timeouts bounds pool operations. Zero disables a timeout.
type Timeouts struct {
	// Wait bounds how long Get waits for a free slot.
	Wait time.Duration `json:"wait" yaml:"wait"`

	// Create bounds constructing a new instance.
	Create time.Duration `json:"create" yaml:"create"`

	// Recycle bounds the Recycle check of a reused instance.
	Recycle time.Duration `json:"recycle" yaml:"recycle"`
}

// enabled reports whether at least one timeout is set.
func (t Timeouts) enabled() bool {
	return t.Wait > 0 || t.Create > 0 || t.Recycle > 0
}

// PoolConfig holds pool settings.
type PoolConfig struct {
	// MaxSize is the maximum number of instances.
	MaxSize int `json:"max_size" yaml:"max_size"`

	Timeouts Timeouts `json:"timeouts" yaml:"timeouts"`
}

// DefaultMaxSize is four instances per CPU.
func DefaultMaxSize() int {
	return runtime.NumCPU() * 4
}

// DefaultPoolConfig returns DefaultMaxSize and no timeouts.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxSize: DefaultMaxSize()}
}
