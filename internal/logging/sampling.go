package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with level-aware sampling. Each level listed in
// cfg.Levels gets its own sampler; other levels pass through. Error and
// above are never sampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	cores := []zapcore.Core{
		newLevelFilterCore(core, func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }),
	}

	sampled := make(map[zapcore.Level]bool, len(cfg.Levels))
	for level, lc := range cfg.Levels {
		if level >= zapcore.ErrorLevel {
			continue
		}
		sampled[level] = true
		only := newLevelFilterCore(core, func(l zapcore.Level) bool { return l == level })
		cores = append(cores, zapcore.NewSamplerWithOptions(only, cfg.Tick, lc.Initial, lc.Thereafter))
	}

	cores = append(cores, newLevelFilterCore(core, func(l zapcore.Level) bool {
		return l < zapcore.ErrorLevel && !sampled[l]
	}))

	return zapcore.NewTee(cores...)
}

// levelFilterCore passes only the levels allow accepts.
type levelFilterCore struct {
	zapcore.Core
	allow func(zapcore.Level) bool
}

func newLevelFilterCore(core zapcore.Core, allow func(zapcore.Level) bool) *levelFilterCore {
	return &levelFilterCore{Core: core, allow: allow}
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.allow(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

// With creates a child logger that preserves level filtering.
func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:  c.Core.With(fields),
		allow: c.allow,
	}
}
