package logging

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// redactor masks sensitive field values.
type redactor struct {
	keys     map[string]bool
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	r := &redactor{keys: make(map[string]bool, len(cfg.Keys))}
	for _, k := range cfg.Keys {
		r.keys[strings.ToLower(k)] = true
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *redactor) empty() bool {
	return len(r.keys) == 0 && len(r.patterns) == 0
}

func (r *redactor) mask(s string) (string, bool) {
	hit := false
	for _, re := range r.patterns {
		if re.MatchString(s) {
			s = re.ReplaceAllString(s, redacted)
			hit = true
		}
	}
	return s, hit
}

func (r *redactor) field(f zapcore.Field) zapcore.Field {
	if r.keys[strings.ToLower(f.Key)] {
		return zap.String(f.Key, redacted)
	}
	switch f.Type {
	case zapcore.StringType:
		if s, ok := r.mask(f.String); ok {
			return zap.String(f.Key, s)
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok {
			if s, ok := r.mask(err.Error()); ok {
				return zap.String(f.Key, s)
			}
		}
	}
	return f
}

// fields returns fs with sensitive values masked, copying only when
// something changes.
func (r *redactor) fields(fs []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fs {
		g := r.field(f)
		if out == nil && (g.Type != f.Type || g.String != f.String) {
			out = make([]zapcore.Field, len(fs))
			copy(out, fs[:i])
		}
		if out != nil {
			out[i] = g
		}
	}
	if out == nil {
		return fs
	}
	return out
}

// redactCore masks fields on a leaf core, covering both With and per-entry
// fields whatever the encoder.
type redactCore struct {
	zapcore.Core
	r *redactor
}

func newRedactCore(core zapcore.Core, r *redactor) zapcore.Core {
	if r.empty() {
		return core
	}
	return &redactCore{Core: core, r: r}
}

func (c *redactCore) With(fs []zapcore.Field) zapcore.Core {
	return &redactCore{Core: c.Core.With(c.r.fields(fs)), r: c.r}
}

func (c *redactCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactCore) Write(e zapcore.Entry, fs []zapcore.Field) error {
	e.Message, _ = c.r.mask(e.Message)
	return c.Core.Write(e, c.r.fields(fs))
}
