package logging

import "go.uber.org/zap/zapcore"

// TraceLevel sits below Debug. Used for per-batch detail that is too noisy
// even for debug runs.
const TraceLevel = zapcore.DebugLevel - 1

// ParseLevel parses a level name, accepting "trace" in addition to zap's
// names.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
