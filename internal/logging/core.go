package logging

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newCore tees the writer and OTel outputs, each behind redaction, and
// samples the result.
func newCore(cfg *Config, lp log.LoggerProvider) (zapcore.Core, error) {
	r, err := newRedactor(cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("redaction: %w", err)
	}

	var cores []zapcore.Core
	if cfg.Writer != nil {
		ws := zapcore.Lock(zapcore.AddSync(cfg.Writer))
		cores = append(cores, newRedactCore(zapcore.NewCore(newEncoder(cfg.Format), ws, cfg.Level), r))
	}
	if cfg.OTEL && lp != nil {
		name := cfg.Fields["service"]
		if name == "" {
			name = "embedpool"
		}
		otel := otelzap.NewCore(name, otelzap.WithLoggerProvider(lp))
		level := cfg.Level
		cores = append(cores, newRedactCore(newLevelFilterCore(otel, level.Enabled), r))
	}
	if len(cores) == 0 {
		return nil, errors.New("no log output available")
	}

	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = encodeLevel

	if format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// encodeLevel names TraceLevel, which zap would print as "Level(-2)".
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}
