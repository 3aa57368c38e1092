// Package logging builds the zap logger used by the embedpool server and CLI.
//
// A Logger writes JSON or console entries to an io.Writer, optionally
// forwards them to an OpenTelemetry LoggerProvider through otelzap, masks
// sensitive field values and samples repeated entries per level. Errors are
// never sampled.
//
// Context methods add correlation fields recorded with WithModel and
// WithRequestID plus the active span's trace and span ids:
//
//	ctx = logging.WithModel(ctx, logging.Model{Kind: "text", Name: "fast-bge-small-en-v1.5"})
//	logger.Info(ctx, "embedded batch", zap.Int("inputs", n))
//
// Pass Logger.Underlying to code that takes a *zap.Logger.
package logging
