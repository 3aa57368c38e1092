package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type modelKey struct{}
type requestIDKey struct{}

// Model identifies the model serving a request.
type Model struct {
	Kind string
	Name string
}

// WithModel records the serving model. A model without a kind is ignored.
func WithModel(ctx context.Context, m Model) context.Context {
	if m.Kind == "" {
		return ctx
	}
	return context.WithValue(ctx, modelKey{}, m)
}

// ModelFromContext returns the model set by WithModel.
func ModelFromContext(ctx context.Context) (Model, bool) {
	m, ok := ctx.Value(modelKey{}).(Model)
	return m, ok
}

const maxRequestIDLen = 128

// ValidRequestID reports whether id is 1 to 128 ASCII letters, digits,
// hyphens or underscores.
func ValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch c := id[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// WithRequestID records the request id. Invalid ids are ignored so a client
// supplied header cannot inject arbitrary text into logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	if !ValidRequestID(id) {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextFields returns trace, model and request correlation fields found
// in ctx.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if m, ok := ModelFromContext(ctx); ok {
		fields = append(fields, zap.String("model.kind", m.Kind))
		if m.Name != "" {
			fields = append(fields, zap.String("model.name", m.Name))
		}
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}
