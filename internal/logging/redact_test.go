package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestRedaction_Keys(t *testing.T) {
	l, buf := newBufferLogger(t, zapcore.InfoLevel)

	l.With(zap.String("Authorization", "Bearer abc")).Info(context.Background(), "call",
		zap.String("api_key", "sk-123"),
		zap.Int("token", 42),
		zap.String("endpoint", "http://tei:8080"),
	)

	got := entries(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, redacted, got[0]["Authorization"])
	assert.Equal(t, redacted, got[0]["api_key"])
	assert.Equal(t, redacted, got[0]["token"])
	assert.Equal(t, "http://tei:8080", got[0]["endpoint"])
}

func TestRedaction_Patterns(t *testing.T) {
	l, buf := newBufferLogger(t, zapcore.InfoLevel)

	l.Warn(context.Background(), "sent Bearer abc.def to server",
		zap.String("header", "Bearer xyz"),
		zap.Error(errors.New("tei rejected api_key=sk-999")),
	)

	got := entries(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "sent [REDACTED] to server", got[0]["msg"])
	assert.Equal(t, redacted, got[0]["header"])
	assert.Equal(t, "tei rejected [REDACTED]", got[0]["error"])
	assert.NotContains(t, buf.String(), "sk-999")
}

func TestRedactor_FieldsCopyOnWrite(t *testing.T) {
	r, err := newRedactor(RedactionConfig{Keys: []string{"secret"}})
	require.NoError(t, err)

	clean := []zapcore.Field{zap.String("a", "1"), zap.Int("b", 2)}
	assert.Same(t, &clean[0], &r.fields(clean)[0], "unchanged fields are not copied")

	dirty := []zapcore.Field{zap.String("a", "1"), zap.String("secret", "s")}
	out := r.fields(dirty)
	assert.Equal(t, redacted, out[1].String)
	assert.Equal(t, "s", dirty[1].String, "input is not modified")
}

func TestNewRedactCore_Empty(t *testing.T) {
	r, err := newRedactor(RedactionConfig{})
	require.NoError(t, err)
	core := zapcore.NewNopCore()
	assert.Equal(t, core, newRedactCore(core, r))
}
