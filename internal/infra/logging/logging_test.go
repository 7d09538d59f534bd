//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritheo-bot/internal/config"
)

func TestWithAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)

	ctx := WithTraceID(context.Background(), "01HX")
	ctx = WithChatID(ctx, -100)
	ctx = WithJobID(ctx, 7)
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "01HX", line["trace_id"])
	assert.Equal(t, float64(-100), line["chat_id"])
	assert.Equal(t, float64(7), line["job_id"])
	assert.NotContains(t, line, "user_id")
}

func TestFields(t *testing.T) {
	ctx := WithUserID(WithTraceID(context.Background(), "abc"), 42)
	assert.Equal(t, map[string]string{"trace_id": "abc", "user_id": "42"}, Fields(ctx))
	assert.Equal(t, "abc", TraceIDFrom(ctx))
	assert.Empty(t, Fields(context.Background()))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "¿Qué es la gracia?", Redact("¿Qué es la gracia?", true))
	assert.Equal(t, "***", Redact("corto", false))
	assert.Equal(t, "¿Qué...a?", Redact("¿Qué es la gracia?", false))
}
