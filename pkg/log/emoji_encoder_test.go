package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeMessage(t *testing.T, level zapcore.Level, msg string, fields ...zapcore.Field) string {
	t.Helper()
	enc := NewEmojiConsoleEncoder(zapcore.EncoderConfig{MessageKey: "msg"}).Clone()
	buf, err := enc.EncodeEntry(zapcore.Entry{Level: level, Message: msg}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestEmojiConsoleEncoder_CircuitTransitions(t *testing.T) {
	out := encodeMessage(t, zapcore.WarnLevel, "Circuit breaker gemini: CLOSED -> OPEN",
		zap.String("type", "circuit"), zap.String("to", "OPEN"))
	assert.Contains(t, out, "🔌 Circuit breaker gemini: CLOSED -> OPEN")

	out = encodeMessage(t, zapcore.InfoLevel, "Circuit breaker gemini: OPEN -> HALF_OPEN",
		zap.String("type", "circuit"), zap.String("to", "HALF_OPEN"))
	assert.Contains(t, out, "🔍 Circuit breaker")

	// Unknown target state falls back to the circuit type emoji.
	out = encodeMessage(t, zapcore.InfoLevel, "Circuit breaker reset", zap.String("type", "circuit"))
	assert.Contains(t, out, "⚡ Circuit breaker reset")
}

func TestEmojiConsoleEncoder_DomainTypes(t *testing.T) {
	assert.Contains(t, encodeMessage(t, zapcore.WarnLevel, "Chaos injected", zap.String("type", "chaos")), "🌪️ Chaos injected")
	assert.Contains(t, encodeMessage(t, zapcore.InfoLevel, "Fallback used", zap.String("type", "fallback")), "🛟 Fallback used")
	assert.Contains(t, encodeMessage(t, zapcore.ErrorLevel, "High failure rate", zap.String("type", "alert")), "🚨 High failure rate")
}

func TestEmojiConsoleEncoder_StatusWins(t *testing.T) {
	out := encodeMessage(t, zapcore.InfoLevel, "POST /ai - 503 (12ms)",
		zap.String("type", "request"), zap.Int("status", 503))
	assert.Contains(t, out, "🔴 POST /ai")

	out = encodeMessage(t, zapcore.InfoLevel, "GET /metrics - 200 (1ms)",
		zap.String("type", "request"), zap.Int("status", 200))
	assert.Contains(t, out, "🟢 GET /metrics")
}

func TestEmojiConsoleEncoder_LevelDefault(t *testing.T) {
	assert.Contains(t, encodeMessage(t, zapcore.ErrorLevel, "event write failed"), "❌ event write failed")
	assert.Contains(t, encodeMessage(t, zapcore.InfoLevel, "plain", zap.String("type", "unknown")), "ℹ️ plain")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "542ms", formatDuration(542))
	assert.Equal(t, "13.4s", formatDuration(13438))
}
