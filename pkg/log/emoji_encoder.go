package log

import (
	"fmt"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// typeEmoji 日志类型 ("type" 字段) 对应的表情符号
var typeEmoji = map[string]string{
	"request":      "🌐",
	"slow_request": "🐌",
	"success":      "✅",
	"circuit":      "⚡",
	"chaos":        "🌪️",
	"fallback":     "🛟",
	"upstream":     "🔗",
	"alert":        "🚨",
	"database":     "💾",
	"redis":        "📦",
	"scheduler":    "🎯",
	"startup":      "🚀",
	"security":     "🔒",
}

// circuitEmoji 熔断器日志按目标状态 ("to" 字段) 区分
var circuitEmoji = map[string]string{
	"OPEN":      "🔌",
	"HALF_OPEN": "🔍",
	"CLOSED":    "⚡",
}

var levelEmoji = map[zapcore.Level]string{
	zapcore.DebugLevel:  "🐛",
	zapcore.InfoLevel:   "ℹ️",
	zapcore.WarnLevel:   "⚠️",
	zapcore.ErrorLevel:  "❌",
	zapcore.DPanicLevel: "❌",
	zapcore.PanicLevel:  "❌",
	zapcore.FatalLevel:  "❌",
}

// statusEmoji 按 HTTP 状态码分级
func statusEmoji(status int64) string {
	switch {
	case status >= 500:
		return "🔴"
	case status >= 400:
		return "🟠"
	case status >= 300:
		return "🟡"
	default:
		return "🟢"
	}
}

// EmojiConsoleEncoder 在控制台输出的消息前加表情符号
// 优先级: HTTP status > 熔断器目标状态 > type 字段 > 日志级别
type EmojiConsoleEncoder struct {
	zapcore.Encoder
}

// NewEmojiConsoleEncoder 创建带表情符号的控制台编码器
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

// EncodeEntry implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if emoji := pickEmoji(entry.Level, fields); emoji != "" {
		entry.Message = emoji + " " + entry.Message
	}
	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: enc.Encoder.Clone()}
}

func pickEmoji(level zapcore.Level, fields []zapcore.Field) string {
	var (
		logType, to string
		status      int64
	)
	for _, f := range fields {
		switch {
		case f.Key == "type" && f.Type == zapcore.StringType:
			logType = f.String
		case f.Key == "to" && f.Type == zapcore.StringType:
			to = f.String
		case f.Key == "status" && (f.Type == zapcore.Int64Type || f.Type == zapcore.Int32Type):
			status = f.Integer
		}
	}

	if status > 0 {
		return statusEmoji(status)
	}
	if logType == "circuit" {
		if e, ok := circuitEmoji[to]; ok {
			return e
		}
	}
	if e, ok := typeEmoji[logType]; ok {
		return e
	}
	return levelEmoji[level]
}

// formatDuration 1ms, 150ms, 2.5s
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
