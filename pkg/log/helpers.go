package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// slowRequestThresholdMs 慢请求阈值（毫秒）
const slowRequestThresholdMs = 5000

// LogHelper 扩展 Kratos log.Helper，提供便捷的日志方法
// 通过在日志调用时自动添加 "type" 字段，触发 EmojiConsoleEncoder 的表情符号映射
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func withType(msg, logType string, kvs []interface{}) []interface{} {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	return append(allKvs, "type", logType)
}

// Circuit 记录熔断器状态变化（表情符号: ⚡）
// 进入 OPEN 记为 warn，其余为 info
func (h *LogHelper) Circuit(service, from, to, reason string, kvs ...interface{}) {
	msg := fmt.Sprintf("Circuit breaker %s: %s -> %s (%s)", service, from, to, reason)
	allKvs := withType(msg, "circuit", kvs)
	allKvs = append(allKvs, "service", service, "from", from, "to", to, "reason", reason)
	if to == "OPEN" {
		h.Warnw(allKvs...)
		return
	}
	h.Infow(allKvs...)
}

// Chaos 记录混沌实验日志（表情符号: 🌪️）
func (h *LogHelper) Chaos(msg string, kvs ...interface{}) {
	h.Warnw(withType(msg, "chaos", kvs)...)
}

// Fallback 记录降级响应日志（表情符号: 🛟）
func (h *LogHelper) Fallback(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "fallback", kvs)...)
}

// Upstream 记录上游 API 调用日志（表情符号: 🔗）
func (h *LogHelper) Upstream(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "upstream", kvs)...)
}

// Alert 记录告警（表情符号: 🚨），级别由 severity 决定
func (h *LogHelper) Alert(severity, msg string, kvs ...interface{}) {
	allKvs := withType(msg, "alert", kvs)
	switch severity {
	case "critical", "error":
		h.Errorw(allKvs...)
	case "warning":
		h.Warnw(allKvs...)
	default:
		h.Infow(allKvs...)
	}
}

// Request 记录 HTTP 请求日志（表情符号: 🌐 或根据状态码）
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%s)", method, url, status, formatDuration(durationMs))
	allKvs := withType(msg, "request", kvs)
	allKvs = append(allKvs,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}

// Success 记录成功操作日志（表情符号: ✅）
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "success", kvs)...)
}

// Database 记录数据库操作日志（表情符号: 💾）
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "database", kvs)...)
}

// Redis 记录 Redis 操作日志（表情符号: 📦）
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	h.Debugw(withType(msg, "redis", kvs)...)
}

// Scheduler 记录定时任务日志（表情符号: 🎯）
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "scheduler", kvs)...)
}

// Startup 记录启动相关日志（表情符号: 🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(withType(msg, "startup", kvs)...)
}

// Security 记录安全相关日志（表情符号: 🔒）
func (h *LogHelper) Security(msg string, kvs ...interface{}) {
	h.Warnw(withType(msg, "security", kvs)...)
}

// ========== Context-Aware 日志方法 ==========
// 以下方法自动从 Context 提取追踪信息（Request ID, Service, Client IP）

// SlowRequest 记录慢请求警告（表情符号: 🐌）
// threshold: 慢请求阈值（毫秒），超过此值触发警告
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)

	allKvs := withType(msg, "slow_request", kvs)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"service", reqCtx.Service,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
	)
	h.Warnw(allKvs...)
}

// RequestWithContext 记录带 Context 的 HTTP 请求日志
// 自动从 Context 提取 Request ID 并检测慢请求
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%s) | RequestID: %s",
		method, url, status, formatDuration(durationMs), reqCtx.RequestID)

	allKvs := withType(msg, "request", kvs)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"service", reqCtx.Service,
		"client_ip", reqCtx.ClientIP,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)

	// 自动检测慢请求（阈值 5000ms）
	if durationMs > slowRequestThresholdMs {
		h.SlowRequest(ctx, method, url, durationMs, slowRequestThresholdMs)
	}
}
