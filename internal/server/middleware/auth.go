// Package middleware provides HTTP middleware for authentication, logging, and request processing.
package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	pkglog "AIResilience/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// ReasonUnauthorized is returned when an operator endpoint is called without a valid token.
const ReasonUnauthorized = "UNAUTHORIZED"

// AdminAuth 返回保护运维接口的认证中间件
// 支持 "Authorization: Bearer {token}" 与 "X-API-Key: {token}" 两种方式；token 为空时不做校验
//
// 日志输出示例:
//
//	🔒 Admin token rejected for POST /chaos/inject | {"type":"security","api_key_masked":"sk-12345***"}
func AdminAuth(token string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if token == "" {
				return handler(ctx, req)
			}

			var (
				apiKey string
				target string
			)
			if tr, ok := transport.FromServerContext(ctx); ok {
				target = tr.Operation()
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					target = httpReq.Method + " " + httpReq.URL.Path
				}
				apiKey = extractAPIKey(tr.RequestHeader())
			}

			if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(token)) != 1 {
				logger.Security("Admin token rejected for "+target,
					"api_key_masked", maskAPIKey(apiKey),
					"request_id", pkglog.GetRequestID(ctx),
				)
				return nil, errors.Unauthorized(ReasonUnauthorized, "a valid admin token is required")
			}
			return handler(ctx, req)
		}
	}
}

// extractAPIKey 从 Authorization（Bearer）或 X-API-Key header 中提取 token
func extractAPIKey(h transport.Header) string {
	if authHeader := h.Get("Authorization"); authHeader != "" {
		if key := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")); key != "" {
			return key
		}
	}
	return strings.TrimSpace(h.Get("X-API-Key"))
}

// maskAPIKey 脱敏 API Key，仅显示前 8 位
// 示例: "sk-1234567890abcdef" -> "sk-12345***"
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "***"
}
