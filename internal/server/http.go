package server

import (
	"AIResilience/internal/conf"
	"AIResilience/internal/server/middleware"
	"AIResilience/internal/service"
	pkglog "AIResilience/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusPath serves the Prometheus exposition format.
const PrometheusPath = "/metrics/prometheus"

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, admin *conf.Admin, resilience *service.ResilienceService, gatherer prometheus.Gatherer, logger log.Logger) *http.Server {
	// 创建增强的日志辅助器
	logHelper := pkglog.NewLogHelper(logger)

	token := ""
	if admin != nil {
		token = admin.Token
	}
	if token == "" {
		logHelper.Security("Admin token not configured, operator endpoints are unauthenticated")
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper), // 请求日志中间件：记录请求方法、路径、耗时
			selector.Server(
				middleware.AdminAuth(token, logHelper), // 运维接口认证
			).Path(service.AdminOperations...).Build(),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	// Register HTTP services
	service.RegisterResilienceHTTPServer(srv, resilience)
	srv.Handle(PrometheusPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return srv
}
