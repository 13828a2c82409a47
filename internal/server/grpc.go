package server

import (
	"context"

	"AIResilience/internal/biz"
	"AIResilience/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReporter serves grpc.health.v1 with one service entry per upstream.
// An upstream is NOT_SERVING while its circuit breaker is OPEN.
type HealthReporter struct {
	health *health.Server
	logger *log.Helper
}

// NewHealthReporter creates a HealthReporter seeded from the current breaker states
// and subscribed to breaker transitions on bus.
func NewHealthReporter(bus *biz.EventBus, breakers *biz.BreakerRegistry, logger log.Logger) *HealthReporter {
	r := &HealthReporter{
		health: health.NewServer(),
		logger: log.NewHelper(logger),
	}
	r.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, snap := range breakers.Snapshots() {
		r.health.SetServingStatus(snap.Upstream, servingStatus(snap.State))
	}
	bus.Subscribe(r)
	return r
}

// HandleEvent implements biz.EventHandler.
func (r *HealthReporter) HandleEvent(_ context.Context, e biz.Event) {
	if e.Type != biz.EventTransition || e.Transition == nil {
		return
	}
	t := e.Transition
	r.health.SetServingStatus(t.Upstream, servingStatus(t.To))
	r.logger.Debugw("msg", "upstream health updated", "service", t.Upstream, "state", t.To.String())
}

// Server returns the health service implementation.
func (r *HealthReporter) Server() grpc_health_v1.HealthServer {
	return r.health
}

// Shutdown marks every service NOT_SERVING.
func (r *HealthReporter) Shutdown() {
	r.health.Shutdown()
}

func servingStatus(s biz.State) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s == biz.StateOpen {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// NewGRPCServer new a gRPC server exposing only the health service.
func NewGRPCServer(c *conf.Server, reporter *HealthReporter, logger log.Logger) *grpc.Server {
	var opts = []grpc.ServerOption{
		grpc.Middleware(
			recovery.Recovery(),
		),
		grpc.CustomHealth(),
	}
	if c.Grpc.Network != "" {
		opts = append(opts, grpc.Network(c.Grpc.Network))
	}
	if c.Grpc.Addr != "" {
		opts = append(opts, grpc.Address(c.Grpc.Addr))
	}
	if c.Grpc.Timeout != nil {
		opts = append(opts, grpc.Timeout(c.Grpc.Timeout.AsDuration()))
	}
	srv := grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(srv, reporter.Server())

	log.NewHelper(logger).Debugw("msg", "grpc health service registered", "addr", c.Grpc.Addr)
	return srv
}
