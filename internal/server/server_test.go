package server

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"AIResilience/internal/biz"
	"AIResilience/internal/conf"
	"AIResilience/internal/data"
	"AIResilience/internal/service"
	"AIResilience/pkg/faultinject"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/durationpb"
)

func testServerConf() *conf.Server {
	return &conf.Server{
		Http: &conf.Server_HTTP{Network: "tcp", Addr: ":0", Timeout: durationpb.New(5 * time.Second)},
		Grpc: &conf.Server_GRPC{Network: "tcp", Addr: ":0", Timeout: durationpb.New(time.Second)},
	}
}

func newTestBreakers() *biz.BreakerRegistry {
	return biz.NewBreakerRegistryWithClock([]string{"cohere", "gemini"},
		biz.BreakerSettings{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Minute},
		time.Now, log.DefaultLogger)
}

func checkHealth(t *testing.T, r *HealthReporter, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.Server().Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthReporter(t *testing.T) {
	bus := biz.NewEventBus(log.DefaultLogger)
	reporter := NewHealthReporter(bus, newTestBreakers(), log.DefaultLogger)

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, checkHealth(t, reporter, ""))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, checkHealth(t, reporter, "gemini"))

	reporter.HandleEvent(context.Background(), biz.Event{Type: biz.EventTransition, Transition: &biz.Transition{
		Upstream: "gemini", From: biz.StateClosed, To: biz.StateOpen,
	}})
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, checkHealth(t, reporter, "gemini"))
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, checkHealth(t, reporter, "cohere"))

	reporter.HandleEvent(context.Background(), biz.Event{Type: biz.EventTransition, Transition: &biz.Transition{
		Upstream: "gemini", From: biz.StateOpen, To: biz.StateHalfOpen,
	}})
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, checkHealth(t, reporter, "gemini"))

	// 非熔断事件被忽略
	reporter.HandleEvent(context.Background(), biz.Event{Type: biz.EventRequest})

	reporter.Shutdown()
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, checkHealth(t, reporter, "cohere"))
}

func TestNewGRPCServer(t *testing.T) {
	bus := biz.NewEventBus(log.DefaultLogger)
	reporter := NewHealthReporter(bus, newTestBreakers(), log.DefaultLogger)

	srv := NewGRPCServer(testServerConf(), reporter, log.DefaultLogger)
	require.NotNil(t, srv)
	assert.Contains(t, srv.GetServiceInfo(), "grpc.health.v1.Health")
}

func newTestResilienceService(t *testing.T) *service.ResilienceService {
	t.Helper()
	logger := log.DefaultLogger
	names := []string{"cohere", "gemini"}
	c := &conf.Bootstrap{
		Synthetic: &conf.Synthetic{Enabled: true},
		Upstreams: map[string]*conf.Upstream{
			"cohere": {Name: "cohere", Timeout: time.Second},
			"gemini": {Name: "gemini", Timeout: time.Second},
		},
	}
	src := faultinject.NewSource(1)
	metrics := biz.NewMetricsAggregatorFor(names, nil)
	breakers := newTestBreakers()
	chaos := biz.NewChaosControllerWith(names, biz.ChaosSettings{}, src, nil, nil, logger)
	fallback := biz.NewFallbackSimulatorWith(biz.FallbackSettings{}, src, nil, logger)
	injector := faultinject.New(faultinject.Config{}, src)
	caller := biz.NewUnreliableCaller(injector, nil, nil, logger)
	pipeline := biz.NewPipeline(c, metrics, breakers, chaos, caller, fallback, nil, nil, nil, logger)

	d, cleanupData, err := data.NewData(nil, logger, nil, nil)
	require.NoError(t, err)
	repo, cleanupRepo := data.NewEventRepo(d, logger)
	t.Cleanup(func() {
		cleanupRepo()
		cleanupData()
	})
	stats := biz.NewStatsUsecase(repo, nil, metrics, nil, nil, logger)
	return service.NewResilienceService(c, pipeline, metrics, breakers, chaos, stats, injector, nil, nil, logger)
}

func serve(srv nethttp.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestNewHTTPServer_AdminAuth(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := NewHTTPServer(testServerConf(), &conf.Admin{Token: "s3cret-admin-token"}, newTestResilienceService(t), reg, log.DefaultLogger)

	body := `{"service":"gemini","type":"failure","intensity":100,"duration":5}`

	rec := serve(srv, nethttp.MethodPost, "/chaos/inject", body, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(srv, nethttp.MethodPost, "/chaos/inject", body, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)

	rec = serve(srv, nethttp.MethodPost, "/chaos/inject", body, map[string]string{"Authorization": "Bearer s3cret-admin-token"})
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	rec = serve(srv, nethttp.MethodPost, "/chaos/stop", `{"service":"all"}`, map[string]string{"X-API-Key": "s3cret-admin-token"})
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	// 只读接口不需要认证
	rec = serve(srv, nethttp.MethodGet, "/chaos/status", "", map[string]string{"X-Request-ID": "req-fixed-1"})
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "req-fixed-1", rec.Header().Get("X-Request-ID"))

	rec = serve(srv, nethttp.MethodPost, "/ai", `{"service":"gemini","prompt":"hello"}`, nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestNewHTTPServer_NoAdminToken(t *testing.T) {
	srv := NewHTTPServer(testServerConf(), nil, newTestResilienceService(t), prometheus.NewRegistry(), log.DefaultLogger)

	rec := serve(srv, nethttp.MethodPost, "/circuit-breaker/reset", `{}`, nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestNewHTTPServer_PrometheusEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ai_test_total", Help: "test counter"})
	reg.MustRegister(counter)
	counter.Add(3)
	require.Equal(t, float64(3), testutil.ToFloat64(counter))

	srv := NewHTTPServer(testServerConf(), nil, newTestResilienceService(t), reg, log.DefaultLogger)

	rec := serve(srv, nethttp.MethodGet, PrometheusPath, "", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ai_test_total 3")

	rec = serve(srv, nethttp.MethodGet, "/metrics", "", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalRequests"`)
}
