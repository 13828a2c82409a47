package service

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPServer(t *testing.T) (*http.Server, *testEnv) {
	t.Helper()
	env := setupTestService(t)
	env.withoutDurableTotal()
	srv := http.NewServer()
	RegisterResilienceHTTPServer(srv, env.svc)
	return srv, env
}

func doJSON(t *testing.T, srv *http.Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHTTP_Generate(t *testing.T) {
	srv, _ := newTestHTTPServer(t)

	rec, body := doJSON(t, srv, nethttp.MethodPost, "/ai", `{"service":"gemini","prompt":"hello"}`)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "gemini", body["service"])
	assert.Equal(t, "reply to hello", body["response"])
	assert.Equal(t, true, body["isRealAPI"])
	assert.Contains(t, body, "latency")
	assert.Contains(t, body, "timestamp")
}

func TestHTTP_GenerateWithPathService(t *testing.T) {
	srv, env := newTestHTTPServer(t)

	rec, body := doJSON(t, srv, nethttp.MethodPost, "/ai/openai", `{"service":"gemini","prompt":"hello"}`)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "openai", body["service"])
	assert.Equal(t, 1, env.callCount("openai"))
}

func TestHTTP_ValidationError(t *testing.T) {
	srv, _ := newTestHTTPServer(t)

	rec, body := doJSON(t, srv, nethttp.MethodPost, "/ai", `{"service":"cohere","prompt":""}`)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, ReasonValidationFailed, body["reason"])
	md, ok := body["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ValidationError", md["kind"])

	rec, body = doJSON(t, srv, nethttp.MethodGet, "/metrics", "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["totalRequests"])
}

func TestHTTP_ChaosLifecycle(t *testing.T) {
	srv, _ := newTestHTTPServer(t)

	rec, body := doJSON(t, srv, nethttp.MethodPost, "/chaos/inject",
		`{"service":"gemini","type":"latency","intensity":500,"duration":5}`)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	exp := body["experiment"].(map[string]interface{})
	assert.Equal(t, "latency", exp["type"])
	assert.Equal(t, float64(5), exp["duration"])

	rec, body = doJSON(t, srv, nethttp.MethodGet, "/chaos/status", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = doJSON(t, srv, nethttp.MethodPost, "/chaos/stop", `{"service":"all"}`)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"gemini"}, body["services"])
}

func TestHTTP_CircuitBreakerEndpoints(t *testing.T) {
	srv, _ := newTestHTTPServer(t)

	rec, body := doJSON(t, srv, nethttp.MethodGet, "/circuit-breaker/status", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	breakers := body["circuitBreakers"].(map[string]interface{})
	assert.Len(t, breakers, len(testUpstreams))
	gemini := breakers["gemini"].(map[string]interface{})
	assert.Equal(t, "CLOSED", gemini["state"])
	assert.Equal(t, float64(3), gemini["failureThreshold"])

	rec, body = doJSON(t, srv, nethttp.MethodPost, "/circuit-breaker/reset", `{}`)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestHTTP_StatsAndConfig(t *testing.T) {
	srv, _ := newTestHTTPServer(t)

	rec, body := doJSON(t, srv, nethttp.MethodGet, "/stats?service=gemini&hours=12", "")
	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)
	assert.Equal(t, ReasonInternal, body["reason"])

	rec, body = doJSON(t, srv, nethttp.MethodPost, "/admin/failure-config", `{"failRate":2}`)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	cfg := body["failureConfig"].(map[string]interface{})
	assert.Equal(t, float64(1), cfg["failRate"])

	rec, body = doJSON(t, srv, nethttp.MethodGet, "/config", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, false, body["testMode"])

	rec, body = doJSON(t, srv, nethttp.MethodGet, "/ai/health", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}
