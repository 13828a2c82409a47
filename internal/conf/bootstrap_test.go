package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestNewBootstrap_Defaults(t *testing.T) {
	configPath := writeConfig(t, `server:
  http:
    addr: :3000
  grpc:
    addr: :9000
`)

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)
	require.NotNil(t, bc)

	// Server defaults
	assert.Equal(t, ":3000", bc.Server.Http.Addr)
	assert.Equal(t, "tcp", bc.Server.Http.Network)
	assert.Equal(t, 30*time.Second, bc.Server.Http.Timeout.AsDuration())
	assert.Equal(t, ":9000", bc.Server.Grpc.Addr)

	// Storage is optional
	assert.Equal(t, "mysql", bc.Data.Database.Driver)
	assert.Equal(t, 200*time.Millisecond, bc.Data.Redis.ReadTimeout.AsDuration())

	// Breaker defaults
	assert.Equal(t, 5, bc.Breaker.FailureThreshold)
	assert.Equal(t, 2, bc.Breaker.SuccessThreshold)
	assert.Equal(t, 60*time.Second, bc.Breaker.OpenTimeout)
	assert.Equal(t, 30*time.Second, bc.Breaker.HalfOpenTimeout)

	// Chaos bounds
	assert.Equal(t, 10*time.Second, bc.Chaos.MaxLatency)
	assert.Equal(t, 30, bc.Chaos.TimeoutFactor)
	assert.Equal(t, 3*time.Second, bc.Chaos.MaxTimeout)

	// Fallback simulation
	assert.Equal(t, 500*time.Millisecond, bc.Fallback.MinDelay)
	assert.Equal(t, 2500*time.Millisecond, bc.Fallback.MaxDelay)
	assert.InDelta(t, 0.1, bc.Fallback.FailureRate, 1e-9)

	// Alert thresholds
	assert.InDelta(t, 0.5, bc.Alert.FailureRate, 1e-9)
	assert.InDelta(t, 0.8, bc.Alert.FallbackRate, 1e-9)
	assert.Equal(t, 5*time.Minute, bc.Alert.Cooldown)

	// Built-in upstreams
	for name := range DefaultUpstreams {
		u, ok := bc.Upstreams[name]
		require.True(t, ok, name)
		assert.Equal(t, name, u.Name)
		assert.Equal(t, 10*time.Second, u.Timeout)
		assert.NotEmpty(t, u.Endpoint)
	}

	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_EnvOverrides(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectedVal func(*Bootstrap) bool
		description string
	}{
		{
			name:    "override_http_addr",
			envVars: map[string]string{"AIRESILIENCE_SERVER_HTTP_ADDR": ":9999"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Server.Http.Addr == ":9999"
			},
			description: "AIRESILIENCE_SERVER_HTTP_ADDR should override default :3000",
		},
		{
			name:    "override_redis_addr",
			envVars: map[string]string{"REDIS_ADDR": "redis.example.com:6379"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Data.Redis.Addr == "redis.example.com:6379"
			},
			description: "REDIS_ADDR should set the redis address",
		},
		{
			name:    "provider_api_key",
			envVars: map[string]string{"GEMINI_API_KEY": "gm-test-key"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Upstreams["gemini"].ApiKey == "gm-test-key"
			},
			description: "GEMINI_API_KEY should configure the gemini upstream",
		},
		{
			name:    "test_mode_enables_synthetic",
			envVars: map[string]string{"TEST_MODE": "true"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Synthetic.Enabled
			},
			description: "TEST_MODE should switch on synthetic unreliable mode",
		},
		{
			name:    "override_failure_threshold",
			envVars: map[string]string{"AIRESILIENCE_BREAKER_FAILURE_THRESHOLD": "3"},
			expectedVal: func(bc *Bootstrap) bool {
				return bc.Breaker.FailureThreshold == 3
			},
			description: "breaker thresholds should be overridable from env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, `server:
  http:
    addr: :3000
`)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			bc, err := NewBootstrap(configPath)
			require.NoError(t, err, tt.description)
			require.NotNil(t, bc)

			assert.True(t, tt.expectedVal(bc), tt.description)
		})
	}
}

func TestNewBootstrap_CustomUpstream(t *testing.T) {
	configPath := writeConfig(t, `upstreams:
  cohere:
    timeout: 4s
    model: command-light
  mistral:
    endpoint: http://localhost:9999/v1/generate
    timeout: 2s
`)

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)

	assert.Equal(t, 4*time.Second, bc.Upstreams["cohere"].Timeout)
	assert.Equal(t, "command-light", bc.Upstreams["cohere"].Model)
	require.Contains(t, bc.Upstreams, "mistral")
	assert.Equal(t, "http://localhost:9999/v1/generate", bc.Upstreams["mistral"].Endpoint)
	assert.Equal(t, 2*time.Second, bc.Upstreams["mistral"].Timeout)
}

func TestNewBootstrap_InvalidValues(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectedError string
	}{
		{
			name: "zero_failure_threshold",
			content: `breaker:
  failure_threshold: 0
`,
			expectedError: "breaker.failure_threshold",
		},
		{
			name: "fallback_rate_out_of_range",
			content: `fallback:
  failure_rate: 1.5
`,
			expectedError: "fallback.failure_rate",
		},
		{
			name: "upstream_timeout_too_long",
			content: `upstreams:
  gemini:
    timeout: 30s
`,
			expectedError: "upstreams.gemini.timeout",
		},
		{
			name: "chaos_latency_cap_too_high",
			content: `chaos:
  max_latency: 30s
`,
			expectedError: "chaos.max_latency",
		},
		{
			name: "chaos_timeout_cap_too_high",
			content: `chaos:
  timeout_factor: 100
  max_timeout: 10s
`,
			expectedError: "chaos.max_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc, err := NewBootstrap(writeConfig(t, tt.content))
			assert.Error(t, err)
			assert.Nil(t, bc)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestNewBootstrap_ConfigFileNotFound(t *testing.T) {
	bc, err := NewBootstrap("/non/existent/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, bc)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestNewBootstrap_EmptyConfigPath(t *testing.T) {
	bc, err := NewBootstrap("")
	require.NoError(t, err)
	require.NotNil(t, bc)

	assert.Equal(t, ":3000", bc.Server.Http.Addr)
	assert.Equal(t, ":9000", bc.Server.Grpc.Addr)
	assert.Len(t, bc.Upstreams, len(DefaultUpstreams))
}

func TestNewBootstrap_PriorityOrder(t *testing.T) {
	configPath := writeConfig(t, `server:
  http:
    addr: :7777
`)

	t.Setenv("AIRESILIENCE_SERVER_HTTP_ADDR", ":8888")

	bc, err := NewBootstrap(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":8888", bc.Server.Http.Addr, "Environment variable should override config file")
}

func TestValidate_NilBootstrap(t *testing.T) {
	err := Validate(&Bootstrap{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration fields")
	assert.Contains(t, err.Error(), "upstreams (at least one)")
}
