// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// DefaultUpstreams lists the providers configured out of the box.
// Endpoints follow each provider's public text-generation API.
var DefaultUpstreams = map[string]Upstream{
	"gemini": {
		Endpoint: "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent",
		Model:    "gemini-1.5-flash",
	},
	"cohere": {
		Endpoint: "https://api.cohere.ai/v1/generate",
		Model:    "command",
	},
	"huggingface": {
		Endpoint: "https://api-inference.huggingface.co/models/microsoft/DialoGPT-medium",
		Model:    "DialoGPT-medium",
	},
	"openai": {
		Endpoint: "https://api.openai.com/v1/chat/completions",
		Model:    "gpt-3.5-turbo",
	},
}

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with AIRESILIENCE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Provider API keys may also be given by their conventional names
// (GEMINI_API_KEY, COHERE_API_KEY, HUGGINGFACE_API_KEY, OPENAI_API_KEY).
// A provider without a key is still served, through the fallback simulator.
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AIRESILIENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "AIRESILIENCE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "AIRESILIENCE_DATA_REDIS_ADDR")
	_ = v.BindEnv("admin.token", "ADMIN_TOKEN", "AIRESILIENCE_ADMIN_TOKEN")
	_ = v.BindEnv("synthetic.enabled", "TEST_MODE", "AIRESILIENCE_SYNTHETIC_ENABLED")
	for name := range DefaultUpstreams {
		envName := strings.ToUpper(name) + "_API_KEY"
		_ = v.BindEnv("upstreams."+name+".api_key", envName, "AIRESILIENCE_UPSTREAMS_"+strings.ToUpper(name)+"_API_KEY")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			Grpc: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				Db:           v.GetInt("data.redis.db"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
		Breaker: &Breaker{
			FailureThreshold: v.GetInt("breaker.failure_threshold"),
			SuccessThreshold: v.GetInt("breaker.success_threshold"),
			OpenTimeout:      v.GetDuration("breaker.open_timeout"),
			HalfOpenTimeout:  v.GetDuration("breaker.half_open_timeout"),
		},
		Chaos: &Chaos{
			MaxLatency:    v.GetDuration("chaos.max_latency"),
			TimeoutFactor: v.GetInt("chaos.timeout_factor"),
			MaxTimeout:    v.GetDuration("chaos.max_timeout"),
		},
		Fallback: &Fallback{
			MinDelay:    v.GetDuration("fallback.min_delay"),
			MaxDelay:    v.GetDuration("fallback.max_delay"),
			FailureRate: v.GetFloat64("fallback.failure_rate"),
		},
		Synthetic: &Synthetic{
			Enabled:             v.GetBool("synthetic.enabled"),
			FailRate:            v.GetFloat64("synthetic.fail_rate"),
			DelayRate:           v.GetFloat64("synthetic.delay_rate"),
			MinDelay:            v.GetDuration("synthetic.min_delay"),
			MaxDelay:            v.GetDuration("synthetic.max_delay"),
			CorruptRate:         v.GetFloat64("synthetic.corrupt_rate"),
			NetworkErrorRate:    v.GetFloat64("synthetic.network_error_rate"),
			AuthErrorRate:       v.GetFloat64("synthetic.auth_error_rate"),
			RateLimitErrorRate:  v.GetFloat64("synthetic.rate_limit_error_rate"),
			PartialResponseRate: v.GetFloat64("synthetic.partial_response_rate"),
			SlowResponseRate:    v.GetFloat64("synthetic.slow_response_rate"),
		},
		Alert: &Alert{
			Enabled:             v.GetBool("alert.enabled"),
			Interval:            v.GetDuration("alert.interval"),
			Cooldown:            v.GetDuration("alert.cooldown"),
			FailureRate:         v.GetFloat64("alert.failure_rate"),
			FallbackRate:        v.GetFloat64("alert.fallback_rate"),
			AvgLatency:          v.GetDuration("alert.avg_latency"),
			CircuitOpenDuration: v.GetDuration("alert.circuit_open_duration"),
			SnapshotInterval:    v.GetDuration("alert.snapshot_interval"),
		},
		Admin: &Admin{
			Token: v.GetString("admin.token"),
		},
		Upstreams: loadUpstreams(v),
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// loadUpstreams merges the built-in providers with any declared under "upstreams".
func loadUpstreams(v *viper.Viper) map[string]*Upstream {
	names := make(map[string]struct{}, len(DefaultUpstreams))
	for name := range DefaultUpstreams {
		names[name] = struct{}{}
	}
	for name := range v.GetStringMap("upstreams") {
		names[strings.ToLower(name)] = struct{}{}
	}

	upstreams := make(map[string]*Upstream, len(names))
	for name := range names {
		base := DefaultUpstreams[name]
		prefix := "upstreams." + name + "."

		u := &Upstream{
			Name:     name,
			Endpoint: base.Endpoint,
			Model:    base.Model,
			Timeout:  v.GetDuration("upstream_timeout"),
		}
		if s := v.GetString(prefix + "endpoint"); s != "" {
			u.Endpoint = s
		}
		if s := v.GetString(prefix + "model"); s != "" {
			u.Model = s
		}
		if d := v.GetDuration(prefix + "timeout"); d > 0 {
			u.Timeout = d
		}
		u.ApiKey = v.GetString(prefix + "api_key")
		u.ProxyUrl = v.GetString(prefix + "proxy_url")

		upstreams[name] = u
	}
	return upstreams
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":3000")
	v.SetDefault("server.http.timeout", 30*time.Second)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 5*time.Second)

	// Data defaults (both optional: empty source / addr disables the backend)
	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.open_timeout", 60*time.Second)
	v.SetDefault("breaker.half_open_timeout", 30*time.Second)

	// Chaos bounds
	v.SetDefault("chaos.max_latency", 10*time.Second)
	v.SetDefault("chaos.timeout_factor", 30)
	v.SetDefault("chaos.max_timeout", 3*time.Second)

	// Fallback simulation: 500-2500ms, 10% failure
	v.SetDefault("fallback.min_delay", 500*time.Millisecond)
	v.SetDefault("fallback.max_delay", 2500*time.Millisecond)
	v.SetDefault("fallback.failure_rate", 0.1)

	v.SetDefault("synthetic.min_delay", 100*time.Millisecond)
	v.SetDefault("synthetic.max_delay", 1*time.Second)

	// Alert thresholds
	v.SetDefault("alert.enabled", true)
	v.SetDefault("alert.interval", 30*time.Second)
	v.SetDefault("alert.cooldown", 5*time.Minute)
	v.SetDefault("alert.failure_rate", 0.5)
	v.SetDefault("alert.fallback_rate", 0.8)
	v.SetDefault("alert.avg_latency", 5*time.Second)
	v.SetDefault("alert.circuit_open_duration", 5*time.Minute)
	v.SetDefault("alert.snapshot_interval", time.Minute)

	v.SetDefault("upstream_timeout", 10*time.Second)
}

// Validate checks that all configuration values are usable.
// It returns an error listing every invalid field.
func Validate(bc *Bootstrap) error {
	var invalid []string

	if bc.Breaker == nil {
		invalid = append(invalid, "breaker")
	} else {
		if bc.Breaker.FailureThreshold < 1 {
			invalid = append(invalid, "breaker.failure_threshold (>= 1)")
		}
		if bc.Breaker.SuccessThreshold < 1 {
			invalid = append(invalid, "breaker.success_threshold (>= 1)")
		}
		if bc.Breaker.OpenTimeout <= 0 {
			invalid = append(invalid, "breaker.open_timeout (> 0)")
		}
	}

	if bc.Chaos != nil {
		if bc.Chaos.MaxLatency < 0 || bc.Chaos.MaxLatency > 10*time.Second {
			invalid = append(invalid, "chaos.max_latency ([0,10s])")
		}
		if bc.Chaos.TimeoutFactor < 0 || bc.Chaos.TimeoutFactor > 30 {
			invalid = append(invalid, "chaos.timeout_factor ([0,30])")
		}
		if bc.Chaos.MaxTimeout < 0 || bc.Chaos.MaxTimeout > 3*time.Second {
			invalid = append(invalid, "chaos.max_timeout ([0,3s])")
		}
	}

	if bc.Fallback != nil {
		if bc.Fallback.FailureRate < 0 || bc.Fallback.FailureRate > 1 {
			invalid = append(invalid, "fallback.failure_rate ([0,1])")
		}
		if bc.Fallback.MaxDelay < bc.Fallback.MinDelay {
			invalid = append(invalid, "fallback.max_delay (>= fallback.min_delay)")
		}
	}

	if len(bc.Upstreams) == 0 {
		invalid = append(invalid, "upstreams (at least one)")
	}
	names := make([]string, 0, len(bc.Upstreams))
	for name := range bc.Upstreams {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		u := bc.Upstreams[name]
		if u.Timeout <= 0 || u.Timeout > 10*time.Second {
			invalid = append(invalid, fmt.Sprintf("upstreams.%s.timeout ((0,10s])", name))
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration fields: %s", strings.Join(invalid, ", "))
	}

	return nil
}
