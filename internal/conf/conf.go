package conf

import (
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration of the service.
// Field layout mirrors configs/config.yaml.
type Bootstrap struct {
	Server    *Server
	Data      *Data
	Log       *Log
	Breaker   *Breaker
	Chaos     *Chaos
	Fallback  *Fallback
	Synthetic *Synthetic
	Alert     *Alert
	Admin     *Admin
	Upstreams map[string]*Upstream
}

// Server holds transport settings.
type Server struct {
	Http *Server_HTTP
	Grpc *Server_GRPC
}

// Server_HTTP is the HTTP listener configuration.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Server_GRPC is the gRPC listener configuration (health service only).
type Server_GRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds storage settings. Both backends are optional.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the event store.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the durable counter store and the stats cache.
type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	Db           int
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// Breaker holds the thresholds shared by every upstream circuit breaker.
type Breaker struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	HalfOpenTimeout  time.Duration
}

// Chaos bounds the delays an operator can inject.
type Chaos struct {
	MaxLatency    time.Duration
	TimeoutFactor int
	MaxTimeout    time.Duration
}

// Fallback configures the simulated response used when a real upstream fails.
type Fallback struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	FailureRate float64
}

// Synthetic enables the unreliable mode that replaces real upstreams entirely.
// Rates are probabilities in [0,1].
type Synthetic struct {
	Enabled             bool
	FailRate            float64
	DelayRate           float64
	MinDelay            time.Duration
	MaxDelay            time.Duration
	CorruptRate         float64
	NetworkErrorRate    float64
	AuthErrorRate       float64
	RateLimitErrorRate  float64
	PartialResponseRate float64
	SlowResponseRate    float64
}

// Alert configures the periodic threshold monitor.
type Alert struct {
	Enabled             bool
	Interval            time.Duration
	Cooldown            time.Duration
	FailureRate         float64
	FallbackRate        float64
	AvgLatency          time.Duration
	CircuitOpenDuration time.Duration
	SnapshotInterval    time.Duration
}

// Admin guards operator endpoints when Token is non-empty.
type Admin struct {
	Token string
}

// Upstream describes one AI provider.
type Upstream struct {
	Name     string
	Endpoint string
	ApiKey   string
	Model    string
	Timeout  time.Duration
	ProxyUrl string
}
