package service

import (
	"time"

	"AIResilience/internal/biz"
	"AIResilience/pkg/faultinject"
	"AIResilience/pkg/upstream"
)

// GenerateRequest is the body of POST /ai and POST /ai/{service}.
type GenerateRequest struct {
	Service string `json:"service"`
	Prompt  string `json:"prompt"`
}

// GenerateReply is a served AI request.
type GenerateReply struct {
	Success   bool      `json:"success"`
	Service   string    `json:"service"`
	Response  string    `json:"response"`
	Latency   string    `json:"latency"`
	IsRealAPI bool      `json:"isRealAPI"`
	Corrupted bool      `json:"corrupted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EmptyRequest is used by endpoints without input.
type EmptyRequest struct{}

// ServiceMetrics are the counters of one upstream.
type ServiceMetrics struct {
	Requests      int64     `json:"requests"`
	Successes     int64     `json:"successes"`
	Failures      int64     `json:"failures"`
	Fallbacks     int64     `json:"fallbacks"`
	InFlight      int64     `json:"inFlight"`
	SuccessRate   float64   `json:"successRate"`
	AvgLatency    int64     `json:"avgLatency"`
	Status        string    `json:"status"`
	LastCheckTime time.Time `json:"lastCheckTime,omitempty"`
}

// MetricsReply is the body of GET /metrics.
type MetricsReply struct {
	TotalRequests       int64                     `json:"totalRequests"`
	TotalRequestsSource string                    `json:"totalRequestsSource"`
	SuccessfulRequests  int64                     `json:"successfulRequests"`
	FailedRequests      int64                     `json:"failedRequests"`
	FallbackResponses   int64                     `json:"fallbackResponses"`
	SuccessRate         float64                   `json:"successRate"`
	AvgLatency          int64                     `json:"avgLatency"`
	StartTime           time.Time                 `json:"startTime"`
	Uptime              int64                     `json:"uptime"`
	Services            map[string]ServiceMetrics `json:"services"`
	CircuitBreakers     map[string]string         `json:"circuitBreakers"`
}

// TransitionView is one breaker transition.
type TransitionView struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// BreakerMetricsView are the lifetime counters of a breaker.
type BreakerMetricsView struct {
	TotalCalls          int64            `json:"totalCalls"`
	SuccessfulCalls     int64            `json:"successfulCalls"`
	FailedCalls         int64            `json:"failedCalls"`
	RejectedCalls       int64            `json:"rejectedCalls"`
	TransitionCounts    map[string]int64 `json:"stateTransitions"`
	TimeSpentPerStateMs map[string]int64 `json:"timeSpentInStates"`
}

// BreakerStatus is the status of one circuit breaker.
type BreakerStatus struct {
	State                string             `json:"state"`
	FailureCount         int                `json:"failureCount"`
	ConsecutiveSuccesses int                `json:"consecutiveSuccesses"`
	FailureThreshold     int                `json:"failureThreshold"`
	SuccessThreshold     int                `json:"successThreshold"`
	OpenTimeoutMs        int64              `json:"openTimeout"`
	ActiveTrials         int                `json:"activeTrials"`
	LastFailureTime      *time.Time         `json:"lastFailureTime,omitempty"`
	LastStateChangeTime  time.Time          `json:"lastStateChange"`
	Metrics              BreakerMetricsView `json:"metrics"`
	RecentTransitions    []TransitionView   `json:"recentTransitions"`
}

// BreakerStatusReply is the body of GET /circuit-breaker/status.
type BreakerStatusReply struct {
	Breakers  map[string]BreakerStatus `json:"circuitBreakers"`
	Timestamp time.Time                `json:"timestamp"`
}

// ResetBreakerRequest is the body of POST /circuit-breaker/reset. An empty service resets all.
type ResetBreakerRequest struct {
	Service string `json:"service"`
}

// AckReply acknowledges an operator action.
type AckReply struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Services []string `json:"services"`
}

// InjectChaosRequest is the body of POST /chaos/inject. Duration is in seconds.
type InjectChaosRequest struct {
	Service   string `json:"service"`
	Type      string `json:"type"`
	Intensity int    `json:"intensity"`
	Duration  int    `json:"duration"`
}

// ChaosExperimentView is an experiment echoed to the operator.
type ChaosExperimentView struct {
	ID               string    `json:"id,omitempty"`
	Service          string    `json:"service"`
	Type             string    `json:"type"`
	Intensity        int       `json:"intensity"`
	Duration         int64     `json:"duration"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	RemainingSeconds *int64    `json:"remainingSeconds,omitempty"`
	Requests         int64     `json:"requests"`
	Failures         int64     `json:"failures"`
}

// InjectChaosReply is the body returned by POST /chaos/inject.
type InjectChaosReply struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	Experiment ChaosExperimentView `json:"experiment"`
}

// StopChaosRequest is the body of POST /chaos/stop. "all" or empty stops every experiment.
type StopChaosRequest struct {
	Service string `json:"service"`
}

// ChaosStatusReply is the body of GET /chaos/status.
type ChaosStatusReply struct {
	Active      bool                  `json:"active"`
	Count       int                   `json:"count"`
	Experiments []ChaosExperimentView `json:"experiments"`
}

// UpstreamHealth is the health of one upstream.
type UpstreamHealth struct {
	upstream.Info
	CircuitState string `json:"circuitState"`
	Status       string `json:"status"`
	ChaosActive  bool   `json:"chaosActive"`
}

// HealthReply is the body of GET /ai/health.
type HealthReply struct {
	Status    string           `json:"status"`
	Services  []UpstreamHealth `json:"services"`
	Timestamp time.Time        `json:"timestamp"`
}

// StatsRequest carries the query of GET /stats.
type StatsRequest struct {
	Service string `json:"service"`
	Hours   int    `json:"hours"`
}

// FailureConfigView is the runtime fault injector configuration, delays in milliseconds.
type FailureConfigView struct {
	faultinject.Config
	MinDelayMs int64 `json:"minDelay"`
	MaxDelayMs int64 `json:"maxDelay"`
}

// ConfigReply is the body of GET /config.
type ConfigReply struct {
	TestMode      bool              `json:"testMode"`
	FailureConfig FailureConfigView `json:"failureConfig"`
}

// FailureConfigRequest is the body of POST /admin/failure-config.
// Absent fields keep their current value; rates are clamped to [0,1].
type FailureConfigRequest struct {
	FailRate            *float64 `json:"failRate"`
	DelayRate           *float64 `json:"delayRate"`
	MinDelayMs          *int64   `json:"minDelay"`
	MaxDelayMs          *int64   `json:"maxDelay"`
	CorruptRate         *float64 `json:"corruptRate"`
	NetworkErrorRate    *float64 `json:"networkErrorRate"`
	AuthErrorRate       *float64 `json:"authErrorRate"`
	RateLimitErrorRate  *float64 `json:"rateLimitErrorRate"`
	PartialResponseRate *float64 `json:"partialResponseRate"`
	SlowResponseRate    *float64 `json:"slowResponseRate"`
}

// FailureConfigReply is returned after updating the fault injector.
type FailureConfigReply struct {
	OK            bool              `json:"ok"`
	FailureConfig FailureConfigView `json:"failureConfig"`
}

func toChaosView(exp *biz.ChaosExperiment) ChaosExperimentView {
	requests, failures := exp.Counts()
	return ChaosExperimentView{
		ID:        exp.ID,
		Service:   exp.Upstream,
		Type:      string(exp.Type),
		Intensity: exp.Intensity,
		Duration:  int64(exp.Duration().Seconds()),
		StartTime: exp.StartTime,
		EndTime:   exp.EndTime,
		Requests:  requests,
		Failures:  failures,
	}
}

func toFailureConfigView(cfg faultinject.Config) FailureConfigView {
	return FailureConfigView{
		Config:     cfg,
		MinDelayMs: cfg.MinDelay.Milliseconds(),
		MaxDelayMs: cfg.MaxDelay.Milliseconds(),
	}
}
