package model

import "time"

// RequestLog is one finished /ai request.
type RequestLog struct {
	Service             string
	Prompt              string
	Success             bool
	UsedRealCall        bool
	LatencyMs           int64
	ResponseSize        int
	ErrorType           string
	ErrorMessage        string
	CircuitBreakerState string
	ChaosActive         bool
	Timestamp           time.Time
}

// CircuitBreakerEvent is one breaker state transition
type CircuitBreakerEvent struct {
	Service   string
	FromState string
	ToState   string
	Reason    string
	Timestamp time.Time
}

// ChaosExperiment tracks an operator-scheduled fault from start to end.
// EndTime is nil while the experiment is running.
type ChaosExperiment struct {
	ExperimentID   string
	Service        string
	ChaosType      string
	Intensity      int
	DurationSec    int
	StartTime      time.Time
	EndTime        *time.Time
	TotalRequests  int64
	FailedRequests int64
	Notes          string
}

// MetricsSnapshot is a periodic copy of the global counters.
type MetricsSnapshot struct {
	Timestamp          time.Time
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	FallbackResponses  int64
	SuccessRate        float64
	AvgLatency         float64
	UptimeSec          int64
	MetricsJSON        string
}

// ServiceStats aggregates persisted request logs of one service.
type ServiceStats struct {
	Service            string  `json:"service"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AvgLatency         float64 `json:"avg_latency"`
	MinLatency         int64   `json:"min_latency"`
	MaxLatency         int64   `json:"max_latency"`
	AvgResponseSize    float64 `json:"avg_response_size"`
}
