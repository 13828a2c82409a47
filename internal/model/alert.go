package model

import "time"

// Alert type constants
const (
	AlertHighFailureRate   = "HIGH_FAILURE_RATE"
	AlertHighFallbackRate  = "HIGH_FALLBACK_RATE"
	AlertHighLatency       = "HIGH_LATENCY"
	AlertCircuitStuckOpen  = "CIRCUIT_STUCK_OPEN"
	AlertMonitoringStarted = "MONITORING_STARTED"
)

// Alert severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Alert is a threshold breach detected by the alert monitor.
type Alert struct {
	Type      string
	Title     string
	Message   string
	Severity  string
	Service   string // empty for process-wide alerts
	Value     float64
	Threshold float64
	Timestamp time.Time
}
