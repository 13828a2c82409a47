package data

import (
	"context"

	"AIResilience/internal/model"
	pkglog "AIResilience/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// LogNotifier delivers alerts to the structured log.
// Severity picks the level: critical and error log as errors, warning as warn.
type LogNotifier struct {
	logger *pkglog.LogHelper
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger log.Logger) *LogNotifier {
	return &LogNotifier{
		logger: pkglog.NewLogHelper(logger),
	}
}

// NotifyAlert implements biz.AlertNotifier.
func (n *LogNotifier) NotifyAlert(_ context.Context, alert *model.Alert) error {
	kvs := []interface{}{
		"alert_type", alert.Type,
		"title", alert.Title,
		"severity", alert.Severity,
		"timestamp", alert.Timestamp,
	}
	if alert.Service != "" {
		kvs = append(kvs, "service", alert.Service)
	}
	if alert.Threshold != 0 {
		kvs = append(kvs, "value", alert.Value, "threshold", alert.Threshold)
	}

	n.logger.Alert(alert.Severity, alert.Message, kvs...)
	return nil
}
