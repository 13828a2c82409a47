package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"AIResilience/internal/conf"
	"AIResilience/internal/model"
	"AIResilience/pkg/upstream"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUpstreamClient(t *testing.T) {
	c := &conf.Bootstrap{Upstreams: map[string]*conf.Upstream{
		"gemini": {Endpoint: "https://example.invalid/gemini", ApiKey: "your-key-here", Timeout: 10 * time.Second},
		"cohere": {Endpoint: "https://example.invalid/cohere", ApiKey: "secret", Model: "command", Timeout: 5 * time.Second},
	}}

	client, err := NewUpstreamClient(c, log.DefaultLogger)
	require.NoError(t, err)

	infos := client.Upstreams()
	require.Len(t, infos, 2)
	assert.Equal(t, "cohere", infos[0].Name)
	assert.True(t, infos[0].Configured)
	assert.Equal(t, "command", infos[0].Model)
	assert.Equal(t, "gemini", infos[1].Name)
	assert.False(t, infos[1].Configured)

	_, err = client.Invoke(context.Background(), "gemini", "hi")
	assert.True(t, errors.Is(err, upstream.ErrNotConfigured))
}

func TestNewUpstreamClient_InvalidProxy(t *testing.T) {
	c := &conf.Bootstrap{Upstreams: map[string]*conf.Upstream{
		"gemini": {ApiKey: "k", ProxyUrl: "ftp://proxy:21"},
	}}

	_, err := NewUpstreamClient(c, log.DefaultLogger)
	assert.ErrorContains(t, err, "failed to create upstream client")
}

func TestLogNotifier_NotifyAlert(t *testing.T) {
	n := NewLogNotifier(log.DefaultLogger)

	for _, severity := range []string{model.SeverityInfo, model.SeverityWarning, model.SeverityError, model.SeverityCritical} {
		err := n.NotifyAlert(context.Background(), &model.Alert{
			Type:      model.AlertHighFailureRate,
			Title:     "High Failure Rate Detected",
			Message:   "Failure rate is 75.0% (3/4 requests)",
			Severity:  severity,
			Service:   "gemini",
			Value:     0.75,
			Threshold: 0.5,
			Timestamp: time.Now(),
		})
		assert.NoError(t, err)
	}
}
