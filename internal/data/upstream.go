package data

import (
	"fmt"
	"sort"

	"AIResilience/internal/conf"
	"AIResilience/pkg/upstream"

	"github.com/go-kratos/kratos/v2/log"
)

// NewUpstreamClient builds the provider HTTP client from the configured upstreams.
// Upstreams without an API key are kept and answer with upstream.ErrNotConfigured.
func NewUpstreamClient(c *conf.Bootstrap, logger log.Logger) (*upstream.Client, error) {
	helper := log.NewHelper(logger)

	names := make([]string, 0, len(c.Upstreams))
	for name := range c.Upstreams {
		names = append(names, name)
	}
	sort.Strings(names)

	cfgs := make([]upstream.Config, 0, len(names))
	for _, name := range names {
		u := c.Upstreams[name]
		cfg := upstream.Config{
			Name:     name,
			Endpoint: u.Endpoint,
			APIKey:   u.ApiKey,
			Model:    u.Model,
			Timeout:  u.Timeout,
			ProxyURL: u.ProxyUrl,
		}
		if !cfg.Configured() {
			helper.Warnw("msg", "upstream API key not configured", "service", name)
		}
		cfgs = append(cfgs, cfg)
	}

	client, err := upstream.NewClient(cfgs)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}
	return client, nil
}
