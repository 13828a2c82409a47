// Package data provides data access layer implementations.
// It handles the Redis counter store, the stats cache and event persistence.
package data

import (
	"AIResilience/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewMySQLClient,
)

// Data contains all data layer dependencies. Either backend may be nil.
type Data struct {
	// rdb backs the durable request counter and the stats cache
	rdb *redis.Client
	// db backs request logs, breaker events, chaos experiments and snapshots
	db *gorm.DB
}

// NewData creates a new Data instance with all data layer dependencies.
// Missing backends do not prevent application startup (graceful degradation).
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, durable counters and stats cache disabled")
	}
	if db == nil {
		helper.Warn("database is nil, events are not persisted")
	}

	d := &Data{
		rdb: rdb,
		db:  db,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// Redis and MySQL cleanup is handled by their constructors' cleanup functions
	}

	return d, cleanup, nil
}

// GetRedisClient returns the Redis client, nil when Redis is disabled.
func (d *Data) GetRedisClient() *redis.Client {
	return d.rdb
}

// GetDB returns the database, nil when persistence is disabled.
func (d *Data) GetDB() *gorm.DB {
	return d.db
}
