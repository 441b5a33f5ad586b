// Package cache keeps recently resolved exchange rates in Redis so that
// replicas share quotes without hitting the database on every conversion.
package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pointledger:rate:"

// kv is the part of *redis.Client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Config defines connection parameters for Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}

// RateCache stores resolved rates as JSON under a short TTL. Every Redis
// failure is logged and reported as a miss.
type RateCache struct {
	client kv
	ttl    time.Duration
	logger logging.Logger
}

// New returns a RateCache backed by a go-redis client.
func New(cfg Config, ttl time.Duration, logger logging.Logger) *RateCache {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return newRateCache(redis.NewClient(opts), ttl, logger)
}

func newRateCache(client kv, ttl time.Duration, logger logging.Logger) *RateCache {
	return &RateCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "redis"),
	}
}

func key(from, to models.Program) string {
	return keyPrefix + string(from) + ":" + string(to)
}

// Ping verifies Redis connectivity.
func (c *RateCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RateCache) GetRate(ctx context.Context, from, to models.Program) (*models.ExchangeRate, bool) {
	res, err := c.client.Get(ctx, key(from, to)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn(ctx, "rate cache read failed", "from", from, "to", to, "error", err)
		}
		return nil, false
	}

	var rate models.ExchangeRate
	if err := json.Unmarshal([]byte(res), &rate); err != nil {
		c.logger.Warn(ctx, "rate cache entry is corrupt", "from", from, "to", to, "error", err)
		return nil, false
	}
	if rate.From != from || rate.To != to || !rate.Rate.IsPositive() {
		return nil, false
	}
	return &rate, true
}

func (c *RateCache) SetRate(ctx context.Context, rate *models.ExchangeRate) {
	data, err := json.Marshal(rate)
	if err != nil {
		c.logger.Warn(ctx, "rate cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, key(rate.From, rate.To), data, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "rate cache write failed", "from", rate.From, "to", rate.To, "error", err)
	}
}

// Close releases Redis resources.
func (c *RateCache) Close() error {
	return c.client.Close()
}
