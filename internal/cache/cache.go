/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based cache of simulation results.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/invernadero/internal/simulation"
	"github.com/friendsincode/invernadero/internal/telemetry"
)

// DefaultResultTTL bounds how long a computed schedule is served from cache.
const DefaultResultTTL = 1 * time.Hour

const keyResult = "invernadero:cache:result:" // + upload:greenhouse:plan

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ResultTTL     time.Duration

	// DisableOnError turns caching off after the first Redis failure.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		ResultTTL:      DefaultResultTTL,
		DisableOnError: true,
	}
}

// Entry is a cached run.
type Entry struct {
	RunID  string             `json:"run_id"`
	Result *simulation.Result `json:"result"`
}

// Cache provides Redis-backed caching with graceful fallback. A disabled
// cache misses every lookup and drops every write.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a cache. An unreachable Redis yields a disabled cache, not an
// error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = DefaultResultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Disabled returns a cache that never hits.
func Disabled(logger zerolog.Logger) *Cache {
	return &Cache{
		logger:   logger.With().Str("component", "cache").Logger(),
		config:   DefaultConfig(),
		disabled: true,
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to redis error")
	}
}

// ResultKey builds the cache key of a (upload, greenhouse, plan) run.
// Names are escaped so separators inside them cannot collide.
func ResultKey(uploadID, greenhouse, plan string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyResult, uploadID, escapeName(greenhouse), escapeName(plan))
}

// greenhousePattern matches every cached plan of one greenhouse of an upload.
func greenhousePattern(uploadID, greenhouse string) string {
	return fmt.Sprintf("%s%s:%s:*", keyResult, uploadID, escapeName(greenhouse))
}

// escapeName path-escapes s and also escapes the key separator. The output
// holds no glob metacharacters, so it is safe inside SCAN patterns.
func escapeName(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), ":", "%3A")
}

// GetResult looks up a cached run.
func (c *Cache) GetResult(ctx context.Context, uploadID, greenhouse, plan string) (*Entry, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	key := ResultKey(uploadID, greenhouse, plan)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.ResultCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		c.handleError(err, "get")
		telemetry.ResultCacheTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached result")
		telemetry.ResultCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	telemetry.ResultCacheTotal.WithLabelValues("hit").Inc()
	c.logger.Debug().Str("key", key).Msg("result cache hit")
	return &entry, true
}

// SetResult stores a run under its key.
func (c *Cache) SetResult(ctx context.Context, uploadID string, entry Entry) error {
	if !c.IsAvailable() || entry.Result == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	key := ResultKey(uploadID, entry.Result.GreenhouseName, entry.Result.PlanName)
	if err := c.client.Set(ctx, key, data, c.config.ResultTTL).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

// InvalidateGreenhouse drops every cached result of one greenhouse of an
// upload.
func (c *Cache) InvalidateGreenhouse(ctx context.Context, uploadID, greenhouse string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	pattern := greenhousePattern(uploadID, greenhouse)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
