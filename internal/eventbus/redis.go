/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/invernadero/internal/events"
)

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string // events go to <channel>:<event type>

	// MaxFailures publish errors switch the bus to local-only delivery.
	MaxFailures int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:        "localhost:6379",
		Channel:     "invernadero:events",
		MaxFailures: 5,
	}
}

// RedisBus relays events over Redis pub/sub.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   *events.Bus
	nodeID  string
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	remote    map[events.EventType]*redis.PubSub
	refs      map[events.EventType]int
	failCount int
	maxFails  int
	fallback  bool
}

// NewRedisBus creates a Redis-backed event bus. An unreachable Redis yields
// a local-only bus.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisBus {
	logger = logger.With().Str("component", "eventbus").Str("backend", "redis").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	rb := &RedisBus{
		channel:  cfg.Channel,
		local:    events.NewBus(),
		nodeID:   nodeID,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		remote:   make(map[events.EventType]*redis.PubSub),
		refs:     make(map[events.EventType]int),
		maxFails: cfg.MaxFailures,
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, using in-memory event bus")
		_ = client.Close()
		rb.fallback = true
		return rb
	}

	rb.client = client
	logger.Info().Str("addr", cfg.Addr).Str("node_id", nodeID).Msg("redis event bus initialized")
	return rb
}

func (rb *RedisBus) channelFor(eventType events.EventType) string {
	return rb.channel + ":" + string(eventType)
}

func (rb *RedisBus) relaying() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return !rb.fallback
}

// Subscribe registers a local subscriber and, on first use of the event
// type, a Redis subscription feeding it.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := rb.local.Subscribe(eventType)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.fallback {
		return sub
	}
	rb.refs[eventType]++
	if _, ok := rb.remote[eventType]; !ok {
		ps := rb.client.Subscribe(rb.ctx, rb.channelFor(eventType))
		rb.remote[eventType] = ps
		rb.wg.Add(1)
		go rb.receive(eventType, ps)
	}
	return sub
}

func (rb *RedisBus) receive(eventType events.EventType, ps *redis.PubSub) {
	defer rb.wg.Done()
	ch := ps.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := unmarshalEnvelope([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Msg("failed to decode redis message")
				continue
			}
			if env.NodeID == rb.nodeID {
				continue
			}
			rb.local.Publish(eventType, env.Payload)
		}
	}
}

// Publish delivers locally and relays to Redis.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)
	if !rb.relaying() {
		return
	}

	data, err := marshalEnvelope(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, rb.channelFor(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to redis")
		rb.handleFailure()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}

func (rb *RedisBus) handleFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.failCount++
	if rb.maxFails > 0 && rb.failCount >= rb.maxFails && !rb.fallback {
		rb.logger.Warn().Int("fail_count", rb.failCount).Msg("redis failure threshold reached, relaying disabled")
		rb.fallback = true
	}
}

// Unsubscribe removes a local subscriber and closes the Redis subscription
// once nobody listens to the event type.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.refs[eventType] > 0 {
		rb.refs[eventType]--
	}
	if rb.refs[eventType] == 0 {
		if ps, ok := rb.remote[eventType]; ok {
			_ = ps.Close()
			delete(rb.remote, eventType)
		}
	}
}

// Close stops receivers and closes the Redis client.
func (rb *RedisBus) Close() error {
	rb.cancel()

	rb.mu.Lock()
	for eventType, ps := range rb.remote {
		_ = ps.Close()
		delete(rb.remote, eventType)
	}
	rb.mu.Unlock()
	rb.wg.Wait()

	if rb.client != nil {
		return rb.client.Close()
	}
	return nil
}
