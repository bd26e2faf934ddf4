/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/invernadero/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // events go to <prefix>.<event type>

	ConnectRetries int
	MaxReconnects  int
	ReconnectWait  time.Duration
	Timeout        time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		SubjectPrefix:  "invernadero.events",
		ConnectRetries: 5,
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		Timeout:        5 * time.Second,
	}
}

// NATSBus relays events over NATS core subjects.
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	local  *events.Bus
	nodeID string
	logger zerolog.Logger

	mu     sync.Mutex
	remote map[events.EventType]*nats.Subscription
	refs   map[events.EventType]int
}

// NewNATSBus connects to NATS, retrying with exponential backoff. When the
// broker stays unreachable the bus runs local-only and never errors.
func NewNATSBus(ctx context.Context, cfg NATSConfig, nodeID string, logger zerolog.Logger) *NATSBus {
	logger = logger.With().Str("component", "eventbus").Str("backend", "nats").Logger()
	nb := &NATSBus{
		prefix: cfg.SubjectPrefix,
		local:  events.NewBus(),
		nodeID: nodeID,
		logger: logger,
		remote: make(map[events.EventType]*nats.Subscription),
		refs:   make(map[events.EventType]int),
	}

	opts := []nats.Option{
		nats.Name("invernadero-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		conn, err := nats.Connect(cfg.URL, opts...)
		if err != nil {
			logger.Debug().Err(err).Str("url", cfg.URL).Msg("nats connect failed")
			return err
		}
		nb.conn = conn
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.URL).Msg("nats unavailable, using in-memory event bus")
		return nb
	}

	logger.Info().Str("url", cfg.URL).Str("node_id", nodeID).Msg("nats event bus initialized")
	return nb
}

// Connected reports whether events are relayed to other nodes.
func (nb *NATSBus) Connected() bool {
	return nb.conn != nil && nb.conn.IsConnected()
}

func (nb *NATSBus) subject(eventType events.EventType) string {
	return fmt.Sprintf("%s.%s", nb.prefix, eventType)
}

// Subscribe registers a local subscriber and, on first use of the event
// type, a NATS subscription feeding it.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)
	if nb.conn == nil {
		return sub
	}

	nb.mu.Lock()
	defer nb.mu.Unlock()
	nb.refs[eventType]++
	if _, ok := nb.remote[eventType]; ok {
		return sub
	}

	s, err := nb.conn.Subscribe(nb.subject(eventType), func(msg *nats.Msg) {
		nb.deliver(eventType, msg.Data)
	})
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("nats subscribe failed")
		return sub
	}
	nb.remote[eventType] = s
	return sub
}

// deliver forwards a remote message to local subscribers, skipping echoes
// of this node's own publications.
func (nb *NATSBus) deliver(eventType events.EventType, data []byte) {
	env, err := unmarshalEnvelope(data)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to decode nats message")
		return
	}
	if env.NodeID == nb.nodeID {
		return
	}
	nb.local.Publish(eventType, env.Payload)
	nb.logger.Debug().
		Str("event_type", string(eventType)).
		Str("source_node", env.NodeID).
		Msg("delivered remote event")
}

// Publish delivers locally and relays to NATS.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)
	if nb.conn == nil {
		return
	}

	data, err := marshalEnvelope(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to encode event")
		return
	}
	if err := nb.conn.Publish(nb.subject(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to nats")
	}
}

// Unsubscribe removes a local subscriber and drops the NATS subscription
// once nobody listens to the event type.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
	if nb.conn == nil {
		return
	}

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if nb.refs[eventType] > 0 {
		nb.refs[eventType]--
	}
	if nb.refs[eventType] == 0 {
		if s, ok := nb.remote[eventType]; ok {
			_ = s.Unsubscribe()
			delete(nb.remote, eventType)
		}
	}
}

// Close drains pending messages and closes the connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	nb.logger.Info().Msg("nats event bus closed")
	return nil
}
