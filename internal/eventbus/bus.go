/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus fans events out across instances. Every implementation
// delivers to local subscribers directly and relays to other nodes through
// a broker, dropping messages that originated on the same node.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/invernadero/internal/events"
)

// Bus is the publish/subscribe surface shared by every backend.
type Bus interface {
	Publish(eventType events.EventType, payload events.Payload)
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

var (
	_ Bus = (*Local)(nil)
	_ Bus = (*NATSBus)(nil)
	_ Bus = (*RedisBus)(nil)
)

// Local is a single-node Bus.
type Local struct {
	*events.Bus
}

// NewLocal wraps a fresh in-process bus.
func NewLocal() *Local {
	return &Local{Bus: events.NewBus()}
}

// Close is a no-op.
func (l *Local) Close() error { return nil }

// envelope is the wire format relayed between nodes.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return &env, nil
}

// NodeID identifies this process on the broker.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}
