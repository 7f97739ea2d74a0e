/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges in-process domain events onto NATS so external
// collaborators (notification delivery, reporting/export) can consume them
// without linking against the engine.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/paddock/internal/events"
)

// SubjectPrefix is the NATS subject namespace for mirrored events.
const SubjectPrefix = "paddock.events."

// message is the wire envelope published to NATS.
type message struct {
	Event     events.EventType `json:"event"`
	NodeID    string           `json:"node_id"`
	EmittedAt time.Time        `json:"emitted_at"`
	Payload   events.Payload   `json:"payload"`
}

// Mirror forwards selected in-process bus events to NATS subjects.
type Mirror struct {
	conn   *nats.Conn
	bus    *events.Bus
	logger zerolog.Logger
	nodeID string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMirror connects to NATS. The connection reconnects indefinitely;
// events raised while disconnected are buffered by the client.
func NewMirror(natsURL string, bus *events.Bus, logger zerolog.Logger) (*Mirror, error) {
	conn, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Name("paddock-eventbus"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", natsURL, err)
	}

	return &Mirror{
		conn:   conn,
		bus:    bus,
		logger: logger.With().Str("component", "eventbus").Logger(),
		nodeID: uuid.NewString(),
	}, nil
}

// Start subscribes to the given event types and mirrors them until the
// context is cancelled.
func (m *Mirror) Start(ctx context.Context, types ...events.EventType) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	for _, eventType := range types {
		sub := m.bus.Subscribe(eventType)
		m.wg.Add(1)
		go m.forward(ctx, eventType, sub)
	}

	m.logger.Info().Int("event_types", len(types)).Msg("event mirror started")
}

func (m *Mirror) forward(ctx context.Context, eventType events.EventType, sub events.Subscriber) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			m.publish(eventType, payload)
		}
	}
}

func (m *Mirror) publish(eventType events.EventType, payload events.Payload) {
	data, err := json.Marshal(message{
		Event:     eventType,
		NodeID:    m.nodeID,
		EmittedAt: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("event", string(eventType)).Msg("marshal event failed")
		return
	}

	if err := m.conn.Publish(SubjectPrefix+string(eventType), data); err != nil {
		m.logger.Warn().Err(err).Str("event", string(eventType)).Msg("NATS publish failed")
	}
}

// Close stops forwarding and drains the connection.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()

	if err := m.conn.Drain(); err != nil {
		return err
	}
	return nil
}
