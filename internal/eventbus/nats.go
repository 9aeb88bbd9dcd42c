/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors the in-process event bus onto NATS so external
// consumers (dashboards, fleet aggregation) can follow a unit without
// touching the control loop.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_obs/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "muninn.events",
		MaxReconnects: -1, // unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Mirror forwards every event published on the local bus to NATS subjects
// of the form "<prefix>.<event_type>". Publishing is fire-and-forget: a
// broken broker connection never stalls the control loop.
type Mirror struct {
	conn   *nats.Conn
	cfg    NATSConfig
	logger zerolog.Logger
	nodeID string
	done   chan struct{}
	subs   []events.Subscriber
}

// busMessage is the wire form of a mirrored event.
type busMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // for deduplication
}

// NewMirror connects to NATS. The connection reconnects forever in the
// background; events published while disconnected are dropped.
func NewMirror(cfg NATSConfig, logger zerolog.Logger) (*Mirror, error) {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "muninn.events"
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info().Str("url", cfg.URL).Msg("connected to nats")
	return &Mirror{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With().Str("component", "eventbus").Logger(),
		nodeID: nodeID(),
		done:   make(chan struct{}),
	}, nil
}

// Attach subscribes to every event type on the local bus and forwards in
// the background until Close.
func (m *Mirror) Attach(bus *events.Bus) {
	for _, eventType := range events.AllTypes() {
		sub := bus.Subscribe(eventType)
		m.subs = append(m.subs, sub)
		go m.forward(eventType, sub)
	}
}

func (m *Mirror) forward(eventType events.EventType, sub events.Subscriber) {
	for {
		select {
		case <-m.done:
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			if err := m.Publish(eventType, payload); err != nil {
				m.logger.Warn().Err(err).Str("event", string(eventType)).
					Msg("failed to mirror event")
			}
		}
	}
}

// Publish sends one event to its NATS subject.
func (m *Mirror) Publish(eventType events.EventType, payload events.Payload) error {
	data, err := json.Marshal(busMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    m.nodeID,
		MessageID: uuid.New().String(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", m.cfg.SubjectPrefix, eventType)
	return m.conn.Publish(subject, data)
}

// Close stops forwarding and drains the connection.
func (m *Mirror) Close() error {
	close(m.done)
	if err := m.conn.Drain(); err != nil {
		m.conn.Close()
		return err
	}
	return nil
}

func nodeID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}
