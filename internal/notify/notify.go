// Package notify announces persisted artifacts to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/zsiec/rovlink/internal/persist"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	eventBuffer    = 64
)

// Nop discards notifications.
type Nop struct{}

// Persisted implements persist.Notifier.
func (Nop) Persisted(persist.Artifact) {}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	// Broker is host:port or a full URL such as tcp://host:1883.
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Stats reports publisher health.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
	Dropped   uint64            `json:"dropped"`
}

// event is the JSON body published per artifact.
type event struct {
	ID       string           `json:"id"`
	Category persist.Category `json:"category"`
	Path     string           `json:"path"`
	Bytes    int              `json:"bytes"`
	Seq      uint64           `json:"seq"`
	SavedAt  time.Time        `json:"saved_at"`
}

// MQTT publishes one JSON message per artifact to
// <prefix>/artifacts/<category>. Persisted never blocks; events are queued
// and published by Run.
type MQTT struct {
	cfg    MQTTConfig
	log    *slog.Logger
	client mqtt.Client
	events chan persist.Artifact

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	dropped   uint64
	connected bool
}

// NewMQTT returns an unconnected publisher.
func NewMQTT(cfg MQTTConfig, log *slog.Logger) *MQTT {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "rovlink-" + uuid.NewString()[:8]
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "rovlink"
	}
	return &MQTT{
		cfg:       cfg,
		log:       log.With("component", "mqtt"),
		events:    make(chan persist.Artifact, eventBuffer),
		published: make(map[string]uint64),
	}
}

// Connect establishes the broker connection. The client reconnects on its
// own after later losses.
func (m *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(m.cfg.Broker))
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		m.setConnected(true)
		m.log.Info("mqtt connection established", "broker", m.cfg.Broker, "client_id", m.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.setConnected(false)
		m.log.Warn("mqtt connection lost, will auto-reconnect", "broker", m.cfg.Broker, "error", err)
	}

	m.client = mqtt.NewClient(opts)
	m.log.Info("connecting to mqtt broker", "broker", m.cfg.Broker)

	token := m.client.Connect()
	wait := connectTimeout
	if dl, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(dl))
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	m.setConnected(true)
	return nil
}

// Persisted queues a for publishing, dropping it when the queue is full.
func (m *MQTT) Persisted(a persist.Artifact) {
	select {
	case m.events <- a:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
	}
}

// Run publishes queued events until ctx is done, then disconnects.
func (m *MQTT) Run(ctx context.Context) error {
	defer m.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-m.events:
			if err := m.publish(a); err != nil {
				m.log.Warn("artifact publish failed", "path", a.Path, "error", err)
			}
		}
	}
}

func (m *MQTT) publish(a persist.Artifact) error {
	if !m.isConnected() {
		m.countError()
		return fmt.Errorf("mqtt not connected")
	}
	topic := m.Topic(a.Category)
	payload, err := encodeEvent(a)
	if err != nil {
		m.countError()
		return err
	}

	token := m.client.Publish(topic, m.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		m.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		m.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	m.mu.Lock()
	m.published[topic]++
	m.mu.Unlock()
	m.log.Debug("artifact published", "topic", topic, "size", len(payload))
	return nil
}

// Topic returns the topic artifacts of category c are published on.
func (m *MQTT) Topic(c persist.Category) string {
	return strings.TrimSuffix(m.cfg.TopicPrefix, "/") + "/artifacts/" + string(c)
}

// Disconnect closes the broker connection.
func (m *MQTT) Disconnect() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
		m.log.Info("mqtt disconnected")
	}
	m.setConnected(false)
}

// Stats returns publisher statistics.
func (m *MQTT) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	published := make(map[string]uint64, len(m.published))
	for k, v := range m.published {
		published[k] = v
	}
	return Stats{
		Connected: m.connected,
		Published: published,
		Errors:    m.errors,
		Dropped:   m.dropped,
	}
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MQTT) isConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MQTT) countError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func encodeEvent(a persist.Artifact) ([]byte, error) {
	b, err := json.Marshal(event{
		ID:       uuid.NewString(),
		Category: a.Category,
		Path:     a.Path,
		Bytes:    a.Bytes,
		Seq:      a.Seq,
		SavedAt:  a.SavedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal artifact event: %w", err)
	}
	return b, nil
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
