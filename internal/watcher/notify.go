package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/keagan/vidcontrast/internal/config"
	"github.com/rs/zerolog"
)

// Notifier announces finished jobs
type Notifier interface {
	Publish(ctx context.Context, res Result) error
	Close() error
}

// NopNotifier drops every result
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Result) error { return nil }
func (NopNotifier) Close() error                          { return nil }

// NewNotifier connects to the configured broker, or returns a NopNotifier
// when none is configured
func NewNotifier(ctx context.Context, logger zerolog.Logger, cfg config.MQTTConfig) (Notifier, error) {
	if cfg.Broker == "" {
		return NopNotifier{}, nil
	}
	n := NewMQTTNotifier(logger, cfg)
	if err := n.Connect(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

// MQTTNotifier publishes results as JSON to <topic>/results
type MQTTNotifier struct {
	cfg    config.MQTTConfig
	logger zerolog.Logger
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

func NewMQTTNotifier(logger zerolog.Logger, cfg config.MQTTConfig) *MQTTNotifier {
	return &MQTTNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// Connect establishes the broker connection with automatic reconnects
func (n *MQTTNotifier) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(n.cfg.Broker))
	opts.SetClientID(n.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		n.setConnected(true)
		n.logger.Info().Str("broker", n.cfg.Broker).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		n.setConnected(false)
		n.logger.Warn().Err(err).Str("broker", n.cfg.Broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	n.client = mqtt.NewClient(opts)

	n.logger.Info().Str("broker", n.cfg.Broker).Msg("connecting to mqtt broker")
	token := n.client.Connect()
	if !waitToken(ctx, token, 5*time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	n.setConnected(true)
	return nil
}

func (n *MQTTNotifier) Publish(ctx context.Context, res Result) error {
	if !n.isConnected() {
		n.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(res)
	if err != nil {
		n.countError()
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	topic := ResultsTopic(n.cfg.Topic)
	token := n.client.Publish(topic, n.cfg.QoS, false, payload)
	if !waitToken(ctx, token, 2*time.Second) {
		n.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		n.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()

	n.logger.Debug().
		Str("topic", topic).
		Str("job_id", res.JobID).
		Int("size", len(payload)).
		Msg("result published")

	return nil
}

func (n *MQTTNotifier) Close() error {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
		n.logger.Info().Msg("mqtt disconnected")
	}
	n.setConnected(false)
	return nil
}

// Counts returns published and failed publish counts
func (n *MQTTNotifier) Counts() (published, failed uint64) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.published, n.errors
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *MQTTNotifier) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}

// ResultsTopic is the topic results are published on
func ResultsTopic(base string) string {
	return base + "/results"
}

// brokerURL accepts host:port and adds the tcp scheme
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
