// Package mqtt mirrors pushed metrics to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

const (
	connectTimeout = 10 * time.Second
	// disconnectQuiesce is how long, in milliseconds, Close waits for
	// in-flight messages.
	disconnectQuiesce = 250
)

// client is the subset of paho.Client the publisher needs.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher sends normalized metrics as one JSON message per push.
type Publisher struct {
	client client
	config types.MQTTConfig
}

// Connect dials the configured broker.
func Connect(ctx context.Context, cfg types.MQTTConfig) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt broker not configured")
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Ctx(ctx).WarnContext(ctx, "mqtt connection lost", slog.Any("error", err))
	})

	c := paho.NewClient(opts)
	if err := wait(ctx, c.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	log.Ctx(ctx).InfoContext(ctx, "connected to mqtt broker", slog.String("broker", cfg.Broker))
	return newPublisher(c, cfg), nil
}

func newPublisher(c client, cfg types.MQTTConfig) *Publisher {
	return &Publisher{
		client: c,
		config: cfg,
	}
}

type message struct {
	Metrics types.Metrics `json:"metrics"`
}

// PushMetrics publishes metrics to the configured topic.
func (p *Publisher) PushMetrics(ctx context.Context, metrics types.Metrics) error {
	payload, err := json.Marshal(message{Metrics: metrics})
	if err != nil {
		return err
	}
	tok := p.client.Publish(p.config.Topic, byte(p.config.QoS), p.config.Retained, payload)
	if err := wait(ctx, tok); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.config.Topic, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "published metrics to mqtt", slog.String("topic", p.config.Topic), slog.Int("count", len(metrics)))
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}

func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return errors.New("timed out waiting for broker")
	}
}
