package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jfmyers9/crate/internal/store"
	"github.com/rs/zerolog"
)

// MQTTConfig configures the MQTT subscription.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	Username string
	Password string
	ClientID string
	QoS      byte
}

// MQTTSource publishes every tag received on an MQTT topic as a scan event.
type MQTTSource struct {
	cfg       MQTTConfig
	publisher Publisher
	logger    zerolog.Logger
}

// NewMQTTSource creates an MQTTSource.
func NewMQTTSource(cfg MQTTConfig, publisher Publisher, logger zerolog.Logger) *MQTTSource {
	if cfg.ClientID == "" {
		cfg.ClientID = "crate"
	}
	return &MQTTSource{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger.With().Str("component", "mqtt").Logger(),
	}
}

// Run connects to the broker and blocks until ctx is cancelled. The
// subscription is renewed on every reconnect.
func (m *MQTTSource) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOrderMatters(false)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		m.logger.Info().Str("broker", m.cfg.Broker).Str("topic", m.cfg.Topic).Msg("Connected to broker")
		token := c.Subscribe(m.cfg.Topic, m.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			m.handleMessage(ctx, msg.Topic(), msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			m.logger.Error().Err(token.Error()).Str("topic", m.cfg.Topic).Msg("Failed to subscribe")
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn().Err(err).Msg("Connection to broker lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to mqtt broker %s: %w", m.cfg.Broker, token.Error())
	}

	<-ctx.Done()
	client.Disconnect(250)
	m.logger.Info().Msg("MQTT source stopped")
	return ctx.Err()
}

// handleMessage publishes the tag carried by one message payload.
func (m *MQTTSource) handleMessage(ctx context.Context, topic string, payload []byte) {
	tag := strings.TrimSpace(string(payload))
	if tag == "" {
		m.logger.Debug().Str("topic", topic).Msg("Ignoring empty payload")
		return
	}

	ev, err := m.publisher.Publish(ctx, tag, store.SourceMQTT)
	if err != nil {
		m.logger.Error().Err(err).Str("tag", tag).Msg("Failed to publish scan")
		return
	}
	m.logger.Info().Str("tag", ev.TagID).Str("event", ev.ID).Msg("Tag received")
}
