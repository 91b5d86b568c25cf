package transport

import (
	"crypto/tls"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT connection bounds.
const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms, paho's drain window
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	// BrokerURL is the broker address, e.g. "tls://host:8883".
	BrokerURL string

	// ClientID identifies this device to the broker.
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// TLS is the optional TLS configuration (client certificates for
	// AWS IoT style brokers).
	TLS *tls.Config

	// QoS is the quality of service for publishes and subscriptions.
	QoS byte
}

// MQTTTransport is the paho-backed Transport implementation.
type MQTTTransport struct {
	client mqtt.Client
	cfg    MQTTConfig
}

// NewMQTT creates an MQTT transport. The connection is not established
// until Connect; paho's auto-reconnect is disabled because the
// controller's backoff policy owns retry timing.
func NewMQTT(cfg MQTTConfig) *MQTTTransport {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS != nil {
		opts.SetTLSConfig(cfg.TLS)
	}

	return &MQTTTransport{
		client: mqtt.NewClient(opts),
		cfg:    cfg,
	}
}

// Connect establishes the broker connection.
func (t *MQTTTransport) Connect() error {
	token := t.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect: timeout after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Disconnect tears the connection down.
func (t *MQTTTransport) Disconnect() {
	t.client.Disconnect(disconnectQuiesce)
}

// IsConnected reports whether the connection is up.
func (t *MQTTTransport) IsConnected() bool {
	return t.client.IsConnectionOpen()
}

// Publish sends a payload to a topic.
func (t *MQTTTransport) Publish(topic string, payload []byte) error {
	if !t.IsConnected() {
		return ErrNotConnected
	}
	token := t.client.Publish(topic, t.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler for a topic.
func (t *MQTTTransport) Subscribe(topic string, handler MessageHandler) error {
	token := t.client.Subscribe(topic, t.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt subscribe %s: timeout after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

// RSSI is unavailable over MQTT; the link layer owns signal strength.
func (t *MQTTTransport) RSSI() (int, bool) {
	return 0, false
}

// Compile-time interface satisfaction check.
var _ Transport = (*MQTTTransport)(nil)
