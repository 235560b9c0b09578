// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

// Package hass publishes basin state to Home Assistant over MQTT using
// the MQTT Discovery convention, so sump sensors appear automatically
// without YAML configuration on the Home Assistant side.
package hass

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
	"github.com/patrickjcash/sump-pump-logger/pkg/metrics"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker      string // MQTT broker address (e.g., "tcp://localhost:1883")
	ClientID    string // Unique client ID
	Username    string // MQTT username (optional)
	Password    string // MQTT password (optional)
	TopicPrefix string // Topic prefix for all state messages
	UseTLS      bool   // Enable TLS connection
}

// Client wraps the paho MQTT client with prefixing, availability and
// connection management
type Client struct {
	client   mqtt.Client
	config   ClientConfig
	mu       sync.RWMutex
	isActive bool
}

// NewClient creates a new MQTT client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}

	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("sump-pump-logger-%d", time.Now().Unix())
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "sump-pump-logger"
	}

	c := &Client{
		config: cfg,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	if cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: false,
		})
	}

	// The broker publishes "offline" on our behalf if we vanish, which
	// flips every discovered entity to unavailable in Home Assistant
	opts.SetWill(c.AvailabilityTopic(), availabilityOffline, 1, true)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
		// Republish availability after every (re)connect
		client.Publish(c.AvailabilityTopic(), 1, true, availabilityOnline)
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, options *mqtt.ClientOptions) {
		logger.Debug().Msg("Reconnecting to MQTT broker")
	})

	// Auto-reconnect settings
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)

	// Keep alive settings
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetCleanSession(true)

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect establishes connection to the MQTT broker
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isActive {
		return nil // Already connected
	}

	logger.Info().Str("broker", c.config.Broker).Msg("Connecting to MQTT broker")

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.isActive = true
	return nil
}

// Disconnect closes the connection to the MQTT broker
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActive {
		return
	}

	// Flip availability before going away so entities don't linger as
	// available with stale values
	token := c.client.Publish(c.AvailabilityTopic(), 1, true, availabilityOffline)
	token.WaitTimeout(time.Second)

	c.client.Disconnect(250)
	c.isActive = false

	logger.Info().Msg("Disconnected from MQTT broker")
}

// Publish publishes a message under the configured topic prefix
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.publish(c.buildTopic(topic), 0, false, payload)
}

// PublishRetained publishes a retained message under the topic prefix
func (c *Client) PublishRetained(topic string, payload interface{}) error {
	return c.publish(c.buildTopic(topic), 1, true, payload)
}

// PublishRaw publishes a message without the prefix. Discovery topics
// live under the homeassistant/ root and must bypass the prefix.
func (c *Client) PublishRaw(topic string, payload interface{}, retained bool) error {
	return c.publish(topic, 1, retained, payload)
}

func (c *Client) publish(topic string, qos byte, retained bool, payload interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isActive {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		metrics.MQTTPublishErrors.Inc()
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}

	metrics.MQTTPublishesTotal.Inc()
	logger.Debug().Str("topic", topic).Bool("retained", retained).Msg("Published MQTT message")
	return nil
}

// AvailabilityTopic returns the service-wide availability topic
func (c *Client) AvailabilityTopic() string {
	return c.config.TopicPrefix + "/availability"
}

// buildTopic constructs the full topic path with prefix
func (c *Client) buildTopic(topic string) string {
	if c.config.TopicPrefix == "" {
		return topic
	}
	return c.config.TopicPrefix + "/" + topic
}

// IsConnected reports whether client is connected to the broker
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isActive && c.client.IsConnected()
}

// Config returns the client configuration
func (c *Client) Config() ClientConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}
