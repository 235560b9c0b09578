// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package hass

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
)

// DeviceState is the aggregated per-device payload published on the
// state topic. Field names are load-bearing: discovery value_templates
// reference them.
type DeviceState struct {
	Fullness       float64 `json:"fullness"`
	FullnessKnown  bool    `json:"fullness_known"`
	Distance       float64 `json:"distance"`
	BatteryPercent float64 `json:"battery_percent"`
	// Thresholds are null until learned
	OnDistance    *float64 `json:"on_distance"`
	OffDistance   *float64 `json:"off_distance"`
	CriticalAlert bool     `json:"critical_alert"`
	Connected     bool     `json:"connected"`
}

// DeviceAttributes carries the learner diagnostics attached to the basin
// fullness entity.
type DeviceAttributes struct {
	ThresholdMethod     string     `json:"threshold_method"`
	OnEventCount        int        `json:"on_event_count"`
	OffEventCount       int        `json:"off_event_count"`
	LastOnEventTime     *time.Time `json:"last_on_event_time"`
	LastOffEventTime    *time.Time `json:"last_off_event_time"`
	PollIntervalSeconds float64    `json:"poll_interval_seconds"`
}

// Publisher publishes device state to Home Assistant via MQTT. It wraps
// the discovery manager so callers only hand it state snapshots.
type Publisher struct {
	client    *Client
	discovery *DiscoveryManager
}

// NewPublisher creates a new Publisher
func NewPublisher(client *Client) *Publisher {
	return &Publisher{
		client:    client,
		discovery: NewDiscoveryManager(client),
	}
}

// Connect connects the underlying MQTT client
func (p *Publisher) Connect() error {
	return p.client.Connect()
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect()
}

// PublishState publishes one device's state and diagnostics. Discovery
// configs are published lazily on the first state for each device.
func (p *Publisher) PublishState(deviceID, deviceName string, state *DeviceState, attrs *DeviceAttributes) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}

	if err := p.discovery.EnsureDevice(deviceID, deviceName); err != nil {
		// A failed discovery publish is retried on the next state
		logger.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to publish discovery configs")
	}

	objectID := sanitizeObjectID(deviceID)

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal device state: %w", err)
	}
	if err := p.client.PublishRetained(objectID+"/state", payload); err != nil {
		return fmt.Errorf("failed to publish device state: %w", err)
	}

	if attrs != nil {
		attrsPayload, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("failed to marshal device attributes: %w", err)
		}
		if err := p.client.PublishRetained(objectID+"/attributes", attrsPayload); err != nil {
			return fmt.Errorf("failed to publish device attributes: %w", err)
		}
	}

	return nil
}

// ForgetDevice clears cached discovery state for a device
func (p *Publisher) ForgetDevice(deviceID string) {
	p.discovery.ForgetDevice(deviceID)
}
