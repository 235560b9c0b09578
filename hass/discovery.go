// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package hass

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
)

const discoveryRoot = "homeassistant"

// deviceInfo groups all of a monitor's entities under one device card in
// Home Assistant.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// discoveryConfig is a Home Assistant MQTT Discovery payload. Entities
// read their values out of the aggregated device state JSON via
// value_template.
type discoveryConfig struct {
	Name                string      `json:"name"`
	UniqueID            string      `json:"unique_id"`
	StateTopic          string      `json:"state_topic"`
	ValueTemplate       string      `json:"value_template,omitempty"`
	UnitOfMeasurement   string      `json:"unit_of_measurement,omitempty"`
	DeviceClass         string      `json:"device_class,omitempty"`
	StateClass          string      `json:"state_class,omitempty"`
	EntityCategory      string      `json:"entity_category,omitempty"`
	Icon                string      `json:"icon,omitempty"`
	PayloadOn           string      `json:"payload_on,omitempty"`
	PayloadOff          string      `json:"payload_off,omitempty"`
	AvailabilityTopic   string      `json:"availability_topic"`
	PayloadAvailable    string      `json:"payload_available"`
	PayloadNotAvailable string      `json:"payload_not_available"`
	JSONAttributesTopic string      `json:"json_attributes_topic,omitempty"`
	Device              *deviceInfo `json:"device"`
}

// entityDef describes one entity derived from the device state payload.
type entityDef struct {
	component     string // "sensor" or "binary_sensor"
	objectSuffix  string
	name          string
	valueTemplate string
	unit          string
	deviceClass   string
	stateClass    string
	category      string
	icon          string
	payloadOn     string
	payloadOff    string
	attributes    bool
}

// deviceEntities is every entity the logger exposes per monitor.
var deviceEntities = []entityDef{
	{
		component:     "sensor",
		objectSuffix:  "fullness",
		name:          "Basin Fullness",
		valueTemplate: "{{ value_json.fullness if value_json.fullness_known else 'unknown' }}",
		unit:          "%",
		stateClass:    "measurement",
		icon:          "mdi:water-percent",
		attributes:    true,
	},
	{
		component:     "sensor",
		objectSuffix:  "distance",
		name:          "Water Distance",
		valueTemplate: "{{ value_json.distance }}",
		unit:          "mm",
		deviceClass:   "distance",
		stateClass:    "measurement",
	},
	{
		component:     "sensor",
		objectSuffix:  "battery",
		name:          "Battery",
		valueTemplate: "{{ value_json.battery_percent }}",
		unit:          "%",
		deviceClass:   "battery",
		stateClass:    "measurement",
		category:      "diagnostic",
	},
	{
		component:     "sensor",
		objectSuffix:  "on_threshold",
		name:          "Pump On Threshold",
		valueTemplate: "{{ value_json.on_distance if value_json.on_distance is not none else 'unknown' }}",
		unit:          "mm",
		deviceClass:   "distance",
		category:      "diagnostic",
		icon:          "mdi:arrow-collapse-down",
	},
	{
		component:     "sensor",
		objectSuffix:  "off_threshold",
		name:          "Pump Off Threshold",
		valueTemplate: "{{ value_json.off_distance if value_json.off_distance is not none else 'unknown' }}",
		unit:          "mm",
		deviceClass:   "distance",
		category:      "diagnostic",
		icon:          "mdi:arrow-collapse-up",
	},
	{
		component:     "binary_sensor",
		objectSuffix:  "alert",
		name:          "Critical Alert",
		valueTemplate: "{{ value_json.critical_alert }}",
		deviceClass:   "problem",
		payloadOn:     "true",
		payloadOff:    "false",
	},
	{
		component:     "binary_sensor",
		objectSuffix:  "connectivity",
		name:          "Connectivity",
		valueTemplate: "{{ value_json.connected }}",
		deviceClass:   "connectivity",
		category:      "diagnostic",
		payloadOn:     "true",
		payloadOff:    "false",
	},
}

// DiscoveryManager publishes Home Assistant discovery configs for each
// monitored device.
type DiscoveryManager struct {
	client *Client

	mu        sync.Mutex
	published map[string]bool
}

// NewDiscoveryManager creates a new DiscoveryManager
func NewDiscoveryManager(client *Client) *DiscoveryManager {
	return &DiscoveryManager{
		client:    client,
		published: make(map[string]bool),
	}
}

// EnsureDevice publishes discovery configs for a device if they have not
// been published yet in this process. Configs are retained, so Home
// Assistant restarts pick them up without a republish.
func (d *DiscoveryManager) EnsureDevice(deviceID, deviceName string) error {
	d.mu.Lock()
	if d.published[deviceID] {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := d.publishDevice(deviceID, deviceName); err != nil {
		return err
	}

	d.mu.Lock()
	d.published[deviceID] = true
	d.mu.Unlock()

	logger.Info().Str("device_id", deviceID).Str("device_name", deviceName).Msg("Published Home Assistant discovery configs")
	return nil
}

// ForgetDevice clears the published flag so the next EnsureDevice call
// republishes. Used when a device drops off and reappears.
func (d *DiscoveryManager) ForgetDevice(deviceID string) {
	d.mu.Lock()
	delete(d.published, deviceID)
	d.mu.Unlock()
}

func (d *DiscoveryManager) publishDevice(deviceID, deviceName string) error {
	objectID := sanitizeObjectID(deviceID)
	stateTopic := d.client.Config().TopicPrefix + "/" + objectID + "/state"

	device := &deviceInfo{
		Identifiers:  []string{"sump_pump_logger_" + objectID},
		Name:         deviceName,
		Model:        "Sump Pump Monitor",
		Manufacturer: "PitBoss",
	}

	for _, def := range deviceEntities {
		cfg := discoveryConfig{
			Name:                def.name,
			UniqueID:            fmt.Sprintf("sump_pump_logger_%s_%s", objectID, def.objectSuffix),
			StateTopic:          stateTopic,
			ValueTemplate:       def.valueTemplate,
			UnitOfMeasurement:   def.unit,
			DeviceClass:         def.deviceClass,
			StateClass:          def.stateClass,
			EntityCategory:      def.category,
			Icon:                def.icon,
			PayloadOn:           def.payloadOn,
			PayloadOff:          def.payloadOff,
			AvailabilityTopic:   d.client.AvailabilityTopic(),
			PayloadAvailable:    availabilityOnline,
			PayloadNotAvailable: availabilityOffline,
			Device:              device,
		}
		if def.attributes {
			cfg.JSONAttributesTopic = d.client.Config().TopicPrefix + "/" + objectID + "/attributes"
		}

		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal discovery config: %w", err)
		}

		topic := fmt.Sprintf("%s/%s/sump_pump_logger/%s_%s/config",
			discoveryRoot, def.component, objectID, def.objectSuffix)

		if err := d.client.PublishRaw(topic, payload, true); err != nil {
			return fmt.Errorf("failed to publish discovery config for %s: %w", def.objectSuffix, err)
		}
	}

	return nil
}

// sanitizeObjectID maps a device ID onto the character set Home Assistant
// allows in object IDs.
func sanitizeObjectID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
