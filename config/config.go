// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

// Package config provides configuration management for the sump pump
// logger.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/patrickjcash/sump-pump-logger/pkg/errors"
	"github.com/patrickjcash/sump-pump-logger/pkg/util"
)

// Config represents the application configuration
type Config struct {
	Learner       LearnerConfig       `yaml:"learner"`
	Polling       PollingConfig       `yaml:"polling"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Cache         CacheConfig         `yaml:"cache"`
	State         StateConfig         `yaml:"state"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LearnerConfig holds pump event detection settings
type LearnerConfig struct {
	// EventThresholdMM is the distance change that counts as a pump
	// event. Larger basins may need a larger value.
	EventThresholdMM float64 `yaml:"event_threshold_mm" validate:"gte=0"`
}

// PollingConfig holds adaptive polling settings
type PollingConfig struct {
	MinInterval        time.Duration `yaml:"min_interval"`
	MaxInterval        time.Duration `yaml:"max_interval"`
	AlertCeiling       time.Duration `yaml:"alert_ceiling"`
	ActivityBase       time.Duration `yaml:"activity_base"`
	CycleWindow        time.Duration `yaml:"cycle_window"`
	DiscoveryInterval  time.Duration `yaml:"discovery_interval"`
	SamplesChannelSize int           `yaml:"samples_channel_size" validate:"gte=1"`
	SimulatedDevices   int           `yaml:"simulated_devices" validate:"gte=0"`
}

// InfluxDBConfig holds InfluxDB connection settings
type InfluxDBConfig struct {
	URL          string `yaml:"url" validate:"required"`
	Token        string `yaml:"token" validate:"required,min=8"`
	Organization string `yaml:"organization" validate:"required"`
	Bucket       string `yaml:"bucket" validate:"required"`
}

// CacheConfig holds local fallback cache settings
type CacheConfig struct {
	Directory string        `yaml:"directory"`
	MaxSize   int64         `yaml:"max_size"`
	MaxAge    time.Duration `yaml:"max_age"`
}

// StateConfig holds learner state persistence settings
type StateConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// MQTTConfig holds Home Assistant MQTT publishing settings. An empty
// broker disables MQTT publishing entirely.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	UseTLS      bool   `yaml:"use_tls"`
}

// Enabled reports whether MQTT publishing is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error fatal panic"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides
func Load(path string) (*Config, error) {
	data, err := util.ReadFileSafely(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the
// configuration
func (c *Config) applyEnvironmentOverrides() {
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		c.InfluxDB.URL = url
	}
	if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
		c.InfluxDB.Token = token
	}
	if org := os.Getenv("INFLUXDB_ORG"); org != "" {
		c.InfluxDB.Organization = org
	}
	if bucket := os.Getenv("INFLUXDB_BUCKET"); bucket != "" {
		c.InfluxDB.Bucket = bucket
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if path := os.Getenv("STATE_PATH"); path != "" {
		c.State.Path = path
	}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		c.Notifications.SlackWebhookURL = webhook
	}
	if interval := os.Getenv("POLL_MIN_INTERVAL"); interval != "" {
		duration, parseErr := time.ParseDuration(interval)
		if parseErr == nil {
			c.Polling.MinInterval = duration
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse POLL_MIN_INTERVAL '%s': %v\n", interval, parseErr)
		}
	}
	if interval := os.Getenv("POLL_MAX_INTERVAL"); interval != "" {
		duration, parseErr := time.ParseDuration(interval)
		if parseErr == nil {
			c.Polling.MaxInterval = duration
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse POLL_MAX_INTERVAL '%s': %v\n", interval, parseErr)
		}
	}
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.Learner.EventThresholdMM == 0 {
		c.Learner.EventThresholdMM = 50.0
	}
	if c.Polling.MinInterval == 0 {
		c.Polling.MinInterval = 10 * time.Second
	}
	if c.Polling.MaxInterval == 0 {
		c.Polling.MaxInterval = 5 * time.Minute
	}
	if c.Polling.AlertCeiling == 0 {
		c.Polling.AlertCeiling = 60 * time.Second
	}
	if c.Polling.ActivityBase == 0 {
		c.Polling.ActivityBase = 180 * time.Second
	}
	if c.Polling.CycleWindow == 0 {
		c.Polling.CycleWindow = 15 * time.Minute
	}
	if c.Polling.DiscoveryInterval == 0 {
		c.Polling.DiscoveryInterval = 10 * time.Minute
	}
	if c.Polling.SamplesChannelSize == 0 {
		c.Polling.SamplesChannelSize = 100
	}
	if c.Cache.Directory == "" {
		c.Cache.Directory = "/var/cache/sump-pump-logger"
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 100 * 1024 * 1024
	}
	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = 24 * time.Hour
	}
	if c.State.Path == "" {
		c.State.Path = "/var/lib/sump-pump-logger/pump_state.json"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "sump-pump-logger"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "sump-pump-logger"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("struct validation: %w", err)
	}

	if validateErr := c.validateInfluxDB(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validatePolling(); validateErr != nil {
		return validateErr
	}

	return nil
}

// validateInfluxDB validates the InfluxDB configuration
func (c *Config) validateInfluxDB() error {
	parsedURL, parseErr := url.Parse(c.InfluxDB.URL)
	if parseErr != nil {
		return apperrors.NewConfigError("influxdb.url", c.InfluxDB.URL, parseErr)
	}

	// Check for HTTPS in production-like URLs (not localhost/127.0.0.1)
	if securityErr := validateURLSecurity(parsedURL); securityErr != nil {
		return securityErr
	}

	return nil
}

// validateURLSecurity checks if the URL uses HTTPS for non-local
// connections
func validateURLSecurity(parsedURL *url.URL) error {
	if parsedURL.Scheme != "http" {
		return nil
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	isLocal := hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.") ||
		strings.HasPrefix(hostname, "172.")

	if !isLocal {
		return apperrors.NewConfigError("influxdb.url", "",
			fmt.Errorf("must use HTTPS for non-local connections (got %s); HTTP transmits credentials in plaintext", parsedURL.Scheme))
	}

	return nil
}

// validatePolling validates the polling configuration
func (c *Config) validatePolling() error {
	p := c.Polling

	if p.MinInterval < time.Second {
		return apperrors.NewConfigError("polling.min_interval", p.MinInterval.String(),
			fmt.Errorf("must be at least 1 second"))
	}
	if p.MaxInterval > 1*time.Hour {
		return apperrors.NewConfigError("polling.max_interval", p.MaxInterval.String(),
			fmt.Errorf("must not exceed 1 hour"))
	}
	if p.MinInterval > p.MaxInterval {
		return apperrors.NewConfigError("polling.min_interval", p.MinInterval.String(),
			fmt.Errorf("must not exceed polling.max_interval"))
	}
	if p.AlertCeiling < p.MinInterval || p.AlertCeiling > p.MaxInterval {
		return apperrors.NewConfigError("polling.alert_ceiling", p.AlertCeiling.String(),
			fmt.Errorf("must lie between polling.min_interval and polling.max_interval"))
	}
	if p.DiscoveryInterval < p.MinInterval {
		return apperrors.NewConfigError("polling.discovery_interval", p.DiscoveryInterval.String(),
			fmt.Errorf("must be greater than or equal to polling.min_interval"))
	}
	if p.DiscoveryInterval > 24*time.Hour {
		return apperrors.NewConfigError("polling.discovery_interval", p.DiscoveryInterval.String(),
			fmt.Errorf("must not exceed 24 hours"))
	}

	return nil
}
