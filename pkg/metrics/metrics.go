// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the sump pump logger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DevicesDiscovered tracks the number of sump monitors on the account
	DevicesDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sump_devices_discovered_total",
		Help: "Total number of sump pump monitors discovered on the account",
	})

	// DevicesPolled tracks the number of devices currently being polled
	DevicesPolled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sump_devices_polled",
		Help: "Number of devices currently being polled for telemetry",
	})

	// SamplesTotal tracks the total number of telemetry samples collected
	SamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sump_samples_total",
		Help: "Total number of telemetry samples collected",
	})

	// SampleErrors tracks the number of failed telemetry samples
	SampleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sump_sample_errors_total",
		Help: "Total number of failed telemetry samples",
	})

	// SamplesDropped tracks samples dropped due to a full channel
	SamplesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sump_samples_dropped_total",
		Help: "Total number of samples dropped because the channel was full",
	})

	// SampleDuration tracks how long one device sample takes
	SampleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sump_sample_duration_seconds",
		Help:    "Duration of a device telemetry sample in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// PumpOnEventsTotal tracks detected pump ON events per device
	PumpOnEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sump_pump_on_events_total",
		Help: "Total number of detected pump ON events",
	}, []string{"device_id", "device_name"})

	// PumpOffEventsTotal tracks detected pump OFF events per device
	PumpOffEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sump_pump_off_events_total",
		Help: "Total number of detected pump OFF events",
	}, []string{"device_id", "device_name"})

	// CurrentDistance tracks the latest water distance per device
	CurrentDistance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sump_water_distance_millimeters",
		Help: "Current distance from sensor to water surface in millimeters",
	}, []string{"device_id", "device_name"})

	// BasinFullness tracks the computed basin fullness per device
	BasinFullness = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sump_basin_fullness_percent",
		Help: "Basin fullness percentage derived from learned pump thresholds",
	}, []string{"device_id", "device_name"})

	// PumpOnThreshold tracks the learned pump ON distance per device
	PumpOnThreshold = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sump_pump_on_distance_millimeters",
		Help: "Learned distance at which the basin is full and the pump engages",
	}, []string{"device_id", "device_name"})

	// PumpOffThreshold tracks the learned pump OFF distance per device
	PumpOffThreshold = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sump_pump_off_distance_millimeters",
		Help: "Learned distance at which the basin has just been emptied",
	}, []string{"device_id", "device_name"})

	// PollInterval tracks the adaptive polling interval per device
	PollInterval = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sump_poll_interval_seconds",
		Help: "Current adaptive polling interval in seconds",
	}, []string{"device_id", "device_name"})

	// StateSavesTotal tracks successful learner state persistence writes
	StateSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sump_state_saves_total",
		Help: "Total number of successful learner state saves",
	})

	// StateSaveErrors tracks failed learner state persistence writes
	StateSaveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sump_state_save_errors_total",
		Help: "Total number of failed learner state saves",
	})

	// InfluxDBWritesTotal tracks the total number of writes to InfluxDB
	InfluxDBWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sump_influxdb_writes_total",
		Help: "Total number of writes to InfluxDB",
	})

	// InfluxDBWriteErrors tracks the number of failed writes to InfluxDB
	InfluxDBWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sump_influxdb_write_errors_total",
		Help: "Total number of failed writes to InfluxDB",
	})

	// MQTTPublishesTotal tracks sensor states published over MQTT
	MQTTPublishesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sump_mqtt_publishes_total",
		Help: "Total number of sensor state publishes over MQTT",
	})

	// MQTTPublishErrors tracks failed MQTT publishes
	MQTTPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sump_mqtt_publish_errors_total",
		Help: "Total number of failed MQTT publishes",
	})
)
