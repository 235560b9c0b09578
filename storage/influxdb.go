// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

// Package storage provides InfluxDB persistence for basin time-series
// data, a local disk cache for outage resilience, and the learner state
// file.
package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/patrickjcash/sump-pump-logger/pkg/interfaces"
	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
	"github.com/patrickjcash/sump-pump-logger/pkg/metrics"
)

// InfluxDBStorage writes basin data points to InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string
	org      string
}

// NewInfluxDBStorage creates a new InfluxDB storage client
func NewInfluxDBStorage(url, token, org, bucket string) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(url, token)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	if health.Status != "pass" {
		client.Close()
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", message)
	}

	logger.Info().Str("url", url).Str("status", string(health.Status)).Msg("Connected to InfluxDB")

	writeAPI := client.WriteAPI(org, bucket)

	// Handle async write errors
	go func() {
		for err := range writeAPI.Errors() {
			metrics.InfluxDBWriteErrors.Inc()
			logger.Error().Err(err).Msg("InfluxDB write error")
		}
	}()

	return &InfluxDBStorage{
		client:   client,
		writeAPI: writeAPI,
		bucket:   bucket,
		org:      org,
	}, nil
}

// WritePoint writes a basin data point to InfluxDB
func (s *InfluxDBStorage) WritePoint(ctx context.Context, point *interfaces.BasinPoint) error {
	// Validate input
	if point == nil {
		return fmt.Errorf("point cannot be nil")
	}
	if point.DeviceID == "" {
		return fmt.Errorf("device ID cannot be empty")
	}
	if point.Timestamp.IsZero() {
		return fmt.Errorf("timestamp cannot be zero")
	}

	fields := map[string]interface{}{
		"distance":          point.Distance,
		"battery_percent":   point.BatteryPercent,
		"pump_on_detected":  point.PumpOnDetected,
		"pump_off_detected": point.PumpOffDetected,
	}
	// Fullness and thresholds are omitted until the learner has seen
	// enough pump events to derive them.
	if point.FullnessKnown {
		fields["fullness"] = point.Fullness
		fields["on_distance"] = point.OnDistance
		fields["off_distance"] = point.OffDistance
	}

	p := influxdb2.NewPoint(
		"basin_level",
		map[string]string{
			"device_id":   point.DeviceID,
			"device_name": point.DeviceName,
		},
		fields,
		point.Timestamp,
	)

	s.writeAPI.WritePoint(p)
	metrics.InfluxDBWritesTotal.Inc()
	return nil
}

// WriteBatch writes multiple points efficiently
func (s *InfluxDBStorage) WriteBatch(ctx context.Context, points []*interfaces.BasinPoint) error {
	if points == nil {
		return fmt.Errorf("points slice cannot be nil")
	}

	for i, point := range points {
		if err := s.WritePoint(ctx, point); err != nil {
			return fmt.Errorf("failed to write point at index %d: %w", i, err)
		}
	}
	return nil
}

// Flush forces all pending writes to complete
func (s *InfluxDBStorage) Flush() {
	s.writeAPI.Flush()
}

// Close closes the InfluxDB client and flushes pending writes
func (s *InfluxDBStorage) Close() {
	logger.Info().Msg("Closing InfluxDB connection")
	s.writeAPI.Flush()
	s.client.Close()
}

// Health checks connectivity to the InfluxDB server
func (s *InfluxDBStorage) Health(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("InfluxDB health check failed: %w", err)
	}
	if health.Status != "pass" {
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return fmt.Errorf("InfluxDB unhealthy: %s", message)
	}
	return nil
}

// maxFluxStringLength bounds interpolated Flux string values.
const maxFluxStringLength = 1000

// sanitizeFluxString escapes a string for safe interpolation into a Flux
// query. Backslashes and double quotes are escaped, control characters
// are stripped, and the input is truncated to a sane length.
func sanitizeFluxString(s string) string {
	if len(s) > maxFluxStringLength {
		s = s[:maxFluxStringLength]
	}

	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b = append(b, '\\', '\\')
		case c == '"':
			b = append(b, '\\', '"')
		case c < 0x20 || c == 0x7f:
			// Drop control characters entirely
		default:
			b = append(b, c)
		}
	}
	return string(b)
}

// QueryLatestPoint retrieves the most recent basin point for a device.
// Used at startup to seed dashboards before the first poll completes.
func (s *InfluxDBStorage) QueryLatestPoint(ctx context.Context, deviceID string) (*interfaces.BasinPoint, error) {
	// Validate input
	if deviceID == "" {
		return nil, fmt.Errorf("device ID cannot be empty")
	}

	queryAPI := s.client.QueryAPI(s.org)

	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -1h)
			|> filter(fn: (r) => r._measurement == "basin_level")
			|> filter(fn: (r) => r.device_id == "%s")
			|> last()
	`, sanitizeFluxString(s.bucket), sanitizeFluxString(deviceID))

	result, err := queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = result.Close()
	}()

	point := &interfaces.BasinPoint{
		DeviceID: deviceID,
	}

	for result.Next() {
		record := result.Record()

		if name, ok := record.ValueByKey("device_name").(string); ok {
			point.DeviceName = name
		}

		point.Timestamp = record.Time()

		switch record.Field() {
		case "distance":
			if val, ok := record.Value().(float64); ok {
				point.Distance = val
			}
		case "fullness":
			if val, ok := record.Value().(float64); ok {
				point.Fullness = val
				point.FullnessKnown = true
			}
		case "on_distance":
			if val, ok := record.Value().(float64); ok {
				point.OnDistance = val
			}
		case "off_distance":
			if val, ok := record.Value().(float64); ok {
				point.OffDistance = val
			}
		case "battery_percent":
			if val, ok := record.Value().(float64); ok {
				point.BatteryPercent = val
			}
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}

	return point, nil
}
