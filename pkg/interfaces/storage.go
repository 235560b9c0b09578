// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system
// components. This package promotes loose coupling and testability by
// allowing dependency injection and easy mocking in tests.
package interfaces

import (
	"context"
	"time"
)

// BasinPoint is one time-series data point for a device: the raw distance
// reading plus the derived values current at that moment. It is redeclared
// here to avoid circular dependencies.
type BasinPoint struct {
	DeviceID        string
	DeviceName      string
	Timestamp       time.Time
	Distance        float64 // Sensor-to-water distance in millimeters
	Fullness        float64 // Basin fullness percentage
	FullnessKnown   bool    // False until both thresholds are learned
	OnDistance      float64 // Learned pump ON threshold, 0 if unknown
	OffDistance     float64 // Learned pump OFF threshold, 0 if unknown
	BatteryPercent  float64
	PumpOnDetected  bool
	PumpOffDetected bool
}

// TimeSeriesStorage defines the interface for time-series persistence of
// basin data points.
type TimeSeriesStorage interface {
	// WritePoint writes a single basin data point to storage
	WritePoint(ctx context.Context, point *BasinPoint) error

	// Flush ensures all pending writes are completed
	Flush()

	// Close gracefully shuts down the storage connection
	Close()

	// Health checks if the storage backend is healthy
	Health(ctx context.Context) error
}
