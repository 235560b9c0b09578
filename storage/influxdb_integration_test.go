// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

//go:build integration
// +build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/influxdb"

	"github.com/patrickjcash/sump-pump-logger/pkg/interfaces"
)

// startInfluxStorage spins up an InfluxDB container and returns a storage
// client connected to it. Cleanup is registered on the test.
func startInfluxStorage(t *testing.T) *InfluxDBStorage {
	t.Helper()
	ctx := context.Background()

	influxContainer, err := influxdb.Run(ctx,
		"influxdb:2.7-alpine",
		influxdb.WithV2Auth("test-org", "test-bucket", "test-user", "test-password"),
		influxdb.WithV2AdminToken("test-token"),
	)
	if err != nil {
		t.Fatalf("Failed to start InfluxDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := influxContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	url, err := influxContainer.ConnectionUrl(ctx)
	if err != nil {
		t.Fatalf("Failed to get InfluxDB URL: %v", err)
	}

	storage, err := NewInfluxDBStorage(url, "test-token", "test-org", "test-bucket")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	return storage
}

// TestIntegration_WritePoint tests writing a single point to InfluxDB
func TestIntegration_WritePoint(t *testing.T) {
	ctx := context.Background()
	storage := startInfluxStorage(t)
	defer storage.Close()

	point := &interfaces.BasinPoint{
		DeviceID:       "test-device-1",
		DeviceName:     "Basement Sump",
		Timestamp:      time.Now(),
		Distance:       312.5,
		Fullness:       42.0,
		FullnessKnown:  true,
		OnDistance:     250.0,
		OffDistance:    420.0,
		BatteryPercent: 87.0,
	}

	if err := storage.WritePoint(ctx, point); err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}

	// Flush to ensure write completes
	storage.Flush()

	// Verify health
	if err := storage.Health(ctx); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}

// TestIntegration_WriteBatch tests writing multiple points
func TestIntegration_WriteBatch(t *testing.T) {
	ctx := context.Background()
	storage := startInfluxStorage(t)
	defer storage.Close()

	points := []*interfaces.BasinPoint{
		{
			DeviceID:   "device-1",
			DeviceName: "Basement Sump",
			Timestamp:  time.Now(),
			Distance:   400.0,
		},
		{
			DeviceID:      "device-1",
			DeviceName:    "Basement Sump",
			Timestamp:     time.Now().Add(1 * time.Second),
			Distance:      330.0,
			Fullness:      52.9,
			FullnessKnown: true,
			OnDistance:    250.0,
			OffDistance:   420.0,
		},
		{
			DeviceID:       "device-2",
			DeviceName:     "Crawlspace Sump",
			Timestamp:      time.Now().Add(2 * time.Second),
			Distance:       290.0,
			PumpOnDetected: true,
		},
	}

	if err := storage.WriteBatch(ctx, points); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	storage.Flush()
}

// TestIntegration_QueryLatestPoint tests the write-then-query round trip
func TestIntegration_QueryLatestPoint(t *testing.T) {
	ctx := context.Background()
	storage := startInfluxStorage(t)
	defer storage.Close()

	point := &interfaces.BasinPoint{
		DeviceID:      "query-device",
		DeviceName:    "Basement Sump",
		Timestamp:     time.Now(),
		Distance:      355.0,
		Fullness:      38.2,
		FullnessKnown: true,
		OnDistance:    250.0,
		OffDistance:   420.0,
	}

	if err := storage.WritePoint(ctx, point); err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}
	storage.Flush()

	// Async writes can lag slightly behind the flush
	time.Sleep(2 * time.Second)

	got, err := storage.QueryLatestPoint(ctx, "query-device")
	if err != nil {
		t.Fatalf("QueryLatestPoint() error = %v", err)
	}

	if got.DeviceID != "query-device" {
		t.Errorf("DeviceID = %v, want query-device", got.DeviceID)
	}
	if got.Distance != 355.0 {
		t.Errorf("Distance = %v, want 355.0", got.Distance)
	}
	if !got.FullnessKnown {
		t.Error("FullnessKnown should be true after querying fullness field")
	}
}

// TestIntegration_CachingStorage_Health verifies the caching wrapper
// passes writes straight through while the backend is healthy
func TestIntegration_CachingStorage_Health(t *testing.T) {
	ctx := context.Background()
	storage := startInfluxStorage(t)

	cache, err := NewLocalCache(t.TempDir(), 1024*1024, time.Hour)
	if err != nil {
		t.Fatalf("NewLocalCache() error = %v", err)
	}

	cs := NewCachingStorage(storage, cache, &mockNotifier{})
	defer cs.Close()

	if err := cs.Health(ctx); err != nil {
		t.Errorf("Health() error = %v", err)
	}

	point := &interfaces.BasinPoint{
		DeviceID:   "caching-device",
		DeviceName: "Basement Sump",
		Timestamp:  time.Now(),
		Distance:   300.0,
	}
	if err := cs.WritePoint(ctx, point); err != nil {
		t.Fatalf("WritePoint() error = %v", err)
	}
	cs.Flush()

	// Backend is healthy, so nothing should have hit the cache
	cached, err := cache.ListCachedPoints()
	if err != nil {
		t.Fatalf("ListCachedPoints() error = %v", err)
	}
	if len(cached) != 0 {
		t.Errorf("expected empty cache with healthy backend, got %d points", len(cached))
	}
}
