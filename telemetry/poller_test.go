// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package telemetry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/patrickjcash/sump-pump-logger/pkg/errors"
	"github.com/patrickjcash/sump-pump-logger/pump"
)

// stubSource returns a fixed sample and counts calls.
type stubSource struct {
	calls atomic.Int64
}

func (s *stubSource) Devices(_ context.Context) ([]Device, error) {
	return []Device{{ID: "dev-1", ClientID: 1, Name: "Basement Sump"}}, nil
}

func (s *stubSource) Sample(_ context.Context, device Device) (*Sample, error) {
	s.calls.Add(1)
	return &Sample{
		Device:    device,
		Reading:   pump.Reading{Distance: 300, Time: time.Now()},
		Connected: true,
	}, nil
}

func TestStartPollingDevice(t *testing.T) {
	src := &stubSource{}
	poller := NewPoller(src, time.Hour, 10)
	defer poller.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	device := Device{ID: "dev-1", Name: "Basement Sump"}

	if !poller.StartPollingDevice(ctx, device) {
		t.Error("StartPollingDevice() should return true for a new device")
	}
	if poller.StartPollingDevice(ctx, device) {
		t.Error("StartPollingDevice() should return false for an already polled device")
	}
	if !poller.IsPolling("dev-1") {
		t.Error("device should be polled")
	}
	if got := poller.DeviceCount(); got != 1 {
		t.Errorf("DeviceCount() = %d, want 1", got)
	}
}

func TestStopPollingDevice(t *testing.T) {
	poller := NewPoller(&stubSource{}, time.Hour, 10)
	defer poller.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	device := Device{ID: "dev-2", Name: "Crawlspace Sump"}
	poller.StartPollingDevice(ctx, device)
	poller.StopPollingDevice("dev-2")

	if poller.IsPolling("dev-2") {
		t.Error("device should not be polled after stop")
	}
	if got := poller.DeviceCount(); got != 0 {
		t.Errorf("DeviceCount() = %d, want 0", got)
	}
}

func TestPollerDeliversSamples(t *testing.T) {
	src := &stubSource{}
	poller := NewPoller(src, 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.StartPollingDevice(ctx, Device{ID: "dev-1", Name: "Basement Sump"})

	select {
	case sample := <-poller.Samples():
		if sample.Device.ID != "dev-1" {
			t.Errorf("sample device = %q, want dev-1", sample.Device.ID)
		}
		if sample.Reading.Distance != 300 {
			t.Errorf("sample distance = %v, want 300", sample.Reading.Distance)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sample delivered")
	}

	poller.Stop()
	if src.calls.Load() == 0 {
		t.Error("source was never sampled")
	}
}

func TestPollerStopClosesChannel(t *testing.T) {
	poller := NewPoller(&stubSource{}, time.Hour, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.StartPollingDevice(ctx, Device{ID: "dev-1"})

	poller.Stop()

	if _, ok := <-poller.Samples(); ok {
		t.Error("samples channel should be closed after Stop")
	}

	// Stop is idempotent.
	poller.Stop()

	if poller.StartPollingDevice(ctx, Device{ID: "dev-9"}) {
		t.Error("StartPollingDevice() after Stop should refuse")
	}
}

func TestSetIntervalUnknownDevice(t *testing.T) {
	poller := NewPoller(&stubSource{}, time.Hour, 10)
	defer poller.Stop()

	// Must not panic or block.
	poller.SetInterval("missing", 30*time.Second)
	poller.SetInterval("missing", 0)
}

func TestSetIntervalTakesEffect(t *testing.T) {
	src := &stubSource{}
	poller := NewPoller(src, time.Hour, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.StartPollingDevice(ctx, Device{ID: "dev-1"})

	// The worker is waiting on an hour-long timer; shrinking the interval
	// applies on the next tick, so no sample arrives yet. Verify the
	// update is accepted and the latest value wins.
	poller.SetInterval("dev-1", 50*time.Millisecond)
	poller.SetInterval("dev-1", 20*time.Millisecond)

	poller.Stop()
}

func TestSimulatedSourceProducesCycles(t *testing.T) {
	src := NewSimulatedSource(1)

	devices, err := src.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Devices() returned %d devices, want 1", len(devices))
	}

	// Enough samples to cross the full mark at least once.
	sawCycle := false
	for i := 0; i < 60; i++ {
		sample, err := src.Sample(context.Background(), devices[0])
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		if sample.Reading.Time.IsZero() {
			t.Fatal("sample reading has zero time")
		}
		if len(sample.Cycles) > 0 {
			sawCycle = true
		}
	}
	if !sawCycle {
		t.Error("simulated basin never cycled in 60 samples")
	}
}

func TestSimulatedSourceSampleErrors(t *testing.T) {
	src := NewSimulatedSource(1)

	_, err := src.Sample(context.Background(), Device{})
	if !apperrors.IsTelemetryError(err) {
		t.Errorf("Sample() with empty device ID error = %T, want TelemetryError", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Sample(ctx, Device{ID: "dev-1"})
	if !apperrors.IsTelemetryError(err) {
		t.Errorf("Sample() with cancelled context error = %T, want TelemetryError", err)
	}
	if _, err := src.Devices(ctx); !apperrors.IsTelemetryError(err) {
		t.Errorf("Devices() with cancelled context error = %T, want TelemetryError", err)
	}
}
