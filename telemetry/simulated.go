// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package telemetry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	apperrors "github.com/patrickjcash/sump-pump-logger/pkg/errors"
	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
	"github.com/patrickjcash/sump-pump-logger/pump"
)

const (
	simEmptyDistance  = 420.0 // mm, water surface right after a pump run
	simFullDistance   = 240.0 // mm, water surface when the pump engages
	simFillRateMin    = 5.0   // mm of rise per sample, low inflow
	simFillRateRange  = 25.0  // additional mm of rise per sample
	simNoiseRange     = 4.0   // measurement jitter, ±2mm
	simCycleRetention = 40    // cycles kept per simulated device
	simAlertChance    = 0.01  // per-sample probability of a warning alert
)

// SimulatedSource generates plausible basin behavior: inflow raises the
// water level (distance falls) until the full mark, then a simulated pump
// run drains the basin back to empty and records a cycle.
//
// NOTE: This stands in for the vendor cloud client. A production source
// would authenticate against the vendor API, trigger a device shadow
// refresh, and read the reported telemetry back; that plumbing is
// deliberately kept behind the Source interface.
type SimulatedSource struct {
	mu      sync.Mutex
	devices []Device
	basins  map[string]*simBasin
}

type simBasin struct {
	distance float64
	cycles   []PumpCycle
	alerts   []Alert
}

// NewSimulatedSource creates a source with the given number of simulated
// devices.
func NewSimulatedSource(deviceCount int) *SimulatedSource {
	if deviceCount <= 0 {
		deviceCount = 1
	}

	s := &SimulatedSource{basins: make(map[string]*simBasin)}
	for i := 0; i < deviceCount; i++ {
		s.devices = append(s.devices, Device{
			ID:       simDeviceID(i),
			ClientID: int64(100000 + i),
			Name:     simDeviceName(i),
		})
	}
	return s
}

// Devices lists the simulated devices.
func (s *SimulatedSource) Devices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTelemetryError("list devices", "", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out, nil
}

// Sample advances the simulated basin one step and returns the resulting
// telemetry.
func (s *SimulatedSource) Sample(ctx context.Context, device Device) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTelemetryError("sample", device.ID, err)
	}
	if device.ID == "" {
		return nil, apperrors.NewTelemetryError("sample", "", apperrors.ErrDeviceNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	basin, ok := s.basins[device.ID]
	if !ok {
		basin = &simBasin{distance: simEmptyDistance}
		s.basins[device.ID] = basin
	}

	now := time.Now()

	// Inflow: water rises, distance to the sensor shrinks.
	basin.distance -= simFillRateMin + rand.Float64()*simFillRateRange

	// Pump engages at the full mark and drains the basin in one step,
	// which is exactly how a real cycle looks at these poll rates.
	if basin.distance <= simFullDistance {
		basin.distance = simEmptyDistance
		basin.cycles = append(basin.cycles, PumpCycle{
			Time:        now,
			Volume:      8 + rand.Float64()*4,
			VolumeUnits: "gal",
			Pump:        "primary",
		})
		if len(basin.cycles) > simCycleRetention {
			basin.cycles = basin.cycles[1:]
		}
		logger.Debug().
			Str("device_id", device.ID).
			Msg("Simulated pump cycle")
	}

	if rand.Float64() < simAlertChance {
		basin.alerts = append(basin.alerts, Alert{
			ID:       simAlertID(now),
			Severity: SeverityWarning,
			State:    "triggered.unlack",
		})
	}

	distance := basin.distance + (rand.Float64()-0.5)*simNoiseRange

	sample := &Sample{
		Device:         device,
		Reading:        pump.Reading{Distance: distance, Time: now},
		Alerts:         append([]Alert(nil), basin.alerts...),
		Cycles:         append([]PumpCycle(nil), basin.cycles...),
		BatteryPercent: 90 + rand.Float64()*10,
		Connected:      true,
	}

	return sample, nil
}

func simDeviceID(i int) string {
	return "sim-0000-" + string(rune('a'+i)) + "-basin"
}

func simDeviceName(i int) string {
	return "Simulated Sump Monitor " + string(rune('1'+i))
}

func simAlertID(t time.Time) string {
	return "sim-alert-" + t.UTC().Format("20060102T150405")
}
