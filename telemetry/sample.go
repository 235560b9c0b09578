// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

// Package telemetry defines the device sample model and the polling layer
// that feeds the pump learner. The vendor cloud transport itself lives
// behind the Source interface.
package telemetry

import (
	"strings"
	"time"

	"github.com/patrickjcash/sump-pump-logger/pump"
)

// Severity classifies a device alert. Informational alerts never influence
// polling; only warning and critical ones do.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a vendor severity string. Unknown values are
// treated as informational so a new vendor severity can never tighten the
// polling loop by accident.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "warning", "warn":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Alert is one entry from a device's alert map.
type Alert struct {
	ID       string
	Severity Severity
	// State is the raw vendor alert state. Unacknowledged alerts carry an
	// "unlack" marker in this string (vendor spelling).
	State string
}

// Unacknowledged reports whether the user has not yet acknowledged the
// alert, which matches the mobile app's badge behavior.
func (a Alert) Unacknowledged() bool {
	return strings.Contains(a.State, "unlack")
}

// PumpCycle is one completed pump run reported by the device.
type PumpCycle struct {
	Time        time.Time
	Volume      float64
	VolumeUnits string
	Pump        string // "primary" or "backup"
}

// Device identifies one sump monitor. The vendor addresses the same
// hardware by two identifiers: a UUID used by the data APIs and a numeric
// client ID used by the shadow/command path.
type Device struct {
	ID       string
	ClientID int64
	Name     string
}

// Sample is everything collected from a device in one poll cycle.
type Sample struct {
	Device         Device
	Reading        pump.Reading
	Alerts         []Alert
	Cycles         []PumpCycle
	BatteryPercent float64
	Connected      bool
}

// Activity condenses the sample's alert and cycle state into the input of
// the poll interval selector. Informational and acknowledged alerts are
// excluded; only cycles within the window count as recent.
func (s *Sample) Activity(window time.Duration, now time.Time) pump.Activity {
	var a pump.Activity

	for _, alert := range s.Alerts {
		if !alert.Unacknowledged() {
			continue
		}
		switch alert.Severity {
		case SeverityCritical:
			a.CriticalAlert = true
			a.ActionableAlert = true
		case SeverityWarning:
			a.ActionableAlert = true
		}
	}

	cutoff := now.Add(-window)
	for _, cycle := range s.Cycles {
		if cycle.Time.After(cutoff) {
			a.RecentCycles++
		}
	}

	return a
}

// CriticalAlerts returns the unacknowledged critical alerts in the sample.
func (s *Sample) CriticalAlerts() []Alert {
	var out []Alert
	for _, alert := range s.Alerts {
		if alert.Unacknowledged() && alert.Severity == SeverityCritical {
			out = append(out, alert)
		}
	}
	return out
}
