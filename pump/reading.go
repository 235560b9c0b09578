// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

// Package pump implements pump event detection and threshold learning for
// sump basin monitors. A basin is observed through a stream of distance
// readings (sensor to water surface); discrete pump ON/OFF transitions are
// detected from large distance changes and folded into two learned
// thresholds, which in turn drive a basin fullness percentage and an
// adaptive polling interval.
package pump

import "time"

// Reading is a single timestamped distance measurement in millimeters.
// Smaller distance means a fuller basin for this sensor orientation, but
// nothing in this package relies on that sign.
type Reading struct {
	Distance float64   `json:"distance"`
	Time     time.Time `json:"time"`
}

// Method describes how a device's thresholds were derived.
type Method string

const (
	// MethodUnknown means no pump event has ever been observed.
	MethodUnknown Method = "unknown"

	// MethodEventDetection means at least one ON or OFF event has been
	// folded into the thresholds.
	MethodEventDetection Method = "event_detection"
)

// ThresholdState holds the learned pump thresholds for one device.
//
// OnDistance is the distance at which the basin is full (pump about to
// start), OffDistance the distance at which it has just been emptied.
// Neither is guaranteed to be numerically smaller than the other. Once set,
// a threshold only changes through the weighted update rule; it never
// resets except by wiping the whole state.
type ThresholdState struct {
	OnDistance       *float64
	OffDistance      *float64
	OnEventCount     int
	OffEventCount    int
	LastOnEventTime  *time.Time
	LastOffEventTime *time.Time
}

// Method returns the threshold derivation method for this state.
func (s ThresholdState) Method() Method {
	if s.OnEventCount > 0 || s.OffEventCount > 0 {
		return MethodEventDetection
	}
	return MethodUnknown
}

// Learned reports whether both thresholds have been established.
func (s ThresholdState) Learned() bool {
	return s.OnDistance != nil && s.OffDistance != nil
}

// clone deep-copies the state so callers can hold snapshots without
// aliasing the learner's mutable pointers.
func (s ThresholdState) clone() ThresholdState {
	c := s
	if s.OnDistance != nil {
		v := *s.OnDistance
		c.OnDistance = &v
	}
	if s.OffDistance != nil {
		v := *s.OffDistance
		c.OffDistance = &v
	}
	if s.LastOnEventTime != nil {
		t := *s.LastOnEventTime
		c.LastOnEventTime = &t
	}
	if s.LastOffEventTime != nil {
		t := *s.LastOffEventTime
		c.LastOffEventTime = &t
	}
	return c
}

// State is a point-in-time copy of every device's history and thresholds,
// the unit of persistence for the learner.
type State struct {
	Thresholds map[string]ThresholdState
	History    map[string][]Reading
}
