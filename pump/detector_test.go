// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package pump

import (
	"testing"
	"time"
)

func readingsAt(distances ...float64) []Reading {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	out := make([]Reading, len(distances))
	for i, d := range distances {
		out[i] = Reading{Distance: d, Time: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestDetectInsufficientHistory(t *testing.T) {
	d := NewDetector(DefaultEventThreshold)

	var state ThresholdState
	on, off := d.Detect(readingsAt(300), &state)
	if on || off {
		t.Errorf("Detect() with single reading = (%v, %v), want no events", on, off)
	}
	if state.OnEventCount != 0 || state.OffEventCount != 0 {
		t.Errorf("event counts changed on insufficient history: on=%d off=%d",
			state.OnEventCount, state.OffEventCount)
	}
	if state.Method() != MethodUnknown {
		t.Errorf("Method() = %v, want %v", state.Method(), MethodUnknown)
	}

	on, off = d.Detect(nil, &state)
	if on || off {
		t.Errorf("Detect() with empty window = (%v, %v), want no events", on, off)
	}
}

func TestDetectOnEvent(t *testing.T) {
	d := NewDetector(DefaultEventThreshold)

	var state ThresholdState
	on, off := d.Detect(readingsAt(300, 240), &state)
	if !on {
		t.Error("drop of 60mm should record an ON event")
	}
	if off {
		t.Error("drop of 60mm should not record an OFF event")
	}
	if state.OnDistance == nil || *state.OnDistance != 240 {
		t.Errorf("OnDistance = %v, want first event to adopt the observation exactly (240)", state.OnDistance)
	}
	if state.OnEventCount != 1 {
		t.Errorf("OnEventCount = %d, want 1", state.OnEventCount)
	}
	if state.LastOnEventTime == nil {
		t.Error("LastOnEventTime not set")
	}
	if state.Method() != MethodEventDetection {
		t.Errorf("Method() = %v, want %v", state.Method(), MethodEventDetection)
	}
}

func TestDetectOffEvent(t *testing.T) {
	d := NewDetector(DefaultEventThreshold)

	var state ThresholdState
	on, off := d.Detect(readingsAt(240, 310), &state)
	if on {
		t.Error("jump of 70mm should not record an ON event")
	}
	if !off {
		t.Error("jump of 70mm should record an OFF event")
	}
	if state.OffDistance == nil || *state.OffDistance != 310 {
		t.Errorf("OffDistance = %v, want 310", state.OffDistance)
	}
	if state.OffEventCount != 1 {
		t.Errorf("OffEventCount = %d, want 1", state.OffEventCount)
	}
}

// A drop of exactly the threshold counts: the comparison is delta <= -50,
// not strictly less.
func TestDetectExactBoundary(t *testing.T) {
	d := NewDetector(50.0)

	var state ThresholdState
	window := readingsAt(300, 300, 250)
	on, _ := d.Detect(window, &state)
	if !on {
		t.Error("drop of exactly 50mm must record an ON event")
	}
	if state.OnEventCount != 1 {
		t.Errorf("OnEventCount = %d, want 1", state.OnEventCount)
	}

	state = ThresholdState{}
	on, _ = d.Detect(readingsAt(300, 251), &state)
	if on {
		t.Error("drop of 49mm must not record an ON event")
	}

	state = ThresholdState{}
	_, off := d.Detect(readingsAt(250, 300), &state)
	if !off {
		t.Error("jump of exactly 50mm must record an OFF event")
	}
}

// The new reading is compared against every retained reading, not just the
// previous one: a slow drain across several polls still crosses somewhere
// in the window.
func TestDetectAgainstFullWindow(t *testing.T) {
	d := NewDetector(50.0)

	// Each consecutive step is only 20mm, but the newest reading is 60mm
	// below the oldest retained one.
	var state ThresholdState
	on, _ := d.Detect(readingsAt(300, 280, 260, 240), &state)
	if !on {
		t.Error("gradual drop exceeding the threshold across the window must record an ON event")
	}
}

func TestDetectBothEventsFromOneReading(t *testing.T) {
	d := NewDetector(50.0)

	// 200 is 100 below the first reading (ON) and 100 above the second
	// (OFF); both thresholds update exactly once.
	var state ThresholdState
	on, off := d.Detect(readingsAt(300, 100, 200), &state)
	if !on || !off {
		t.Fatalf("Detect() = (%v, %v), want both events", on, off)
	}
	if state.OnEventCount != 1 || state.OffEventCount != 1 {
		t.Errorf("event counts = (%d, %d), want (1, 1)",
			state.OnEventCount, state.OffEventCount)
	}
	if *state.OnDistance != 200 || *state.OffDistance != 200 {
		t.Errorf("thresholds = (%v, %v), want both 200",
			*state.OnDistance, *state.OffDistance)
	}
}

func TestWeightedUpdateExact(t *testing.T) {
	prev := 100.0
	got := weightedUpdate(&prev, 120.0)
	if *got != 104.0 {
		t.Errorf("weightedUpdate(100, 120) = %v, want 104.0", *got)
	}

	got = weightedUpdate(nil, 120.0)
	if *got != 120.0 {
		t.Errorf("weightedUpdate(nil, 120) = %v, want 120.0", *got)
	}
}

func TestDetectWeightedAccumulation(t *testing.T) {
	d := NewDetector(50.0)

	state := ThresholdState{}
	d.Detect(readingsAt(300, 100), &state) // first ON event at 100

	// Second ON event at 120: 100*0.8 + 120*0.2 = 104.
	window := readingsAt(300, 100, 300, 120)
	// Only the last reading matters for detection; reuse the helper but
	// detect on the final window directly.
	on, _ := d.Detect(window, &state)
	if !on {
		t.Fatal("expected ON event")
	}
	if *state.OnDistance != 104.0 {
		t.Errorf("OnDistance after weighted update = %v, want 104.0", *state.OnDistance)
	}
	if state.OnEventCount != 2 {
		t.Errorf("OnEventCount = %d, want 2", state.OnEventCount)
	}
}

func TestNewDetectorDefaultThreshold(t *testing.T) {
	d := NewDetector(0)
	if d.Threshold() != DefaultEventThreshold {
		t.Errorf("Threshold() = %v, want %v", d.Threshold(), DefaultEventThreshold)
	}

	d = NewDetector(100.0)
	if d.Threshold() != 100.0 {
		t.Errorf("Threshold() = %v, want 100", d.Threshold())
	}
}
