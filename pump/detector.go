// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package pump

const (
	// DefaultEventThreshold is the distance change, in millimeters, that
	// counts as a pump event. Real pump cycles move the water surface far
	// more than sensor noise does; 50mm separates the two cleanly for
	// typical residential basins. Tunable per basin geometry via config.
	DefaultEventThreshold = 50.0

	// Weighted update coefficients: established thresholds move slowly
	// toward new observations so a single odd reading cannot drag them.
	previousWeight = 0.8
	observedWeight = 0.2
)

// Detector classifies new distance readings as pump ON or OFF events and
// folds detections into a device's ThresholdState.
//
// A new reading is compared against every older reading still retained, not
// just the immediately preceding one: at slow poll rates a pump cycle can
// straddle several samples, and consecutive-only comparison misses those
// events. Which older reading crossed the threshold is irrelevant; only
// that the window contains a crossing.
type Detector struct {
	threshold float64
}

// NewDetector creates a detector with the given event threshold in
// millimeters. Non-positive values fall back to DefaultEventThreshold.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultEventThreshold
	}
	return &Detector{threshold: threshold}
}

// Threshold returns the configured event threshold in millimeters.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Detect examines the newest reading against all older readings in the
// window and updates the threshold state in place. The window must already
// contain the new reading as its last element. It reports whether an ON
// and/or an OFF event was recorded.
//
// Detection never fails: a window with fewer than two readings is a no-op.
func (d *Detector) Detect(window []Reading, state *ThresholdState) (onEvent, offEvent bool) {
	if len(window) < 2 {
		return false, false
	}

	current := window[len(window)-1]
	for _, older := range window[:len(window)-1] {
		delta := current.Distance - older.Distance

		// Water rose toward the sensor: basin filled, pump about to run.
		if delta <= -d.threshold {
			onEvent = true
		}
		// Water fell away from the sensor: pump just emptied the basin.
		if delta >= d.threshold {
			offEvent = true
		}
		if onEvent && offEvent {
			break
		}
	}

	// However many pairs crossed, each threshold updates at most once per
	// reading, always toward the newest observation.
	if onEvent {
		state.OnDistance = weightedUpdate(state.OnDistance, current.Distance)
		state.OnEventCount++
		t := current.Time
		state.LastOnEventTime = &t
	}
	if offEvent {
		state.OffDistance = weightedUpdate(state.OffDistance, current.Distance)
		state.OffEventCount++
		t := current.Time
		state.LastOffEventTime = &t
	}

	return onEvent, offEvent
}

// weightedUpdate blends an observed distance into an existing estimate. The
// first event of a type adopts the observation exactly.
func weightedUpdate(previous *float64, observed float64) *float64 {
	v := observed
	if previous != nil {
		v = *previous*previousWeight + observed*observedWeight
	}
	return &v
}
