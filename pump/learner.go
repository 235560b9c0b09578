// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package pump

import (
	"sort"
	"sync"

	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
)

// Saver receives a full copy of the learner state after every observation.
// Implementations are expected to persist it asynchronously; a failed save
// never rolls back the in-memory state.
type Saver interface {
	Save(state State)
}

// Observation is the outcome of feeding one reading through the learner.
type Observation struct {
	DeviceID  string
	Reading   Reading
	OnEvent   bool
	OffEvent  bool
	Threshold ThresholdState
	Fullness  Fullness
}

// deviceState is everything the learner tracks for one device.
type deviceState struct {
	history   history
	threshold ThresholdState
}

// Learner owns per-device distance history and threshold state. It is an
// explicit store handed to collaborators rather than ambient coordinator
// state, which keeps the update path testable: construct one, feed it
// readings, assert on the observations.
//
// Updates for a single device are serialized by contract (one update cycle
// runs to completion before the next); the internal mutex additionally
// protects the device map when different devices are polled concurrently.
type Learner struct {
	mu       sync.Mutex
	detector *Detector
	devices  map[string]*deviceState
	saver    Saver
}

// NewLearner creates a learner with the given event threshold in
// millimeters. The saver may be nil, in which case state is kept in memory
// only.
func NewLearner(eventThreshold float64, saver Saver) *Learner {
	return &Learner{
		detector: NewDetector(eventThreshold),
		devices:  make(map[string]*deviceState),
		saver:    saver,
	}
}

// Restore replaces the learner's state with a previously persisted copy.
// Intended to run once at process start, before any observation. Histories
// longer than the retention window are truncated to the most recent
// entries.
func (l *Learner) Restore(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.devices = make(map[string]*deviceState)
	for id, readings := range state.History {
		dev := l.device(id)
		if len(readings) > HistorySize {
			readings = readings[len(readings)-HistorySize:]
		}
		dev.history.readings = append([]Reading(nil), readings...)
	}
	for id, ts := range state.Thresholds {
		l.device(id).threshold = ts.clone()
	}

	logger.Info().
		Int("devices", len(l.devices)).
		Msg("Restored learner state")
}

// Observe runs one full update cycle for a device: record the reading,
// detect pump events against the retained window, update thresholds,
// compute fullness, and trigger a state save. It never fails; insufficient
// history simply produces an observation with no events.
func (l *Learner) Observe(deviceID string, r Reading) Observation {
	l.mu.Lock()

	dev := l.device(deviceID)
	dev.history.record(r)

	window := dev.history.readings
	onEvent, offEvent := l.detector.Detect(window, &dev.threshold)

	obs := Observation{
		DeviceID:  deviceID,
		Reading:   r,
		OnEvent:   onEvent,
		OffEvent:  offEvent,
		Threshold: dev.threshold.clone(),
		Fullness:  ComputeFullness(r.Distance, dev.threshold),
	}

	var state State
	if l.saver != nil {
		state = l.stateLocked()
	}
	l.mu.Unlock()

	if onEvent {
		logger.Info().
			Str("device_id", deviceID).
			Float64("distance_mm", r.Distance).
			Float64("on_distance_mm", *obs.Threshold.OnDistance).
			Int("on_event_count", obs.Threshold.OnEventCount).
			Msg("Pump ON event detected")
	}
	if offEvent {
		logger.Info().
			Str("device_id", deviceID).
			Float64("distance_mm", r.Distance).
			Float64("off_distance_mm", *obs.Threshold.OffDistance).
			Int("off_event_count", obs.Threshold.OffEventCount).
			Msg("Pump OFF event detected")
	}

	if l.saver != nil {
		l.saver.Save(state)
	}

	return obs
}

// Snapshot returns a copy of the retained readings for a device, oldest
// first. Unknown devices yield an empty slice.
func (l *Learner) Snapshot(deviceID string) []Reading {
	l.mu.Lock()
	defer l.mu.Unlock()

	dev, ok := l.devices[deviceID]
	if !ok {
		return []Reading{}
	}
	return dev.history.snapshot()
}

// Threshold returns a copy of the threshold state for a device and whether
// the device is known.
func (l *Learner) Threshold(deviceID string) (ThresholdState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dev, ok := l.devices[deviceID]
	if !ok {
		return ThresholdState{}, false
	}
	return dev.threshold.clone(), true
}

// State returns a deep copy of the full learner state.
func (l *Learner) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

// DeviceIDs returns the known device identifiers in stable order.
func (l *Learner) DeviceIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.devices))
	for id := range l.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// device returns the state for a device, creating it on first sight.
// Callers must hold the mutex.
func (l *Learner) device(deviceID string) *deviceState {
	dev, ok := l.devices[deviceID]
	if !ok {
		dev = &deviceState{}
		l.devices[deviceID] = dev
	}
	return dev
}

// stateLocked deep-copies the full state. Callers must hold the mutex.
func (l *Learner) stateLocked() State {
	state := State{
		Thresholds: make(map[string]ThresholdState, len(l.devices)),
		History:    make(map[string][]Reading, len(l.devices)),
	}
	for id, dev := range l.devices {
		state.Thresholds[id] = dev.threshold.clone()
		state.History[id] = dev.history.snapshot()
	}
	return state
}
