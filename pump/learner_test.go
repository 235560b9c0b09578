// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package pump

import (
	"sync"
	"testing"
	"time"
)

// recordingSaver captures every state handed to Save.
type recordingSaver struct {
	mu     sync.Mutex
	states []State
}

func (s *recordingSaver) Save(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *recordingSaver) last() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return State{}, false
	}
	return s.states[len(s.states)-1], true
}

func observeSequence(l *Learner, deviceID string, distances ...float64) Observation {
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	var last Observation
	for i, d := range distances {
		last = l.Observe(deviceID, Reading{Distance: d, Time: base.Add(time.Duration(i) * time.Minute)})
	}
	return last
}

func TestObserveColdStart(t *testing.T) {
	l := NewLearner(DefaultEventThreshold, nil)

	obs := observeSequence(l, "dev-1", 300)
	if obs.OnEvent || obs.OffEvent {
		t.Error("first-ever reading must not produce events")
	}
	if obs.Fullness.Valid {
		t.Error("fullness must be unavailable before any event")
	}
	if obs.Threshold.Method() != MethodUnknown {
		t.Errorf("Method() = %v, want %v", obs.Threshold.Method(), MethodUnknown)
	}
}

func TestObserveLearnsThresholds(t *testing.T) {
	l := NewLearner(DefaultEventThreshold, nil)

	// Basin fills (distance drops 100mm), pump runs, basin empties
	// (distance jumps 150mm).
	obs := observeSequence(l, "dev-1", 350, 250)
	if !obs.OnEvent {
		t.Fatal("expected ON event from 100mm drop")
	}
	if *obs.Threshold.OnDistance != 250 {
		t.Errorf("OnDistance = %v, want 250", *obs.Threshold.OnDistance)
	}

	obs = l.Observe("dev-1", Reading{Distance: 400, Time: time.Now()})
	if !obs.OffEvent {
		t.Fatal("expected OFF event from 150mm jump")
	}
	if *obs.Threshold.OffDistance != 400 {
		t.Errorf("OffDistance = %v, want 400", *obs.Threshold.OffDistance)
	}

	// Both thresholds known: fullness becomes available.
	obs = l.Observe("dev-1", Reading{Distance: 400, Time: time.Now()})
	if !obs.Fullness.Valid {
		t.Error("fullness should be available once both thresholds are learned")
	}
	if obs.Fullness.Percent != 0 {
		t.Errorf("fullness at the empty threshold = %v, want 0", obs.Fullness.Percent)
	}
}

func TestObserveTriggersSave(t *testing.T) {
	saver := &recordingSaver{}
	l := NewLearner(DefaultEventThreshold, saver)

	observeSequence(l, "dev-1", 300, 310, 320)

	saver.mu.Lock()
	n := len(saver.states)
	saver.mu.Unlock()
	if n != 3 {
		t.Fatalf("Save called %d times, want once per reading (3)", n)
	}

	state, _ := saver.last()
	if len(state.History["dev-1"]) != 3 {
		t.Errorf("saved history length = %d, want 3", len(state.History["dev-1"]))
	}
}

func TestDevicesAreIndependent(t *testing.T) {
	l := NewLearner(DefaultEventThreshold, nil)

	observeSequence(l, "dev-a", 350, 250)
	observeSequence(l, "dev-b", 500, 505)

	tsA, ok := l.Threshold("dev-a")
	if !ok || tsA.OnEventCount != 1 {
		t.Errorf("dev-a OnEventCount = %d, want 1", tsA.OnEventCount)
	}
	tsB, ok := l.Threshold("dev-b")
	if !ok || tsB.OnEventCount != 0 || tsB.OffEventCount != 0 {
		t.Errorf("dev-b events = (%d, %d), want none", tsB.OnEventCount, tsB.OffEventCount)
	}

	if ids := l.DeviceIDs(); len(ids) != 2 || ids[0] != "dev-a" || ids[1] != "dev-b" {
		t.Errorf("DeviceIDs() = %v, want [dev-a dev-b]", ids)
	}
}

func TestSnapshotUnknownDevice(t *testing.T) {
	l := NewLearner(DefaultEventThreshold, nil)

	if snap := l.Snapshot("missing"); len(snap) != 0 {
		t.Errorf("Snapshot(unknown) = %v, want empty", snap)
	}
	if _, ok := l.Threshold("missing"); ok {
		t.Error("Threshold(unknown) should report not found")
	}
}

// Event counts survive a simulated restart: state saved from one learner
// and restored into a fresh one keeps accumulating instead of resetting.
func TestRestoreContinuesAccumulating(t *testing.T) {
	saver := &recordingSaver{}
	first := NewLearner(DefaultEventThreshold, saver)
	observeSequence(first, "dev-1", 350, 250, 400) // one ON, one OFF

	persisted, ok := saver.last()
	if !ok {
		t.Fatal("no state saved")
	}

	second := NewLearner(DefaultEventThreshold, nil)
	second.Restore(persisted)

	ts, ok := second.Threshold("dev-1")
	if !ok {
		t.Fatal("restored device missing")
	}
	if ts.OnEventCount != 1 || ts.OffEventCount != 1 {
		t.Fatalf("restored counts = (%d, %d), want (1, 1)", ts.OnEventCount, ts.OffEventCount)
	}
	if len(second.Snapshot("dev-1")) != 3 {
		t.Fatalf("restored history length = %d, want 3", len(second.Snapshot("dev-1")))
	}

	// A fresh OFF event on the restored learner increments, not resets.
	obs := second.Observe("dev-1", Reading{Distance: 460, Time: time.Now()})
	if !obs.OffEvent {
		t.Fatal("expected OFF event after restore")
	}
	if obs.Threshold.OffEventCount != 2 {
		t.Errorf("OffEventCount after restore = %d, want 2", obs.Threshold.OffEventCount)
	}
	// Weighted continuation from the persisted estimate: 400*0.8 + 460*0.2.
	if *obs.Threshold.OffDistance != 412.0 {
		t.Errorf("OffDistance after restore = %v, want 412.0", *obs.Threshold.OffDistance)
	}
}

func TestRestoreTruncatesOversizedHistory(t *testing.T) {
	long := make([]Reading, HistorySize*2)
	for i := range long {
		long[i] = Reading{Distance: float64(i)}
	}

	l := NewLearner(DefaultEventThreshold, nil)
	l.Restore(State{History: map[string][]Reading{"dev-1": long}})

	snap := l.Snapshot("dev-1")
	if len(snap) != HistorySize {
		t.Fatalf("restored history length = %d, want %d", len(snap), HistorySize)
	}
	if snap[0].Distance != float64(HistorySize) {
		t.Errorf("oldest restored distance = %v, want %v", snap[0].Distance, HistorySize)
	}
}

func TestStateIsDeepCopy(t *testing.T) {
	l := NewLearner(DefaultEventThreshold, nil)
	observeSequence(l, "dev-1", 350, 250)

	state := l.State()
	*state.Thresholds["dev-1"].OnDistance = 999
	state.History["dev-1"][0].Distance = 999

	ts, _ := l.Threshold("dev-1")
	if *ts.OnDistance == 999 {
		t.Error("mutating a State copy must not touch the learner's thresholds")
	}
	if l.Snapshot("dev-1")[0].Distance == 999 {
		t.Error("mutating a State copy must not touch the learner's history")
	}
}
