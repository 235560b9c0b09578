// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package pump

import (
	"testing"
	"time"
)

func TestHistoryBounded(t *testing.T) {
	var h history
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < HistorySize*3; i++ {
		h.record(Reading{Distance: float64(i), Time: base.Add(time.Duration(i) * time.Minute)})
		if h.len() > HistorySize {
			t.Fatalf("history grew to %d entries after %d records", h.len(), i+1)
		}
	}

	if h.len() != HistorySize {
		t.Fatalf("history length = %d, want %d", h.len(), HistorySize)
	}

	// Oldest evicted: the buffer holds the most recent 24 readings in order.
	snap := h.snapshot()
	if snap[0].Distance != float64(HistorySize*2) {
		t.Errorf("oldest retained distance = %v, want %v", snap[0].Distance, HistorySize*2)
	}
	if snap[len(snap)-1].Distance != float64(HistorySize*3-1) {
		t.Errorf("newest retained distance = %v, want %v", snap[len(snap)-1].Distance, HistorySize*3-1)
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Distance != snap[i-1].Distance+1 {
			t.Fatalf("retained readings out of order at index %d", i)
		}
	}
}

func TestHistorySnapshotIsCopy(t *testing.T) {
	var h history
	h.record(Reading{Distance: 100})

	snap := h.snapshot()
	snap[0].Distance = 999

	if h.readings[0].Distance != 100 {
		t.Error("mutating a snapshot must not touch the buffer")
	}
}
