// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package pump

// HistorySize is the number of distance readings retained per device.
// Detection compares each new reading against everything in this window, so
// the window bounds how far back an event can reach.
const HistorySize = 24

// history is a bounded, append-only sequence of the most recent readings
// for one device. Oldest entry is evicted once capacity is exceeded.
type history struct {
	readings []Reading
}

// record appends a reading, evicting the oldest once the buffer is full.
// It always succeeds.
func (h *history) record(r Reading) {
	h.readings = append(h.readings, r)
	if len(h.readings) > HistorySize {
		h.readings = h.readings[1:]
	}
}

// snapshot returns a copy of the retained readings, oldest first.
func (h *history) snapshot() []Reading {
	out := make([]Reading, len(h.readings))
	copy(out, h.readings)
	return out
}

func (h *history) len() int {
	return len(h.readings)
}
