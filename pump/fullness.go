// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package pump

// Fullness is a basin fullness percentage derived from learned thresholds.
// Valid is false whenever the thresholds cannot support the computation;
// callers must surface that as an explicit unavailable state rather than
// substituting zero.
type Fullness struct {
	Percent float64
	Valid   bool
}

// ComputeFullness maps a current distance reading onto a 0-100 percentage
// between the learned OFF (empty) and ON (full) thresholds.
//
// The mapping is sign-agnostic: it makes no assumption about which
// threshold is numerically larger, so it works regardless of sensor
// orientation. Readings beyond either threshold clamp to exactly 0 or 100.
// Unset or degenerate (equal) thresholds yield an invalid result, never a
// division by zero.
func ComputeFullness(currentDistance float64, state ThresholdState) Fullness {
	if !state.Learned() {
		return Fullness{}
	}

	full := *state.OnDistance
	empty := *state.OffDistance
	if full == empty {
		return Fullness{}
	}

	fraction := (currentDistance - empty) / (full - empty)
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	return Fullness{Percent: fraction * 100, Valid: true}
}
