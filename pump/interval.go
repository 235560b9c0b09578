// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package pump

import "time"

// Default adaptive polling bounds. A busy basin is polled every few tens of
// seconds, an idle one every few minutes, and an actionable alert keeps the
// interval capped until it is acknowledged.
const (
	DefaultMinInterval  = 10 * time.Second
	DefaultMaxInterval  = 5 * time.Minute
	DefaultAlertCeiling = 60 * time.Second
	DefaultActivityBase = 180 * time.Second
	DefaultCycleWindow  = 15 * time.Minute
)

// IntervalConfig holds the tunable boundaries for the interval selector.
type IntervalConfig struct {
	// Min is the shortest permitted interval, used while a critical alert
	// is outstanding.
	Min time.Duration

	// Max is the idle interval, used when nothing is happening.
	Max time.Duration

	// AlertCeiling caps the interval while an unacknowledged warning or
	// critical alert is present.
	AlertCeiling time.Duration

	// ActivityBase is the numerator of the activity formula: the interval
	// during pump activity is ActivityBase divided by the number of
	// recent cycles, clamped to [Min, Max].
	ActivityBase time.Duration

	// CycleWindow is how far back a pump cycle counts as "recent".
	CycleWindow time.Duration
}

// withDefaults fills any unset field.
func (c IntervalConfig) withDefaults() IntervalConfig {
	if c.Min <= 0 {
		c.Min = DefaultMinInterval
	}
	if c.Max <= 0 {
		c.Max = DefaultMaxInterval
	}
	if c.AlertCeiling <= 0 {
		c.AlertCeiling = DefaultAlertCeiling
	}
	if c.ActivityBase <= 0 {
		c.ActivityBase = DefaultActivityBase
	}
	if c.CycleWindow <= 0 {
		c.CycleWindow = DefaultCycleWindow
	}
	return c
}

// Activity summarizes the alert and pump state that drives interval
// selection. Informational alerts must not be folded into either flag.
type Activity struct {
	// CriticalAlert is true when an unacknowledged critical-severity
	// alert is outstanding.
	CriticalAlert bool

	// ActionableAlert is true when an unacknowledged warning- or
	// critical-severity alert is outstanding.
	ActionableAlert bool

	// RecentCycles is the number of pump cycles within the cycle window.
	RecentCycles int
}

// IntervalSelector maps alert state and recent pump activity to a polling
// period. It is a pure function of its inputs; scheduling is the caller's
// concern.
type IntervalSelector struct {
	cfg IntervalConfig
}

// NewIntervalSelector creates a selector, applying defaults for any unset
// configuration field.
func NewIntervalSelector(cfg IntervalConfig) *IntervalSelector {
	return &IntervalSelector{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration after defaulting.
func (s *IntervalSelector) Config() IntervalConfig {
	return s.cfg
}

// Interval picks the polling period for the given activity summary.
//
// Precedence: a critical alert always wins and yields the minimum interval;
// any other actionable alert caps the activity-derived interval at the
// alert ceiling; recent pump activity shortens the interval on its own; an
// idle basin polls at the maximum.
func (s *IntervalSelector) Interval(a Activity) time.Duration {
	if a.CriticalAlert {
		return s.cfg.Min
	}

	interval := s.activityInterval(a.RecentCycles)

	if a.ActionableAlert && interval > s.cfg.AlertCeiling {
		interval = s.cfg.AlertCeiling
	}

	return interval
}

// activityInterval computes ActivityBase / cycles clamped to [Min, Max].
func (s *IntervalSelector) activityInterval(cycles int) time.Duration {
	if cycles <= 0 {
		return s.cfg.Max
	}

	interval := s.cfg.ActivityBase / time.Duration(cycles)
	if interval < s.cfg.Min {
		interval = s.cfg.Min
	}
	if interval > s.cfg.Max {
		interval = s.cfg.Max
	}
	return interval
}
