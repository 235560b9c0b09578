// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package slacknotifier

import (
	"context"
	"fmt"
)

// Adapter exposes the notifier through the domain-facing interface used by
// the storage and alerting layers.
type Adapter struct {
	notifier *Notifier
}

// NewAdapter creates a new adapter.
func NewAdapter(notifier *Notifier) *Adapter {
	return &Adapter{notifier: notifier}
}

// SendCriticalAlert notifies about an unacknowledged critical device alert.
func (a *Adapter) SendCriticalAlert(ctx context.Context, deviceName, alertID string) error {
	return a.notifier.SendAlert(ctx, "critical", "🚨 Critical Sump Pump Alert",
		fmt.Sprintf("Device %q raised critical alert %s. Check the basin immediately.", deviceName, alertID))
}

// SendInfluxDBFailure sends an alert when InfluxDB writes start failing.
func (a *Adapter) SendInfluxDBFailure(ctx context.Context, err error) error {
	return a.notifier.SendAlert(ctx, "danger", "⚠️ InfluxDB Write Failure",
		fmt.Sprintf("Failed to write to InfluxDB: %v\nReadings will be cached locally until the connection recovers.", err))
}

// SendInfluxDBRecovery sends an alert when InfluxDB writes recover.
func (a *Adapter) SendInfluxDBRecovery(ctx context.Context) error {
	return a.notifier.SendAlert(ctx, "good", "✅ InfluxDB Connection Restored",
		"Connection to InfluxDB has been restored. Cached readings will be replayed.")
}

// SendCacheWarning sends an alert when local cache usage is high.
func (a *Adapter) SendCacheWarning(ctx context.Context, cacheSize, maxSize int64) error {
	percentage := float64(cacheSize) / float64(maxSize) * 100
	return a.notifier.SendAlert(ctx, "warning", "⚠️ Local Cache Usage High",
		fmt.Sprintf("Cache size: %d bytes (%.1f%% of max %d bytes)\nInfluxDB may be unavailable for an extended period.",
			cacheSize, percentage, maxSize))
}

// IsEnabled returns whether Slack notifications are enabled
func (a *Adapter) IsEnabled() bool {
	return a.notifier.IsEnabled()
}
