// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package interfaces

import "context"

// Notifier defines the interface for sending operational notifications.
type Notifier interface {
	// SendCriticalAlert notifies about an unacknowledged critical device
	// alert
	SendCriticalAlert(ctx context.Context, deviceName, alertID string) error

	// SendInfluxDBFailure notifies that time-series writes started failing
	SendInfluxDBFailure(ctx context.Context, err error) error

	// SendInfluxDBRecovery notifies that time-series writes recovered
	SendInfluxDBRecovery(ctx context.Context) error

	// SendCacheWarning notifies that the local fallback cache is filling
	SendCacheWarning(ctx context.Context, cacheSize, maxSize int64) error

	// IsEnabled reports whether notifications are configured
	IsEnabled() bool
}
