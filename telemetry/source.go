// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package telemetry

import "context"

// Source produces devices and samples. Implementations own all vendor
// transport concerns (authentication, shadow refresh, retries); the poller
// only cares that a sample eventually comes back or an error does.
type Source interface {
	// Devices lists the sump monitors visible to the account.
	Devices(ctx context.Context) ([]Device, error)

	// Sample collects one full telemetry sample for a device.
	Sample(ctx context.Context, device Device) (*Sample, error)
}
