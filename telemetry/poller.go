// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
	"github.com/patrickjcash/sump-pump-logger/pkg/metrics"
)

const intervalChannelSize = 1

// Poller runs one polling goroutine per device and publishes samples on a
// buffered channel. Each device has its own interval, adjusted at runtime
// by the adaptive selector; an interval change takes effect on the next
// tick.
type Poller struct {
	defaultInterval time.Duration
	samples         chan *Sample
	workers         map[string]*deviceWorker
	mu              sync.RWMutex
	wg              sync.WaitGroup
	stopped         bool
	source          Source
}

type deviceWorker struct {
	cancel   context.CancelFunc
	interval chan time.Duration
}

// NewPoller creates a poller reading from the given source.
func NewPoller(source Source, defaultInterval time.Duration, channelSize int) *Poller {
	return &Poller{
		defaultInterval: defaultInterval,
		samples:         make(chan *Sample, channelSize),
		workers:         make(map[string]*deviceWorker),
		source:          source,
	}
}

// StartPollingDevice starts a polling goroutine for a device if one is not
// already running. Returns true if a new goroutine was started.
func (p *Poller) StartPollingDevice(ctx context.Context, device Device) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}
	if _, exists := p.workers[device.ID]; exists {
		logger.Debug().Str("device_id", device.ID).Str("device_name", device.Name).
			Msg("Device already being polled, skipping")
		return false
	}

	deviceCtx, cancel := context.WithCancel(ctx)
	worker := &deviceWorker{
		cancel:   cancel,
		interval: make(chan time.Duration, intervalChannelSize),
	}
	p.workers[device.ID] = worker

	logger.Info().Str("device_id", device.ID).Str("device_name", device.Name).
		Dur("interval", p.defaultInterval).
		Msg("Starting polling for device")

	p.wg.Add(1)
	go p.pollDevice(deviceCtx, device, worker)
	return true
}

// StopPollingDevice stops the polling goroutine for a device.
func (p *Poller) StopPollingDevice(deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if worker, exists := p.workers[deviceID]; exists {
		worker.cancel()
		delete(p.workers, deviceID)
		logger.Info().Str("device_id", deviceID).Msg("Stopped polling device")
	}
}

// IsPolling reports whether a device currently has a polling goroutine.
func (p *Poller) IsPolling(deviceID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.workers[deviceID]
	return exists
}

// DeviceCount returns the number of devices being polled.
func (p *Poller) DeviceCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// SetInterval updates a device's polling interval. The change applies from
// the next tick; calling it for an unknown device is a no-op.
func (p *Poller) SetInterval(deviceID string, interval time.Duration) {
	if interval <= 0 {
		return
	}

	p.mu.RLock()
	worker, exists := p.workers[deviceID]
	p.mu.RUnlock()
	if !exists {
		return
	}

	// Keep only the latest requested interval.
	select {
	case worker.interval <- interval:
	default:
		select {
		case <-worker.interval:
		default:
		}
		select {
		case worker.interval <- interval:
		default:
		}
	}
}

// Samples returns the channel on which collected samples are published.
func (p *Poller) Samples() <-chan *Sample {
	return p.samples
}

// Stop cancels all polling goroutines, waits for them to exit, and closes
// the samples channel.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for id, worker := range p.workers {
		worker.cancel()
		delete(p.workers, id)
	}
	p.mu.Unlock()

	p.wg.Wait()
	close(p.samples)
}

// pollDevice polls a single device until its context is cancelled.
func (p *Poller) pollDevice(ctx context.Context, device Device, worker *deviceWorker) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.workers, device.ID)
		p.mu.Unlock()
	}()

	interval := p.defaultInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case next := <-worker.interval:
			if next != interval {
				logger.Info().Str("device_id", device.ID).
					Dur("previous", interval).Dur("interval", next).
					Msg("Polling interval updated")
				interval = next
			}
		case <-timer.C:
			if ctx.Err() != nil {
				return
			}

			start := time.Now()
			sample, err := p.source.Sample(ctx, device)
			metrics.SampleDuration.Observe(time.Since(start).Seconds())

			if err != nil {
				logger.Error().Err(err).Str("device_id", device.ID).
					Str("device_name", device.Name).
					Msg("Error sampling device")
				metrics.SampleErrors.Inc()
			} else {
				metrics.SamplesTotal.Inc()
				select {
				case p.samples <- sample:
				default:
					logger.Warn().Str("device_id", device.ID).
						Msg("Samples channel full, dropping sample")
					metrics.SamplesDropped.Inc()
				}
			}

			timer.Reset(interval)
		}
	}
}
