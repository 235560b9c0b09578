// Copyright (c) 2025 Patrick Cash
// Licensed under the MIT License

// Package app wires the telemetry poller, pump learner, storage and
// publishing layers into the running service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/patrickjcash/sump-pump-logger/config"
	"github.com/patrickjcash/sump-pump-logger/hass"
	"github.com/patrickjcash/sump-pump-logger/pkg/interfaces"
	"github.com/patrickjcash/sump-pump-logger/pkg/logger"
	"github.com/patrickjcash/sump-pump-logger/pkg/metrics"
	"github.com/patrickjcash/sump-pump-logger/pkg/slacknotifier"
	"github.com/patrickjcash/sump-pump-logger/pump"
	"github.com/patrickjcash/sump-pump-logger/storage"
	"github.com/patrickjcash/sump-pump-logger/telemetry"
)

const (
	signalChannelSize     = 1
	alertContextTimeout   = 5 * time.Second
	readinessCheckTimeout = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
	flushTimeout          = 10 * time.Second
)

// App represents the main application
type App struct {
	cfg         *config.Config
	configPath  string
	metricsPort string
	server      *http.Server

	source     telemetry.Source
	poller     *telemetry.Poller
	learner    *pump.Learner
	selector   *pump.IntervalSelector
	stateStore *storage.StateStore
	db         *storage.CachingStorage
	influxDB   interfaces.TimeSeriesStorage
	slack      *slacknotifier.Notifier
	notifier   interfaces.Notifier
	publisher  *hass.Publisher

	configWatcher *config.Watcher
	configChan    chan *config.Config

	// Critical alert IDs already sent to Slack, per device
	alertMu     sync.Mutex
	seenAlerts  map[string]map[string]bool
	knownDevice map[string]telemetry.Device

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new application instance
func New(cfg *config.Config, metricsPort string, configPath string) (*App, error) {
	app := &App{
		cfg:         cfg,
		configPath:  configPath,
		metricsPort: metricsPort,
		seenAlerts:  make(map[string]map[string]bool),
		knownDevice: make(map[string]telemetry.Device),
	}

	if err := app.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	app.configChan = make(chan *config.Config, 1)
	app.configWatcher = config.NewWatcher(configPath, app.configChan)

	return app, nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	a.startMetricsServer()
	a.setupSignalHandler()
	a.startConfigWatcher()
	a.startSampleProcessor(ctx)
	a.performInitialDiscovery(ctx)
	a.runMainLoop(ctx)
}

// initializeComponents initializes all application components
func (a *App) initializeComponents() error {
	// Slack notifier
	a.slack = slacknotifier.New(a.cfg.Notifications.SlackWebhookURL)
	a.notifier = slacknotifier.NewAdapter(a.slack)
	if a.notifier.IsEnabled() {
		logger.Info().Msg("Slack notifications enabled")
	} else {
		logger.Info().Msg("Slack notifications disabled (no webhook URL configured)")
	}

	// InfluxDB storage
	influxDB, err := storage.NewInfluxDBStorage(
		a.cfg.InfluxDB.URL,
		a.cfg.InfluxDB.Token,
		a.cfg.InfluxDB.Organization,
		a.cfg.InfluxDB.Bucket,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize InfluxDB: %w", err)
	}
	a.influxDB = influxDB

	// Local fallback cache
	cache, err := storage.NewLocalCache(
		a.cfg.Cache.Directory,
		a.cfg.Cache.MaxSize,
		a.cfg.Cache.MaxAge,
	)
	if err != nil {
		influxDB.Close()
		return fmt.Errorf("failed to initialize local cache: %w", err)
	}
	logger.Info().Str("directory", a.cfg.Cache.Directory).
		Int64("max_size_mb", a.cfg.Cache.MaxSize/(1024*1024)).
		Dur("max_age", a.cfg.Cache.MaxAge).
		Msg("Local cache initialized")

	a.db = storage.NewCachingStorage(influxDB, cache, a.notifier)

	// Learner state persistence
	a.stateStore, err = storage.NewStateStore(a.cfg.State.Path)
	if err != nil {
		a.db.Close()
		return fmt.Errorf("failed to initialize state store: %w", err)
	}

	a.learner = pump.NewLearner(a.cfg.Learner.EventThresholdMM, a.stateStore)
	restored, err := a.stateStore.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load persisted pump state, starting cold")
	} else {
		a.learner.Restore(restored)
		logger.Info().Int("devices", len(restored.Thresholds)).Msg("Restored pump state")
	}

	a.selector = pump.NewIntervalSelector(pump.IntervalConfig{
		Min:          a.cfg.Polling.MinInterval,
		Max:          a.cfg.Polling.MaxInterval,
		AlertCeiling: a.cfg.Polling.AlertCeiling,
		ActivityBase: a.cfg.Polling.ActivityBase,
		CycleWindow:  a.cfg.Polling.CycleWindow,
	})

	// Telemetry source and poller. Polling always starts at the idle
	// interval; the selector tightens it per device from the first sample.
	a.source = telemetry.NewSimulatedSource(a.cfg.Polling.SimulatedDevices)
	a.poller = telemetry.NewPoller(a.source, a.cfg.Polling.MaxInterval, a.cfg.Polling.SamplesChannelSize)

	// Home Assistant publishing
	if a.cfg.MQTT.Enabled() {
		client, mqttErr := hass.NewClient(hass.ClientConfig{
			Broker:      a.cfg.MQTT.Broker,
			ClientID:    a.cfg.MQTT.ClientID,
			Username:    a.cfg.MQTT.Username,
			Password:    a.cfg.MQTT.Password,
			TopicPrefix: a.cfg.MQTT.TopicPrefix,
			UseTLS:      a.cfg.MQTT.UseTLS,
		})
		if mqttErr != nil {
			a.db.Close()
			return fmt.Errorf("failed to create MQTT client: %w", mqttErr)
		}
		a.publisher = hass.NewPublisher(client)
		if connectErr := a.publisher.Connect(); connectErr != nil {
			// The paho client reconnects on its own; a down broker at
			// startup should not take the logger down with it
			logger.Warn().Err(connectErr).Msg("MQTT broker unreachable, will keep retrying")
		}
	} else {
		logger.Info().Msg("MQTT publishing disabled (no broker configured)")
	}

	// HTTP handlers with rate-limited health endpoints
	healthLimiter := rate.NewLimiter(10, 20)
	readyLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/ready", rateLimitMiddleware(readyLimiter, func(w http.ResponseWriter, r *http.Request) {
		readinessCheckHandler(w, r, a.influxDB)
	}))

	a.server = &http.Server{
		Addr:    "localhost:" + a.metricsPort,
		Handler: mux,
	}

	return nil
}

// startMetricsServer starts the HTTP server for metrics and health checks
func (a *App) startMetricsServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.server.Addr).Msg("Starting metrics and health check server (localhost only)")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// startSampleProcessor starts the goroutine that consumes device samples:
// learning, storage, publishing and interval adaptation all hang off it.
func (a *App) startSampleProcessor(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				logger.Info().Msg("Sample processor shutting down")
				return
			case sample, ok := <-a.poller.Samples():
				if !ok {
					logger.Info().Msg("Samples channel closed, sample processor exiting")
					return
				}
				a.processSample(ctx, sample)
			}
		}
	}()
}

// processSample feeds one sample through the learner and fans the result
// out to metrics, storage, MQTT and notifications.
func (a *App) processSample(ctx context.Context, sample *telemetry.Sample) {
	device := sample.Device
	obs := a.learner.Observe(device.ID, sample.Reading)

	a.recordMetrics(device, sample, obs)

	// Adapt the device's polling interval to its current activity
	activity := sample.Activity(a.selector.Config().CycleWindow, time.Now())
	interval := a.selector.Interval(activity)
	a.poller.SetInterval(device.ID, interval)
	metrics.PollInterval.WithLabelValues(device.ID, device.Name).Set(interval.Seconds())

	// Time-series write (cached locally if InfluxDB is down)
	point := basinPoint(device, sample, obs)
	if err := a.db.WritePoint(ctx, point); err != nil {
		logger.Error().Err(err).Str("device_id", device.ID).Msg("Failed to write basin point")
	}

	a.publishState(device, sample, obs, interval)
	a.notifyCriticalAlerts(device, sample)
}

// recordMetrics updates the per-device gauges and event counters
func (a *App) recordMetrics(device telemetry.Device, sample *telemetry.Sample, obs pump.Observation) {
	labels := []string{device.ID, device.Name}

	metrics.CurrentDistance.WithLabelValues(labels...).Set(sample.Reading.Distance)
	if obs.Fullness.Valid {
		metrics.BasinFullness.WithLabelValues(labels...).Set(obs.Fullness.Percent)
	}
	if obs.Threshold.OnDistance != nil {
		metrics.PumpOnThreshold.WithLabelValues(labels...).Set(*obs.Threshold.OnDistance)
	}
	if obs.Threshold.OffDistance != nil {
		metrics.PumpOffThreshold.WithLabelValues(labels...).Set(*obs.Threshold.OffDistance)
	}
	if obs.OnEvent {
		metrics.PumpOnEventsTotal.WithLabelValues(labels...).Inc()
	}
	if obs.OffEvent {
		metrics.PumpOffEventsTotal.WithLabelValues(labels...).Inc()
	}
}

// basinPoint builds the time-series point for one processed sample
func basinPoint(device telemetry.Device, sample *telemetry.Sample, obs pump.Observation) *interfaces.BasinPoint {
	point := &interfaces.BasinPoint{
		DeviceID:        device.ID,
		DeviceName:      device.Name,
		Timestamp:       sample.Reading.Time,
		Distance:        sample.Reading.Distance,
		BatteryPercent:  sample.BatteryPercent,
		PumpOnDetected:  obs.OnEvent,
		PumpOffDetected: obs.OffEvent,
	}
	if obs.Fullness.Valid {
		point.Fullness = obs.Fullness.Percent
		point.FullnessKnown = true
	}
	if obs.Threshold.OnDistance != nil {
		point.OnDistance = *obs.Threshold.OnDistance
	}
	if obs.Threshold.OffDistance != nil {
		point.OffDistance = *obs.Threshold.OffDistance
	}
	return point
}

// publishState pushes the device state to Home Assistant if MQTT is on
func (a *App) publishState(device telemetry.Device, sample *telemetry.Sample, obs pump.Observation, interval time.Duration) {
	if a.publisher == nil {
		return
	}

	state := &hass.DeviceState{
		Distance:       sample.Reading.Distance,
		BatteryPercent: sample.BatteryPercent,
		OnDistance:     obs.Threshold.OnDistance,
		OffDistance:    obs.Threshold.OffDistance,
		CriticalAlert:  len(sample.CriticalAlerts()) > 0,
		Connected:      sample.Connected,
	}
	if obs.Fullness.Valid {
		state.Fullness = obs.Fullness.Percent
		state.FullnessKnown = true
	}

	attrs := &hass.DeviceAttributes{
		ThresholdMethod:     string(obs.Threshold.Method()),
		OnEventCount:        obs.Threshold.OnEventCount,
		OffEventCount:       obs.Threshold.OffEventCount,
		LastOnEventTime:     obs.Threshold.LastOnEventTime,
		LastOffEventTime:    obs.Threshold.LastOffEventTime,
		PollIntervalSeconds: interval.Seconds(),
	}

	if err := a.publisher.PublishState(device.ID, device.Name, state, attrs); err != nil {
		logger.Warn().Err(err).Str("device_id", device.ID).Msg("Failed to publish state to Home Assistant")
	}
}

// notifyCriticalAlerts sends a Slack message for each critical alert the
// first time it is seen. Acknowledging and re-raising an alert produces a
// new alert ID upstream, so dedup by ID is safe.
func (a *App) notifyCriticalAlerts(device telemetry.Device, sample *telemetry.Sample) {
	critical := sample.CriticalAlerts()
	if len(critical) == 0 || !a.notifier.IsEnabled() {
		return
	}

	a.alertMu.Lock()
	seen := a.seenAlerts[device.ID]
	if seen == nil {
		seen = make(map[string]bool)
		a.seenAlerts[device.ID] = seen
	}
	var fresh []telemetry.Alert
	for _, alert := range critical {
		if !seen[alert.ID] {
			seen[alert.ID] = true
			fresh = append(fresh, alert)
		}
	}
	a.alertMu.Unlock()

	for _, alert := range fresh {
		alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
		if err := a.notifier.SendCriticalAlert(alertCtx, device.Name, alert.ID); err != nil {
			logger.Error().Err(err).Str("alert_id", alert.ID).Msg("Failed to send critical alert notification")
		}
		alertCancel()
	}
}

// setupSignalHandler sets up graceful shutdown on interrupt signals
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		a.performGracefulShutdown()
	}()
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	logger.Info().
		Int("polled_devices", a.poller.DeviceCount()).
		Msg("Polling state")

	for _, deviceID := range a.learner.DeviceIDs() {
		threshold, ok := a.learner.Threshold(deviceID)
		if !ok {
			continue
		}
		a.alertMu.Lock()
		deviceName := a.knownDevice[deviceID].Name
		a.alertMu.Unlock()
		event := logger.Info().
			Str("device_id", deviceID).
			Str("device_name", deviceName).
			Str("method", string(threshold.Method())).
			Int("on_events", threshold.OnEventCount).
			Int("off_events", threshold.OffEventCount).
			Bool("is_polling", a.poller.IsPolling(deviceID))
		if threshold.OnDistance != nil {
			event = event.Float64("on_distance", *threshold.OnDistance)
		}
		if threshold.OffDistance != nil {
			event = event.Float64("off_distance", *threshold.OffDistance)
		}
		event.Msg("Learned pump state")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024) // 1MB buffer
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// runMainLoop runs the periodic device discovery loop
func (a *App) runMainLoop(ctx context.Context) {
	discoveryTicker := time.NewTicker(a.cfg.Polling.DiscoveryInterval)
	defer discoveryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down")
			a.performCleanup()
			return
		case <-discoveryTicker.C:
			if ctx.Err() != nil {
				return
			}
			a.performPeriodicDiscovery(ctx)
		}
	}
}

// performInitialDiscovery lists devices and starts polling each of them
func (a *App) performInitialDiscovery(ctx context.Context) {
	logger.Info().Msg("Performing initial device discovery")

	devices, err := a.source.Devices(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Initial discovery failed, will retry periodically")
		return
	}

	logger.Info().Int("count", len(devices)).Msg("Discovered sump monitors")
	metrics.DevicesDiscovered.Set(float64(len(devices)))

	for _, device := range devices {
		a.startDevice(ctx, device)
	}
	metrics.DevicesPolled.Set(float64(a.poller.DeviceCount()))

	if len(devices) == 0 {
		logger.Warn().Msg("No sump monitors found. Will retry during periodic discovery")
	}
}

// performPeriodicDiscovery re-lists devices and starts polling new ones
func (a *App) performPeriodicDiscovery(ctx context.Context) {
	logger.Info().Msg("Performing periodic device discovery")

	devices, err := a.source.Devices(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Discovery failed")
		return
	}

	newCount := 0
	for _, device := range devices {
		if !a.poller.IsPolling(device.ID) {
			logger.Info().Str("device_id", device.ID).
				Str("device_name", device.Name).
				Msg("Starting polling for new sump monitor")
			a.startDevice(ctx, device)
			newCount++
		}
	}

	logger.Info().Int("total_devices", len(devices)).Int("new_devices", newCount).
		Msg("Discovery complete")
	metrics.DevicesDiscovered.Set(float64(len(devices)))
	metrics.DevicesPolled.Set(float64(a.poller.DeviceCount()))
}

// startDevice begins polling a device and remembers its identity
func (a *App) startDevice(ctx context.Context, device telemetry.Device) {
	a.alertMu.Lock()
	a.knownDevice[device.ID] = device
	a.alertMu.Unlock()
	a.poller.StartPollingDevice(ctx, device)
}

// performGracefulShutdown handles graceful shutdown of all components
func (a *App) performGracefulShutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server stopped")
	}

	a.poller.Stop()
	a.configWatcher.Stop()
	a.cancel()
}

// performCleanup flushes persistence layers and waits for goroutines
func (a *App) performCleanup() {
	// The learner state file carries the learned thresholds across
	// restarts; losing a pending save means relearning
	a.stateStore.Save(a.learner.State())
	a.stateStore.Flush()

	if a.publisher != nil {
		a.publisher.Close()
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), flushTimeout)
	defer flushCancel()

	flushDone := make(chan struct{})
	go func() {
		a.db.Flush()
		close(flushDone)
	}()

	select {
	case <-flushDone:
		logger.Info().Msg("InfluxDB flush completed")
	case <-flushCtx.Done():
		logger.Warn().Msg("InfluxDB flush timeout - some data may be lost")
	}

	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()
	a.db.Close()
	logger.Info().Msg("All goroutines finished, exiting")
}

// startConfigWatcher starts the SIGHUP-driven configuration reload loop
func (a *App) startConfigWatcher() {
	a.configWatcher.Start(a.ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config watcher goroutine shutting down")
				return
			case cfg := <-a.configChan:
				a.cfg = cfg
				logger.Info().Msg("Application configuration updated")

				a.slack.UpdateWebhookURL(cfg.Notifications.SlackWebhookURL)

				// Interval bounds take effect for subsequent samples
				a.selector = pump.NewIntervalSelector(pump.IntervalConfig{
					Min:          cfg.Polling.MinInterval,
					Max:          cfg.Polling.MaxInterval,
					AlertCeiling: cfg.Polling.AlertCeiling,
					ActivityBase: cfg.Polling.ActivityBase,
					CycleWindow:  cfg.Polling.CycleWindow,
				})
				logger.Info().
					Dur("min_interval", cfg.Polling.MinInterval).
					Dur("max_interval", cfg.Polling.MaxInterval).
					Msg("Polling interval bounds updated")
			}
		}
	}()
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}

// readinessCheckHandler handles readiness check requests
func readinessCheckHandler(w http.ResponseWriter, _ *http.Request, db interfaces.TimeSeriesStorage) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessCheckTimeout)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		logger.Warn().Err(err).Msg("Readiness check failed: InfluxDB unhealthy")
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, writeErr := w.Write([]byte("NOT READY: InfluxDB unhealthy")); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
	}
}
