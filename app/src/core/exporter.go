package core

import (
	"context"
	"errors"
	"time"

	"hemrs/app/src/domain"
)

const (
	DefaultExportInterval  = 10 * time.Second
	DefaultStalenessWindow = 300 * time.Second

	exporterTask = "metrics_exporter"
)

// GaugeSink receives the values published on every exporter tick.
type GaugeSink interface {
	PublishMeasurements(readings []domain.GaugeReading)
	SetPoolSize(n int)
	SetCacheSize(n int)
}

// ConditionalReader returns the latest measurement for a key when admit
// accepts it.
type ConditionalReader interface {
	LatestIf(ctx context.Context, key domain.MeasurementKey, admit func(domain.Measurement) bool) (domain.Measurement, bool, error)
}

// ExportReport summarises one exporter tick.
type ExportReport struct {
	At        time.Time
	Devices   int
	Pairs     int
	Published int
	Stale     int
	Missing   int
	Failures  int
}

// MetricsExporter publishes the latest fresh reading of every device/sensor
// pair together with pool and cache sizes.
type MetricsExporter struct {
	catalog      domain.CatalogReader
	reader       ConditionalReader
	sink         GaugeSink
	pool         domain.PoolStatter
	cache        *MeasurementCache
	logger       Logger
	interval     time.Duration
	window       time.Duration
	storeTimeout time.Duration
	now          func() time.Time

	// published holds the readings of the last successful tick. Tick is
	// only called from one goroutine.
	published []publishedReading
}

type publishedReading struct {
	reading domain.GaugeReading
	at      time.Time
}

type ExporterOption func(*MetricsExporter)

func WithExportInterval(d time.Duration) ExporterOption {
	return func(e *MetricsExporter) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithStalenessWindow sets how old a reading may be and still be published.
func WithStalenessWindow(d time.Duration) ExporterOption {
	return func(e *MetricsExporter) {
		if d > 0 {
			e.window = d
		}
	}
}

func WithExporterStoreTimeout(d time.Duration) ExporterOption {
	return func(e *MetricsExporter) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

func WithExporterClock(now func() time.Time) ExporterOption {
	return func(e *MetricsExporter) {
		if now != nil {
			e.now = now
		}
	}
}

func NewMetricsExporter(catalog domain.CatalogReader, reader ConditionalReader, sink GaugeSink, pool domain.PoolStatter, cache *MeasurementCache, logger Logger, opts ...ExporterOption) *MetricsExporter {
	e := &MetricsExporter{
		catalog:      catalog,
		reader:       reader,
		sink:         sink,
		pool:         pool,
		cache:        cache,
		logger:       logger,
		interval:     DefaultExportInterval,
		window:       DefaultStalenessWindow,
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run publishes on every interval until ctx is cancelled.
func (e *MetricsExporter) Run(ctx context.Context) {
	RunPeriodic(ctx, PeriodicTask{
		Name:     exporterTask,
		Interval: e.interval,
		Tick: func(ctx context.Context) error {
			_, err := e.Tick(ctx)
			return err
		},
	}, e.logger)
}

// Tick performs one export. Only a failure to list devices fails the tick;
// per-device and per-pair failures are logged and skipped.
func (e *MetricsExporter) Tick(ctx context.Context) (ExportReport, error) {
	now := e.now()
	report := ExportReport{At: now}

	if e.pool != nil {
		e.sink.SetPoolSize(e.pool.OpenConnections())
	}
	if e.cache != nil {
		e.sink.SetCacheSize(e.cache.Len())
	}

	cutoff := now.Add(-e.window)

	devices, err := e.devices(ctx)
	if err != nil {
		report.Published = e.republish(cutoff)
		return report, &domain.TickError{Task: exporterTask, Err: err}
	}
	report.Devices = len(devices)

	fresh := func(m domain.Measurement) bool {
		return !m.Timestamp.Before(cutoff)
	}

	published := make([]publishedReading, 0, len(devices))
	readings := make([]domain.GaugeReading, 0, len(devices))
	for _, device := range devices {
		sensors, err := e.sensors(ctx, device.ID)
		if err != nil {
			report.Failures++
			warnf(ctx, e.logger, "metrics exporter: sensors for device %d: %v", device.ID, err)
			continue
		}

		for _, sensor := range sensors {
			report.Pairs++
			key := domain.MeasurementKey{DeviceID: device.ID, SensorID: sensor.ID}

			m, admitted, err := e.reader.LatestIf(ctx, key, fresh)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				report.Missing++
				continue
			case err != nil:
				report.Failures++
				warnf(ctx, e.logger, "metrics exporter: latest for device %d sensor %d: %v", key.DeviceID, key.SensorID, err)
				continue
			case !admitted:
				report.Stale++
				continue
			}

			reading := domain.GaugeFromMeasurement(m)
			readings = append(readings, reading)
			published = append(published, publishedReading{reading: reading, at: m.Timestamp})
		}
	}

	e.sink.PublishMeasurements(readings)
	e.published = published
	report.Published = len(readings)
	return report, nil
}

// republish keeps the readings of the last good tick that are still inside
// the window, so an unreachable catalog cannot pin stale gauges.
func (e *MetricsExporter) republish(cutoff time.Time) int {
	kept := e.published[:0]
	readings := make([]domain.GaugeReading, 0, len(e.published))
	for _, p := range e.published {
		if p.at.Before(cutoff) {
			continue
		}
		kept = append(kept, p)
		readings = append(readings, p.reading)
	}
	e.published = kept
	e.sink.PublishMeasurements(readings)
	return len(readings)
}

func (e *MetricsExporter) devices(ctx context.Context) ([]domain.Device, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.catalog.Devices(callCtx)
}

func (e *MetricsExporter) sensors(ctx context.Context, deviceID int) ([]domain.Sensor, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.catalog.SensorsByDevice(callCtx, deviceID)
}
