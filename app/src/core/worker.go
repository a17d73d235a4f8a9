package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

const DefaultStoreTimeout = 5 * time.Second

// Drop stages reported on the insert error counter.
const (
	StageResolveDevice = "resolve_device"
	StageResolveSensor = "resolve_sensor"
	StagePersist       = "persist"
)

// InsertWorker is the single consumer of the ingestion queue. It resolves
// metadata, writes the enriched measurement to the cache and then to the
// store. Failed items are dropped, never retried.
type InsertWorker struct {
	store        domain.InsertStore
	cache        *MeasurementCache
	logger       Logger
	storeTimeout time.Duration
	now          func() time.Time

	processed atomic.Int64
	dropped   atomic.Int64
}

// WorkerOption customises an InsertWorker.
type WorkerOption func(*InsertWorker)

// WithStoreTimeout bounds every store call made for one item.
func WithStoreTimeout(d time.Duration) WorkerOption {
	return func(w *InsertWorker) {
		if d > 0 {
			w.storeTimeout = d
		}
	}
}

// WithClock replaces the clock used to stamp measurements without a timestamp.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *InsertWorker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewInsertWorker(store domain.InsertStore, cache *MeasurementCache, logger Logger, opts ...WorkerOption) *InsertWorker {
	w := &InsertWorker{
		store:        store,
		cache:        cache,
		logger:       logger,
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes items until the channel is closed and drained, or ctx ends.
func (w *InsertWorker) Run(ctx context.Context, items <-chan domain.NewMeasurement) {
	for {
		select {
		case <-ctx.Done():
			w.log(ctx, "insert worker: context cancelled: %v", ctx.Err())
			return
		case msg, ok := <-items:
			if !ok {
				w.log(ctx, "insert worker: queue drained")
				return
			}
			infra.SetQueueDepth(len(items))
			w.handle(ctx, msg)
		}
	}
}

func (w *InsertWorker) handle(ctx context.Context, msg domain.NewMeasurement) {
	if _, err := w.Process(ctx, msg); err != nil {
		w.dropped.Add(1)
		infra.IncInsertError(dropStage(err))
		w.warn(ctx, "insert worker: dropped measurement device=%d sensor=%d: %v", msg.DeviceID, msg.SensorID, err)
		return
	}
	w.processed.Add(1)
}

// Process runs one item through resolve, cache write and persist. The cache
// is written before the store, so a failed persist can leave a cached value
// that was never stored.
func (w *InsertWorker) Process(ctx context.Context, msg domain.NewMeasurement) (domain.Measurement, error) {
	device, err := w.resolveDevice(ctx, msg.DeviceID)
	if err != nil {
		return domain.Measurement{}, &domain.ResolutionError{Kind: domain.ResolveDevice, ID: msg.DeviceID, Err: err}
	}

	sensor, err := w.resolveSensor(ctx, msg.SensorID)
	if err != nil {
		return domain.Measurement{}, &domain.ResolutionError{Kind: domain.ResolveSensor, ID: msg.SensorID, Err: err}
	}

	ts := w.now().UTC()
	if msg.Timestamp != nil {
		ts = msg.Timestamp.UTC()
	}

	measurement := domain.Measurement{
		Timestamp:      ts,
		Value:          msg.Value,
		Unit:           sensor.Unit,
		DeviceName:     device.Name,
		DeviceLocation: device.Location,
		SensorName:     sensor.Name,
	}

	w.cache.Insert(msg.Key(), measurement)

	row := domain.MeasurementRow{Timestamp: ts, DeviceID: device.ID, SensorID: sensor.ID, Value: msg.Value}
	if err := w.persist(ctx, row); err != nil {
		return measurement, &domain.PersistError{Key: msg.Key(), Err: err}
	}

	infra.IncNewMeasurements()
	return measurement, nil
}

func (w *InsertWorker) resolveDevice(ctx context.Context, id int) (domain.Device, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.storeTimeout)
	defer cancel()
	return w.store.DeviceByID(callCtx, id)
}

func (w *InsertWorker) resolveSensor(ctx context.Context, id int) (domain.Sensor, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.storeTimeout)
	defer cancel()
	return w.store.SensorByID(callCtx, id)
}

func (w *InsertWorker) persist(ctx context.Context, row domain.MeasurementRow) error {
	callCtx, cancel := context.WithTimeout(ctx, w.storeTimeout)
	defer cancel()
	return w.store.InsertMeasurement(callCtx, row)
}

// Processed reports items stored by Run.
func (w *InsertWorker) Processed() int64 {
	return w.processed.Load()
}

// Dropped reports items discarded by Run.
func (w *InsertWorker) Dropped() int64 {
	return w.dropped.Load()
}

func dropStage(err error) string {
	var resolution *domain.ResolutionError
	if errors.As(err, &resolution) {
		if resolution.Kind == domain.ResolveSensor {
			return StageResolveSensor
		}
		return StageResolveDevice
	}
	return StagePersist
}

func (w *InsertWorker) log(ctx context.Context, format string, v ...any) {
	if w.logger != nil {
		w.logger.Printf(ctx, format, v...)
	}
}

func (w *InsertWorker) warn(ctx context.Context, format string, v ...any) {
	if w.logger != nil {
		w.logger.Warnf(ctx, format, v...)
	}
}
