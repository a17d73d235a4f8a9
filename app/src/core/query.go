package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hemrs/app/src/domain"
)

// MeasurementQueries serves the measurement read endpoints. Latest reads
// per pair go through the cache.
type MeasurementQueries struct {
	store        domain.MeasurementReader
	latest       *ReadThrough
	storeTimeout time.Duration
}

var _ domain.MeasurementService = (*MeasurementQueries)(nil)

func NewMeasurementQueries(store domain.MeasurementReader, latest *ReadThrough, storeTimeout time.Duration) *MeasurementQueries {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &MeasurementQueries{store: store, latest: latest, storeTimeout: storeTimeout}
}

func (s *MeasurementQueries) All(ctx context.Context) ([]domain.Measurement, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.Measurements(ctx)
}

func (s *MeasurementQueries) Latest(ctx context.Context) (domain.Measurement, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.LatestOverall(ctx)
}

// LatestAll returns the latest reading of every known device/sensor pair.
// Pairs without any reading are skipped.
func (s *MeasurementQueries) LatestAll(ctx context.Context) ([]domain.Measurement, error) {
	pairs, err := s.pairs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Measurement, 0, len(pairs))
	for _, key := range pairs {
		m, err := s.latest.Latest(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest for device %d sensor %d: %w", key.DeviceID, key.SensorID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *MeasurementQueries) pairs(ctx context.Context) ([]domain.MeasurementKey, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.DeviceSensorPairs(ctx)
}

func (s *MeasurementQueries) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.CountMeasurements(ctx)
}

func (s *MeasurementQueries) ByDevice(ctx context.Context, deviceID int) ([]domain.Measurement, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.MeasurementsByDevice(ctx, deviceID)
}

func (s *MeasurementQueries) ByDeviceSensor(ctx context.Context, key domain.MeasurementKey) ([]domain.Measurement, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.MeasurementsByKey(ctx, key)
}

func (s *MeasurementQueries) LatestByDeviceSensor(ctx context.Context, key domain.MeasurementKey) (domain.Measurement, error) {
	return s.latest.Latest(ctx, key)
}

func (s *MeasurementQueries) Stats(ctx context.Context, key domain.MeasurementKey) (domain.MeasurementStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.StatsByKey(ctx, key)
}

// CatalogStore is the storage needed for device and sensor management.
type CatalogStore interface {
	domain.DeviceReader
	domain.SensorReader
	domain.DeviceWriter
	domain.SensorWriter
}

// Catalog validates and forwards device and sensor management.
type Catalog struct {
	store        CatalogStore
	storeTimeout time.Duration
}

var _ domain.CatalogService = (*Catalog)(nil)

func NewCatalog(store CatalogStore, storeTimeout time.Duration) *Catalog {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Catalog{store: store, storeTimeout: storeTimeout}
}

func (c *Catalog) Devices(ctx context.Context) ([]domain.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.Devices(ctx)
}

func (c *Catalog) CreateDevice(ctx context.Context, device domain.NewDevice) (domain.Device, error) {
	if err := device.Validate(); err != nil {
		return domain.Device{}, fmt.Errorf("device: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.CreateDevice(ctx, device)
}

func (c *Catalog) UpdateDevice(ctx context.Context, device domain.Device) error {
	if device.ID <= 0 {
		return fmt.Errorf("device: %w: missing id", domain.ErrInvalidInput)
	}
	if err := (domain.NewDevice{Name: device.Name, Location: device.Location}).Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.UpdateDevice(ctx, device)
}

func (c *Catalog) DeleteDevice(ctx context.Context, id int) error {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.DeleteDevice(ctx, id)
}

// SensorsByDevice fails with ErrNotFound when the device does not exist.
func (c *Catalog) SensorsByDevice(ctx context.Context, deviceID int) ([]domain.Sensor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	if _, err := c.store.DeviceByID(ctx, deviceID); err != nil {
		return nil, err
	}
	return c.store.SensorsByDevice(ctx, deviceID)
}

func (c *Catalog) Sensors(ctx context.Context) ([]domain.Sensor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.Sensors(ctx)
}

func (c *Catalog) CreateSensor(ctx context.Context, sensor domain.NewSensor) (domain.Sensor, error) {
	if err := sensor.Validate(); err != nil {
		return domain.Sensor{}, fmt.Errorf("sensor: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.CreateSensor(ctx, sensor)
}

func (c *Catalog) UpdateSensor(ctx context.Context, sensor domain.Sensor) error {
	if sensor.ID <= 0 {
		return fmt.Errorf("sensor: %w: missing id", domain.ErrInvalidInput)
	}
	if err := (domain.NewSensor{Name: sensor.Name, Unit: sensor.Unit}).Validate(); err != nil {
		return fmt.Errorf("sensor: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.UpdateSensor(ctx, sensor)
}

func (c *Catalog) DeleteSensor(ctx context.Context, id int) error {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.DeleteSensor(ctx, id)
}
