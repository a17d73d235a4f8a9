package domain

import "context"

// DeviceReader resolves devices by id and lists them.
type DeviceReader interface {
	DeviceByID(ctx context.Context, id int) (Device, error)
	Devices(ctx context.Context) ([]Device, error)
}

// SensorReader resolves sensors by id and lists them, optionally per device.
type SensorReader interface {
	SensorByID(ctx context.Context, id int) (Sensor, error)
	Sensors(ctx context.Context) ([]Sensor, error)
	SensorsByDevice(ctx context.Context, deviceID int) ([]Sensor, error)
}

// CatalogReader is the device/sensor view consumed by the metrics exporter.
type CatalogReader interface {
	Devices(ctx context.Context) ([]Device, error)
	SensorsByDevice(ctx context.Context, deviceID int) ([]Sensor, error)
}

// MeasurementWriter persists a single measurement row.
type MeasurementWriter interface {
	InsertMeasurement(ctx context.Context, row MeasurementRow) error
}

// LatestReader returns the most recent joined measurement for a key.
type LatestReader interface {
	LatestMeasurement(ctx context.Context, key MeasurementKey) (Measurement, error)
}

// MeasurementReader exposes the read queries served by the API.
type MeasurementReader interface {
	LatestReader
	Measurements(ctx context.Context) ([]Measurement, error)
	LatestOverall(ctx context.Context) (Measurement, error)
	CountMeasurements(ctx context.Context) (int, error)
	MeasurementsByDevice(ctx context.Context, deviceID int) ([]Measurement, error)
	MeasurementsByKey(ctx context.Context, key MeasurementKey) ([]Measurement, error)
	StatsByKey(ctx context.Context, key MeasurementKey) (MeasurementStats, error)
	DeviceSensorPairs(ctx context.Context) ([]MeasurementKey, error)
}

// DeviceWriter manages device rows.
type DeviceWriter interface {
	CreateDevice(ctx context.Context, device NewDevice) (Device, error)
	UpdateDevice(ctx context.Context, device Device) error
	DeleteDevice(ctx context.Context, id int) error
}

// SensorWriter manages sensor rows.
type SensorWriter interface {
	CreateSensor(ctx context.Context, sensor NewSensor) (Sensor, error)
	UpdateSensor(ctx context.Context, sensor Sensor) error
	DeleteSensor(ctx context.Context, id int) error
}

// ViewRefresherStore recomputes a materialized view.
type ViewRefresherStore interface {
	RefreshView(ctx context.Context, name string) error
}

// PoolStatter reports the size of the shared connection pool.
type PoolStatter interface {
	OpenConnections() int
}

// InsertStore is everything the insert worker needs from storage.
type InsertStore interface {
	DeviceReader
	SensorReader
	MeasurementWriter
}

// Store aggregates every capability of the persistent store.
type Store interface {
	InsertStore
	MeasurementReader
	DeviceWriter
	SensorWriter
	ViewRefresherStore
	PoolStatter
	Close() error
}

// Enqueuer admits measurements into the ingestion queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, m NewMeasurement) error
}

// IngestService describes the two ingestion paths exposed to transports.
// Enqueue only confirms admission; Persist confirms durability.
type IngestService interface {
	Enqueue(ctx context.Context, req IngestRequest) (Admission, error)
	Persist(ctx context.Context, req IngestRequest) (Persisted, error)
}

// MeasurementService describes the read behaviour exposed to transports.
type MeasurementService interface {
	All(ctx context.Context) ([]Measurement, error)
	Latest(ctx context.Context) (Measurement, error)
	LatestAll(ctx context.Context) ([]Measurement, error)
	Count(ctx context.Context) (int, error)
	ByDevice(ctx context.Context, deviceID int) ([]Measurement, error)
	ByDeviceSensor(ctx context.Context, key MeasurementKey) ([]Measurement, error)
	LatestByDeviceSensor(ctx context.Context, key MeasurementKey) (Measurement, error)
	Stats(ctx context.Context, key MeasurementKey) (MeasurementStats, error)
}

// CatalogService describes device and sensor management.
type CatalogService interface {
	Devices(ctx context.Context) ([]Device, error)
	CreateDevice(ctx context.Context, device NewDevice) (Device, error)
	UpdateDevice(ctx context.Context, device Device) error
	DeleteDevice(ctx context.Context, id int) error
	SensorsByDevice(ctx context.Context, deviceID int) ([]Sensor, error)
	Sensors(ctx context.Context) ([]Sensor, error)
	CreateSensor(ctx context.Context, sensor NewSensor) (Sensor, error)
	UpdateSensor(ctx context.Context, sensor Sensor) error
	DeleteSensor(ctx context.Context, id int) error
}

// BackgroundTask is a long-lived loop started at process start.
type BackgroundTask interface {
	Run(ctx context.Context)
}
