package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"hemrs/app/src/domain"
)

const joinedMeasurementColumns = `
SELECT m.ts AS timestamp, m.value, s.unit, d.name AS device_name, d.location AS device_location, s.name AS sensor_name
FROM measurements m
JOIN devices d ON d.id = m.device_id
JOIN sensors s ON s.id = m.sensor_id`

const (
	selectDeviceByIDSQL = `SELECT id, name, location FROM devices WHERE id = $1`
	selectDevicesSQL    = `SELECT id, name, location FROM devices ORDER BY id`
	insertDeviceSQL     = `INSERT INTO devices (name, location) VALUES ($1, $2) RETURNING id`
	updateDeviceSQL     = `UPDATE devices SET name = $1, location = $2 WHERE id = $3`
	deleteDeviceSQL     = `DELETE FROM devices WHERE id = $1`

	selectSensorByIDSQL = `SELECT id, name, unit FROM sensors WHERE id = $1`
	selectSensorsSQL    = `SELECT id, name, unit FROM sensors ORDER BY id`
	insertSensorSQL     = `INSERT INTO sensors (name, unit) VALUES ($1, $2) RETURNING id`
	updateSensorSQL     = `UPDATE sensors SET name = $1, unit = $2 WHERE id = $3`
	deleteSensorSQL     = `DELETE FROM sensors WHERE id = $1`

	selectSensorsByDeviceSQL = `
SELECT s.id, s.name, s.unit
FROM devices_sensors ds
JOIN sensors s ON s.id = ds.sensor_id
WHERE ds.device_id = $1
ORDER BY s.id`
	selectDeviceSensorPairsSQL = `SELECT device_id, sensor_id FROM devices_sensors ORDER BY device_id, sensor_id`

	insertMeasurementSQL = `INSERT INTO measurements (ts, device_id, sensor_id, value) VALUES ($1, $2, $3, $4)`
	countMeasurementsSQL = `SELECT count(*) FROM measurements`

	selectLatestByKeySQL   = joinedMeasurementColumns + ` WHERE m.device_id = $1 AND m.sensor_id = $2 ORDER BY m.ts DESC LIMIT 1`
	selectLatestOverallSQL = joinedMeasurementColumns + ` ORDER BY m.ts DESC LIMIT 1`
	selectMeasurementsSQL  = joinedMeasurementColumns + ` ORDER BY m.ts`
	selectByDeviceSQL      = joinedMeasurementColumns + ` WHERE m.device_id = $1 ORDER BY m.ts`
	selectByKeySQL         = joinedMeasurementColumns + ` WHERE m.device_id = $1 AND m.sensor_id = $2 ORDER BY m.ts`
	selectStatsByKeySQL    = `
SELECT count(*) AS count,
       COALESCE(min(value), 0) AS min,
       COALESCE(max(value), 0) AS max,
       COALESCE(avg(value), 0) AS mean,
       COALESCE(stddev_samp(value), 0) AS stddev,
       COALESCE(var_samp(value), 0) AS variance
FROM measurements
WHERE device_id = $1 AND sensor_id = $2`
)

// Store implements every persistence contract on one shared sqlx pool.
type Store struct {
	db *sqlx.DB
}

var _ domain.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying pool, mainly for migrations.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) OpenConnections() int {
	return s.db.Stats().OpenConnections
}

func (s *Store) DeviceByID(ctx context.Context, id int) (domain.Device, error) {
	var device domain.Device
	if err := s.db.GetContext(ctx, &device, selectDeviceByIDSQL, id); err != nil {
		return domain.Device{}, mapError("device by id", err)
	}
	return device, nil
}

func (s *Store) Devices(ctx context.Context) ([]domain.Device, error) {
	devices := []domain.Device{}
	if err := s.db.SelectContext(ctx, &devices, selectDevicesSQL); err != nil {
		return nil, mapError("devices", err)
	}
	return devices, nil
}

func (s *Store) CreateDevice(ctx context.Context, device domain.NewDevice) (domain.Device, error) {
	var id int
	if err := s.db.QueryRowxContext(ctx, insertDeviceSQL, device.Name, device.Location).Scan(&id); err != nil {
		return domain.Device{}, mapError("create device", err)
	}
	return domain.Device{ID: id, Name: device.Name, Location: device.Location}, nil
}

func (s *Store) UpdateDevice(ctx context.Context, device domain.Device) error {
	result, err := s.db.ExecContext(ctx, updateDeviceSQL, device.Name, device.Location, device.ID)
	if err != nil {
		return mapError("update device", err)
	}
	return expectAffected("update device", result.RowsAffected)
}

func (s *Store) DeleteDevice(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, deleteDeviceSQL, id)
	if err != nil {
		return mapDeleteError("delete device", err)
	}
	return expectAffected("delete device", result.RowsAffected)
}

func (s *Store) SensorByID(ctx context.Context, id int) (domain.Sensor, error) {
	var sensor domain.Sensor
	if err := s.db.GetContext(ctx, &sensor, selectSensorByIDSQL, id); err != nil {
		return domain.Sensor{}, mapError("sensor by id", err)
	}
	return sensor, nil
}

func (s *Store) Sensors(ctx context.Context) ([]domain.Sensor, error) {
	sensors := []domain.Sensor{}
	if err := s.db.SelectContext(ctx, &sensors, selectSensorsSQL); err != nil {
		return nil, mapError("sensors", err)
	}
	return sensors, nil
}

// SensorsByDevice lists sensors through the association view, so a sensor
// shows up once it has reported and the view has been refreshed.
func (s *Store) SensorsByDevice(ctx context.Context, deviceID int) ([]domain.Sensor, error) {
	sensors := []domain.Sensor{}
	if err := s.db.SelectContext(ctx, &sensors, selectSensorsByDeviceSQL, deviceID); err != nil {
		return nil, mapError("sensors by device", err)
	}
	return sensors, nil
}

func (s *Store) CreateSensor(ctx context.Context, sensor domain.NewSensor) (domain.Sensor, error) {
	var id int
	if err := s.db.QueryRowxContext(ctx, insertSensorSQL, sensor.Name, sensor.Unit).Scan(&id); err != nil {
		return domain.Sensor{}, mapError("create sensor", err)
	}
	return domain.Sensor{ID: id, Name: sensor.Name, Unit: sensor.Unit}, nil
}

func (s *Store) UpdateSensor(ctx context.Context, sensor domain.Sensor) error {
	result, err := s.db.ExecContext(ctx, updateSensorSQL, sensor.Name, sensor.Unit, sensor.ID)
	if err != nil {
		return mapError("update sensor", err)
	}
	return expectAffected("update sensor", result.RowsAffected)
}

func (s *Store) DeleteSensor(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, deleteSensorSQL, id)
	if err != nil {
		return mapDeleteError("delete sensor", err)
	}
	return expectAffected("delete sensor", result.RowsAffected)
}

func (s *Store) InsertMeasurement(ctx context.Context, row domain.MeasurementRow) error {
	if _, err := s.db.ExecContext(ctx, insertMeasurementSQL, row.Timestamp, row.DeviceID, row.SensorID, row.Value); err != nil {
		return mapError("insert measurement", err)
	}
	return nil
}

func (s *Store) LatestMeasurement(ctx context.Context, key domain.MeasurementKey) (domain.Measurement, error) {
	var m domain.Measurement
	if err := s.db.GetContext(ctx, &m, selectLatestByKeySQL, key.DeviceID, key.SensorID); err != nil {
		return domain.Measurement{}, mapError("latest measurement", err)
	}
	return m, nil
}

func (s *Store) LatestOverall(ctx context.Context) (domain.Measurement, error) {
	var m domain.Measurement
	if err := s.db.GetContext(ctx, &m, selectLatestOverallSQL); err != nil {
		return domain.Measurement{}, mapError("latest overall", err)
	}
	return m, nil
}

func (s *Store) Measurements(ctx context.Context) ([]domain.Measurement, error) {
	return s.selectMeasurements(ctx, "measurements", selectMeasurementsSQL)
}

func (s *Store) MeasurementsByDevice(ctx context.Context, deviceID int) ([]domain.Measurement, error) {
	return s.selectMeasurements(ctx, "measurements by device", selectByDeviceSQL, deviceID)
}

func (s *Store) MeasurementsByKey(ctx context.Context, key domain.MeasurementKey) ([]domain.Measurement, error) {
	return s.selectMeasurements(ctx, "measurements by key", selectByKeySQL, key.DeviceID, key.SensorID)
}

func (s *Store) selectMeasurements(ctx context.Context, op, query string, args ...any) ([]domain.Measurement, error) {
	out := []domain.Measurement{}
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

func (s *Store) CountMeasurements(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, countMeasurementsSQL); err != nil {
		return 0, mapError("count measurements", err)
	}
	return n, nil
}

// StatsByKey reports ErrNotFound when the pair has no history.
func (s *Store) StatsByKey(ctx context.Context, key domain.MeasurementKey) (domain.MeasurementStats, error) {
	var stats domain.MeasurementStats
	if err := s.db.GetContext(ctx, &stats, selectStatsByKeySQL, key.DeviceID, key.SensorID); err != nil {
		return domain.MeasurementStats{}, mapError("stats", err)
	}
	if stats.Count == 0 {
		return domain.MeasurementStats{}, fmt.Errorf("postgres store: stats: %w", domain.ErrNotFound)
	}
	return stats, nil
}

type pairRow struct {
	DeviceID int `db:"device_id"`
	SensorID int `db:"sensor_id"`
}

func (s *Store) DeviceSensorPairs(ctx context.Context) ([]domain.MeasurementKey, error) {
	var rows []pairRow
	if err := s.db.SelectContext(ctx, &rows, selectDeviceSensorPairsSQL); err != nil {
		return nil, mapError("device sensor pairs", err)
	}
	out := make([]domain.MeasurementKey, len(rows))
	for i, r := range rows {
		out[i] = domain.MeasurementKey{DeviceID: r.DeviceID, SensorID: r.SensorID}
	}
	return out, nil
}

// RefreshView recomputes the named materialized view.
func (s *Store) RefreshView(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("postgres store: refresh view: name is required")
	}
	if _, err := s.db.ExecContext(ctx, "REFRESH MATERIALIZED VIEW "+pq.QuoteIdentifier(name)); err != nil {
		return mapError("refresh view "+name, err)
	}
	return nil
}

func expectAffected(op string, rowsAffected func() (int64, error)) error {
	n, err := rowsAffected()
	if err != nil {
		return fmt.Errorf("postgres store: %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("postgres store: %s: %w", op, domain.ErrNotFound)
	}
	return nil
}
