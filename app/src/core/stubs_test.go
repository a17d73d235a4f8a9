package core

import (
	"context"
	"fmt"
	"sync"

	"hemrs/app/src/domain"
)

type stubLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *stubLogger) Printf(_ context.Context, format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, v...))
}

func (l *stubLogger) Println(_ context.Context, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintln(v...))
}

func (l *stubLogger) Warnf(_ context.Context, format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, "WARN "+fmt.Sprintf(format, v...))
}

func (l *stubLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// memoryStore is an in-memory store double shared by the core tests.
type memoryStore struct {
	mu sync.Mutex

	devices []domain.Device
	sensors []domain.Sensor
	pairs   map[int][]int
	rows    []domain.MeasurementRow
	latest  map[domain.MeasurementKey]domain.Measurement

	insertErr   error
	devicesErr  error
	sensorsErr  map[int]error
	latestErr   map[domain.MeasurementKey]error
	refreshErrs []error

	latestCalls  int
	latestHook   func(domain.MeasurementKey)
	refreshCalls int
	openConns    int
	insertHook   func(domain.MeasurementRow)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		pairs:      make(map[int][]int),
		latest:     make(map[domain.MeasurementKey]domain.Measurement),
		sensorsErr: make(map[int]error),
		latestErr:  make(map[domain.MeasurementKey]error),
	}
}

func (s *memoryStore) withDevice(d domain.Device) *memoryStore {
	s.devices = append(s.devices, d)
	return s
}

func (s *memoryStore) withSensor(sensor domain.Sensor) *memoryStore {
	s.sensors = append(s.sensors, sensor)
	return s
}

func (s *memoryStore) attach(deviceID, sensorID int) *memoryStore {
	s.pairs[deviceID] = append(s.pairs[deviceID], sensorID)
	return s
}

func (s *memoryStore) DeviceByID(ctx context.Context, id int) (domain.Device, error) {
	if err := ctx.Err(); err != nil {
		return domain.Device{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Device{}, domain.ErrNotFound
}

func (s *memoryStore) Devices(context.Context) ([]domain.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.devicesErr != nil {
		return nil, s.devicesErr
	}
	return append([]domain.Device(nil), s.devices...), nil
}

func (s *memoryStore) SensorByID(ctx context.Context, id int) (domain.Sensor, error) {
	if err := ctx.Err(); err != nil {
		return domain.Sensor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sensor := range s.sensors {
		if sensor.ID == id {
			return sensor, nil
		}
	}
	return domain.Sensor{}, domain.ErrNotFound
}

func (s *memoryStore) Sensors(context.Context) ([]domain.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Sensor(nil), s.sensors...), nil
}

func (s *memoryStore) SensorsByDevice(_ context.Context, deviceID int) ([]domain.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sensorsErr[deviceID]; err != nil {
		return nil, err
	}
	var out []domain.Sensor
	for _, id := range s.pairs[deviceID] {
		for _, sensor := range s.sensors {
			if sensor.ID == id {
				out = append(out, sensor)
			}
		}
	}
	return out, nil
}

func (s *memoryStore) InsertMeasurement(ctx context.Context, row domain.MeasurementRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	hook := s.insertHook
	if s.insertErr != nil {
		s.mu.Unlock()
		return s.insertErr
	}
	s.rows = append(s.rows, row)
	s.mu.Unlock()
	if hook != nil {
		hook(row)
	}
	return nil
}

func (s *memoryStore) LatestMeasurement(_ context.Context, key domain.MeasurementKey) (domain.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestCalls++
	if s.latestHook != nil {
		s.latestHook(key)
	}
	if err := s.latestErr[key]; err != nil {
		return domain.Measurement{}, err
	}
	m, ok := s.latest[key]
	if !ok {
		return domain.Measurement{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memoryStore) RefreshView(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	if len(s.refreshErrs) > 0 {
		err := s.refreshErrs[0]
		s.refreshErrs = s.refreshErrs[1:]
		return err
	}
	return nil
}

func (s *memoryStore) OpenConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openConns
}

func (s *memoryStore) storedRows() []domain.MeasurementRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.MeasurementRow(nil), s.rows...)
}

func (s *memoryStore) latestCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestCalls
}

func (s *memoryStore) refreshCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func seededStore() *memoryStore {
	return newMemoryStore().
		withDevice(domain.Device{ID: 1, Name: "pi", Location: "kitchen"}).
		withDevice(domain.Device{ID: 2, Name: "esp", Location: "garage"}).
		withSensor(domain.Sensor{ID: 1, Name: "dht11", Unit: "C"}).
		withSensor(domain.Sensor{ID: 2, Name: "dht11-humidity", Unit: "%"})
}

func (s *memoryStore) joinRow(row domain.MeasurementRow) domain.Measurement {
	m := domain.Measurement{Timestamp: row.Timestamp, Value: row.Value}
	for _, d := range s.devices {
		if d.ID == row.DeviceID {
			m.DeviceName, m.DeviceLocation = d.Name, d.Location
		}
	}
	for _, sensor := range s.sensors {
		if sensor.ID == row.SensorID {
			m.SensorName, m.Unit = sensor.Name, sensor.Unit
		}
	}
	return m
}

func (s *memoryStore) filter(keep func(domain.MeasurementRow) bool) []domain.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Measurement{}
	for _, row := range s.rows {
		if keep(row) {
			out = append(out, s.joinRow(row))
		}
	}
	return out
}

func (s *memoryStore) Measurements(context.Context) ([]domain.Measurement, error) {
	return s.filter(func(domain.MeasurementRow) bool { return true }), nil
}

func (s *memoryStore) LatestOverall(context.Context) (domain.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) == 0 {
		return domain.Measurement{}, domain.ErrNotFound
	}
	return s.joinRow(s.rows[len(s.rows)-1]), nil
}

func (s *memoryStore) CountMeasurements(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows), nil
}

func (s *memoryStore) MeasurementsByDevice(_ context.Context, deviceID int) ([]domain.Measurement, error) {
	return s.filter(func(row domain.MeasurementRow) bool { return row.DeviceID == deviceID }), nil
}

func (s *memoryStore) MeasurementsByKey(_ context.Context, key domain.MeasurementKey) ([]domain.Measurement, error) {
	return s.filter(func(row domain.MeasurementRow) bool {
		return row.DeviceID == key.DeviceID && row.SensorID == key.SensorID
	}), nil
}

func (s *memoryStore) StatsByKey(_ context.Context, key domain.MeasurementKey) (domain.MeasurementStats, error) {
	values := s.filter(func(row domain.MeasurementRow) bool {
		return row.DeviceID == key.DeviceID && row.SensorID == key.SensorID
	})
	if len(values) == 0 {
		return domain.MeasurementStats{}, domain.ErrNotFound
	}
	stats := domain.MeasurementStats{Count: len(values), Min: values[0].Value, Max: values[0].Value}
	var sum float64
	for _, m := range values {
		sum += m.Value
		stats.Min = min(stats.Min, m.Value)
		stats.Max = max(stats.Max, m.Value)
	}
	stats.Mean = sum / float64(len(values))
	return stats, nil
}

func (s *memoryStore) DeviceSensorPairs(context.Context) ([]domain.MeasurementKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MeasurementKey
	for _, d := range s.devices {
		for _, sensorID := range s.pairs[d.ID] {
			out = append(out, domain.MeasurementKey{DeviceID: d.ID, SensorID: sensorID})
		}
	}
	return out, nil
}

func (s *memoryStore) CreateDevice(_ context.Context, d domain.NewDevice) (domain.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	device := domain.Device{ID: len(s.devices) + 1, Name: d.Name, Location: d.Location}
	s.devices = append(s.devices, device)
	return device, nil
}

func (s *memoryStore) UpdateDevice(_ context.Context, d domain.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.devices {
		if s.devices[i].ID == d.ID {
			s.devices[i] = d
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memoryStore) DeleteDevice(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.devices {
		if s.devices[i].ID == id {
			s.devices = append(s.devices[:i], s.devices[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memoryStore) CreateSensor(_ context.Context, sensor domain.NewSensor) (domain.Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := domain.Sensor{ID: len(s.sensors) + 1, Name: sensor.Name, Unit: sensor.Unit}
	s.sensors = append(s.sensors, created)
	return created, nil
}

func (s *memoryStore) UpdateSensor(_ context.Context, sensor domain.Sensor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sensors {
		if s.sensors[i].ID == sensor.ID {
			s.sensors[i] = sensor
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *memoryStore) DeleteSensor(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sensors {
		if s.sensors[i].ID == id {
			s.sensors = append(s.sensors[:i], s.sensors[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}
