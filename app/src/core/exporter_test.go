package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

type exporterFixture struct {
	store    *memoryStore
	cache    *MeasurementCache
	vec      *prometheus.GaugeVec
	pool     prometheus.Gauge
	size     prometheus.Gauge
	exporter *MetricsExporter

	mu  sync.Mutex
	now time.Time
}

func newExporterFixture(t *testing.T, store *memoryStore) *exporterFixture {
	t.Helper()
	f := &exporterFixture{
		store: store,
		cache: NewMeasurementCache(16, time.Minute),
		vec: prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "measurements"},
			[]string{"device_name", "device_location", "sensor_name", "unit"}),
		pool: prometheus.NewGauge(prometheus.GaugeOpts{Name: "pool_size"}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{Name: "cache_size"}),
		now:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	sink := infra.NewMeasurementGaugesWith(f.vec, f.pool, f.size)
	reader := NewReadThrough(f.cache, store, time.Second)
	f.exporter = NewMetricsExporter(store, reader, sink, store, f.cache, &stubLogger{},
		WithExporterClock(f.clock), WithStalenessWindow(5*time.Minute))
	return f
}

func (f *exporterFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *exporterFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *exporterFixture) gauge(device, location, sensor, unit string) float64 {
	return testutil.ToFloat64(f.vec.WithLabelValues(device, location, sensor, unit))
}

func exporterStore() *memoryStore {
	return seededStore().attach(1, 1).attach(1, 2).attach(2, 1)
}

func joined(device domain.Device, sensor domain.Sensor, value float64, ts time.Time) domain.Measurement {
	return domain.Measurement{
		Timestamp:      ts,
		Value:          value,
		Unit:           sensor.Unit,
		DeviceName:     device.Name,
		DeviceLocation: device.Location,
		SensorName:     sensor.Name,
	}
}

var (
	pi       = domain.Device{ID: 1, Name: "pi", Location: "kitchen"}
	esp      = domain.Device{ID: 2, Name: "esp", Location: "garage"}
	temp     = domain.Sensor{ID: 1, Name: "dht11", Unit: "C"}
	humidity = domain.Sensor{ID: 2, Name: "dht11-humidity", Unit: "%"}
)

func TestMetricsExporterDefaults(t *testing.T) {
	e := NewMetricsExporter(nil, nil, nil, nil, nil, nil)
	assert.Equal(t, 10*time.Second, e.interval)
	assert.Equal(t, 300*time.Second, e.window)
}

func TestMetricsExporterPublishesFreshReadings(t *testing.T) {
	store := exporterStore()
	store.openConns = 3
	f := newExporterFixture(t, store)
	now := f.clock()
	store.latest[key(1, 1)] = joined(pi, temp, 21.5, now.Add(-time.Minute))
	store.latest[key(1, 2)] = joined(pi, humidity, 40, now.Add(-10*time.Minute))

	report, err := f.exporter.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Devices)
	assert.Equal(t, 3, report.Pairs)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Stale)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 0, report.Failures)

	assert.Equal(t, 21.5, f.gauge("pi", "kitchen", "dht11", "C"))
	assert.Equal(t, 1, testutil.CollectAndCount(f.vec), "stale reading must not be published")
	assert.Equal(t, 3.0, testutil.ToFloat64(f.pool))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.size), "cache size is sampled before the tick loads values")

	_, ok := f.cache.Get(key(1, 1))
	assert.True(t, ok, "fresh store value is cached")
	_, ok = f.cache.Get(key(1, 2))
	assert.False(t, ok, "stale store value is not cached")
}

func TestMetricsExporterRemovesReadingsThatGoStale(t *testing.T) {
	store := exporterStore()
	f := newExporterFixture(t, store)
	store.latest[key(1, 1)] = joined(pi, temp, 19, f.clock())

	_, err := f.exporter.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, testutil.CollectAndCount(f.vec))

	f.advance(5*time.Minute + time.Second)
	report, err := f.exporter.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Published)
	assert.Equal(t, 1, report.Stale)
	assert.Equal(t, 0, testutil.CollectAndCount(f.vec))
}

func TestMetricsExporterIsolatesFailures(t *testing.T) {
	store := exporterStore().attach(2, 2)
	store.sensorsErr[1] = errors.New("view missing")
	f := newExporterFixture(t, store)
	now := f.clock()
	store.latest[key(2, 1)] = joined(esp, temp, 15, now)
	store.latestErr[key(2, 2)] = errors.New("timeout")

	report, err := f.exporter.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failures)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 15.0, f.gauge("esp", "garage", "dht11", "C"))
}

func TestMetricsExporterFailsTickWhenDevicesUnavailable(t *testing.T) {
	store := exporterStore()
	store.devicesErr = errors.New("connection refused")
	f := newExporterFixture(t, store)

	_, err := f.exporter.Tick(context.Background())

	var tickErr *domain.TickError
	require.True(t, errors.As(err, &tickErr))
	assert.Equal(t, "metrics_exporter", tickErr.Task)
	assert.EqualError(t, err, "metrics_exporter tick: connection refused")
}

func TestMetricsExporterDropsReadingsWhileDevicesUnavailable(t *testing.T) {
	store := exporterStore()
	f := newExporterFixture(t, store)
	store.latest[key(1, 1)] = joined(pi, temp, 19, f.clock())

	_, err := f.exporter.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, testutil.CollectAndCount(f.vec))

	t.Log("step 1: inside the window the last readings stay published")
	store.mu.Lock()
	store.devicesErr = errors.New("db down")
	store.mu.Unlock()
	f.advance(time.Minute)
	report, err := f.exporter.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 19.0, f.gauge("pi", "kitchen", "dht11", "C"))

	t.Log("step 2: past the window they are removed even though the tick fails")
	f.advance(30 * time.Minute)
	report, err = f.exporter.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, report.Published)
	assert.Equal(t, 0, testutil.CollectAndCount(f.vec))
}

func TestMetricsExporterReadsCacheFirst(t *testing.T) {
	store := exporterStore()
	f := newExporterFixture(t, store)
	f.cache.Insert(key(1, 1), joined(pi, temp, 30, f.clock()))

	_, err := f.exporter.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30.0, f.gauge("pi", "kitchen", "dht11", "C"))
	assert.Equal(t, 2, store.latestCallCount(), "only the uncached pairs hit the store")
}

func TestMetricsExporterRunStopsOnCancel(t *testing.T) {
	store := exporterStore()
	f := newExporterFixture(t, store)
	WithExportInterval(5 * time.Millisecond)(f.exporter)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.exporter.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.latestCallCount() >= 6 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("exporter did not stop")
	}
}
