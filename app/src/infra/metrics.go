package infra

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hemrs/app/src/domain"
)

var (
	// Exporter gauges
	MeasurementsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "measurements",
		Help: "Latest fresh measurement per device and sensor",
	}, []string{"device_name", "device_location", "sensor_name", "unit"})
	PoolSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pool_size",
		Help: "Open connections in the database pool",
	})
	CacheSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_size",
		Help: "Entries held by the measurement cache",
	})

	// Ingestion metrics
	NewMeasurementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "new_measurements",
		Help: "Measurements persisted by the insert worker",
	})
	InsertErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insert_errors_total",
		Help: "Queued measurements dropped by the insert worker, by stage",
	}, []string{"stage"})
	QueueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Measurements waiting in the ingestion queue",
	})
	CacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Entries removed from the measurement cache by capacity or expiry",
	})
	MQTTMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mqtt_messages_total",
		Help: "MQTT ingestion messages by result",
	}, []string{"result"})

	// Background task metrics
	BackgroundTaskFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "background_task_failures_total",
		Help: "Failed iterations of periodic background tasks",
	}, []string{"task"})

	// HTTP metrics
	HttpRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	})
	HttpRequestErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_request_errors_total",
		Help: "Total number of HTTP request errors",
	})
	HandlerDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "handler",
		Help:    "Duration of HTTP handlers in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "uri"})

	registerOnce      sync.Once
	metricsServerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all Prometheus collectors used by the application.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			MeasurementsGauge,
			PoolSizeGauge,
			CacheSizeGauge,
			NewMeasurementsTotal,
			InsertErrorsTotal,
			QueueDepthGauge,
			CacheEvictionsTotal,
			MQTTMessagesTotal,
			BackgroundTaskFailuresTotal,
			HttpRequestsTotal,
			HttpRequestErrorsTotal,
			HandlerDurationSeconds,
		)
	})
}

// Handler returns an HTTP handler that exposes the registered Prometheus metrics.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

// StartMetricsServer exposes /metrics on a dedicated port. An empty port
// leaves metrics on the main router only.
func StartMetricsServer(ctx context.Context, logger *Logger, port string) {
	if port == "" {
		return
	}
	InitMetrics()
	metricsServerOnce.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:              net.JoinHostPort("", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf(context.Background(), "metrics server error: %v", err)
			}
		}()
	})
}

// HTTPMiddleware instruments HTTP handlers with request counters and the
// handler duration histogram. pathResolver runs after the handler so routers
// can report the matched pattern.
func HTTPMiddleware(pathResolver func(*http.Request) string) func(http.Handler) http.Handler {
	InitMetrics()
	if pathResolver == nil {
		pathResolver = func(r *http.Request) string {
			if r == nil {
				return "unknown"
			}
			return r.URL.Path
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r == nil {
				HttpRequestErrorsTotal.Inc()
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			defer func() {
				duration := time.Since(start)
				HandlerDurationSeconds.WithLabelValues(r.Method, pathResolver(r)).Observe(duration.Seconds())
				HttpRequestsTotal.Inc()

				if recorder.Status() >= http.StatusBadRequest {
					HttpRequestErrorsTotal.Inc()
				}
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}

// IncNewMeasurements counts a persisted measurement.
func IncNewMeasurements() {
	InitMetrics()
	NewMeasurementsTotal.Inc()
}

// IncInsertError counts a dropped queue item at the given stage.
func IncInsertError(stage string) {
	InitMetrics()
	InsertErrorsTotal.WithLabelValues(stage).Inc()
}

// SetQueueDepth records the number of queued measurements.
func SetQueueDepth(n int) {
	InitMetrics()
	QueueDepthGauge.Set(float64(n))
}

// IncCacheEvictions counts an entry leaving the cache.
func IncCacheEvictions() {
	InitMetrics()
	CacheEvictionsTotal.Inc()
}

// IncTaskFailure counts a failed periodic task iteration.
func IncTaskFailure(task string) {
	InitMetrics()
	BackgroundTaskFailuresTotal.WithLabelValues(task).Inc()
}

// IncMQTTMessage counts an MQTT ingestion message by result.
func IncMQTTMessage(result string) {
	InitMetrics()
	MQTTMessagesTotal.WithLabelValues(result).Inc()
}

// MeasurementGauges publishes exporter readings. Label sets that are not
// part of the latest publication are removed, so a reading that went stale
// stops being exported.
type MeasurementGauges struct {
	mu        sync.Mutex
	vec       *prometheus.GaugeVec
	pool      prometheus.Gauge
	cache     prometheus.Gauge
	published map[[4]string]struct{}
}

// NewMeasurementGauges returns a sink writing to the registered collectors.
func NewMeasurementGauges() *MeasurementGauges {
	InitMetrics()
	return NewMeasurementGaugesWith(MeasurementsGauge, PoolSizeGauge, CacheSizeGauge)
}

// NewMeasurementGaugesWith returns a sink writing to the given collectors.
func NewMeasurementGaugesWith(vec *prometheus.GaugeVec, pool, cache prometheus.Gauge) *MeasurementGauges {
	return &MeasurementGauges{
		vec:       vec,
		pool:      pool,
		cache:     cache,
		published: make(map[[4]string]struct{}),
	}
}

func (g *MeasurementGauges) PublishMeasurements(readings []domain.GaugeReading) {
	g.mu.Lock()
	defer g.mu.Unlock()

	current := make(map[[4]string]struct{}, len(readings))
	for _, r := range readings {
		labels := [4]string{r.DeviceName, r.DeviceLocation, r.SensorName, r.Unit}
		g.vec.WithLabelValues(labels[:]...).Set(r.Value)
		current[labels] = struct{}{}
	}

	for labels := range g.published {
		if _, ok := current[labels]; !ok {
			g.vec.DeleteLabelValues(labels[:]...)
		}
	}
	g.published = current
}

func (g *MeasurementGauges) SetPoolSize(n int) {
	g.pool.Set(float64(n))
}

func (g *MeasurementGauges) SetCacheSize(n int) {
	g.cache.Set(float64(n))
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Status() int {
	return r.status
}
