package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

const maxBodyBytes = 1 << 20

var errBodyTooLarge = fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)

// handler contains the HTTP handlers and shared dependencies for the REST API.
type handler struct {
	ingest       domain.IngestService
	measurements domain.MeasurementService
	catalog      domain.CatalogService
	health       HealthChecker
	logger       *infra.Logger
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get("/health", h.handleHealth)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", infra.Handler())

	router.Post("/", h.handleIngest)

	router.Route("/api", func(r chi.Router) {
		r.Route("/measurements", func(r chi.Router) {
			r.Get("/", h.handleAllMeasurements)
			r.Post("/", h.handleIngest)
			r.Post("/sync", h.handlePersist)
			r.Get("/latest", h.handleLatestMeasurement)
			r.Get("/latest/all", h.handleAllLatestMeasurements)
			r.Get("/count", h.handleMeasurementCount)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", h.handleDevices)
			r.Post("/", h.handleCreateDevice)
			r.Put("/", h.handleUpdateDevice)
			r.Delete("/", h.handleDeleteDevice)

			r.Route("/{device_id}", func(r chi.Router) {
				r.Get("/sensors", h.handleSensorsByDevice)
				r.Get("/measurements", h.handleMeasurementsByDevice)
				r.Get("/sensors/{sensor_id}/measurements", h.handleMeasurementsByPair)
				r.Get("/sensors/{sensor_id}/measurements/latest", h.handleLatestByPair)
				r.Get("/sensors/{sensor_id}/measurements/stats", h.handleStatsByPair)
			})
		})

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", h.handleSensors)
			r.Post("/", h.handleCreateSensor)
			r.Put("/", h.handleUpdateSensor)
			r.Delete("/", h.handleDeleteSensor)
		})
	})
}

type errorResponse struct {
	Error    string `json:"error"`
	Code     int    `json:"code"`
	Accepted int    `json:"accepted,omitempty"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.logger.Warnf(r.Context(), "health check failed: %v", err)
			h.writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads a bounded JSON body into dst. Oversized bodies fail with
// errBodyTooLarge instead of being truncated.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, name)
	}
	return id, nil
}

func pairKey(r *http.Request) (domain.MeasurementKey, error) {
	deviceID, err := pathID(r, "device_id")
	if err != nil {
		return domain.MeasurementKey{}, err
	}
	sensorID, err := pathID(r, "sensor_id")
	if err != nil {
		return domain.MeasurementKey{}, err
	}
	return domain.MeasurementKey{DeviceID: deviceID, SensorID: sensorID}, nil
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	h.respondAdmissionError(w, r, err, 0)
}

// respondAdmissionError is respondServiceError for ingest calls, where a batch
// may be rejected after some of its items were already queued.
func (h *handler) respondAdmissionError(w http.ResponseWriter, r *http.Request, err error, accepted int) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		h.logger.Warnf(r.Context(), "%s %s: %v", r.Method, r.URL.Path, err)
		message = "internal server error"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	h.writeJSON(w, status, errorResponse{Error: message, Code: status, Accepted: accepted})
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
