package httpapi

import (
	"net/http"

	"hemrs/app/src/domain"
)

type persistedResponse struct {
	Persisted    int                  `json:"persisted"`
	Measurements []domain.Measurement `json:"measurements"`
}

type countResponse struct {
	Count int `json:"count"`
}

// handleIngest admits a single measurement or a batch. 202 only means the
// items are queued. A failed batch still reports how many items made it in.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	admission, err := h.ingest.Enqueue(r.Context(), req)
	if err != nil {
		h.respondAdmissionError(w, r, err, admission.Accepted)
		return
	}
	h.writeJSON(w, http.StatusAccepted, admission)
}

func (h *handler) handlePersist(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	persisted, err := h.ingest.Persist(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, persistedResponse{Persisted: persisted.Count(), Measurements: persisted.Measurements})
}

func (h *handler) handleAllMeasurements(w http.ResponseWriter, r *http.Request) {
	measurements, err := h.measurements.All(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, measurements)
}

func (h *handler) handleLatestMeasurement(w http.ResponseWriter, r *http.Request) {
	m, err := h.measurements.Latest(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *handler) handleAllLatestMeasurements(w http.ResponseWriter, r *http.Request) {
	measurements, err := h.measurements.LatestAll(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, measurements)
}

func (h *handler) handleMeasurementCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.measurements.Count(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *handler) handleMeasurementsByDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathID(r, "device_id")
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	measurements, err := h.measurements.ByDevice(r.Context(), deviceID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, measurements)
}

func (h *handler) handleMeasurementsByPair(w http.ResponseWriter, r *http.Request) {
	key, err := pairKey(r)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	measurements, err := h.measurements.ByDeviceSensor(r.Context(), key)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, measurements)
}

func (h *handler) handleLatestByPair(w http.ResponseWriter, r *http.Request) {
	key, err := pairKey(r)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	m, err := h.measurements.LatestByDeviceSensor(r.Context(), key)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

func (h *handler) handleStatsByPair(w http.ResponseWriter, r *http.Request) {
	key, err := pairKey(r)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	stats, err := h.measurements.Stats(r.Context(), key)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}
