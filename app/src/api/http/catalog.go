package httpapi

import (
	"net/http"

	"hemrs/app/src/domain"
)

type idRequest struct {
	ID int `json:"id"`
}

func (h *handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.catalog.Devices(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, devices)
}

func (h *handler) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req domain.NewDevice
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	device, err := h.catalog.CreateDevice(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, device)
}

func (h *handler) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var device domain.Device
	if err := decodeJSON(w, r, &device); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if err := h.catalog.UpdateDevice(r.Context(), device); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, device)
}

func (h *handler) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if err := h.catalog.DeleteDevice(r.Context(), req.ID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) handleSensorsByDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := pathID(r, "device_id")
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	sensors, err := h.catalog.SensorsByDevice(r.Context(), deviceID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sensors)
}

func (h *handler) handleSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := h.catalog.Sensors(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sensors)
}

func (h *handler) handleCreateSensor(w http.ResponseWriter, r *http.Request) {
	var req domain.NewSensor
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	sensor, err := h.catalog.CreateSensor(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sensor)
}

func (h *handler) handleUpdateSensor(w http.ResponseWriter, r *http.Request) {
	var sensor domain.Sensor
	if err := decodeJSON(w, r, &sensor); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if err := h.catalog.UpdateSensor(r.Context(), sensor); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sensor)
}

func (h *handler) handleDeleteSensor(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if err := h.catalog.DeleteSensor(r.Context(), req.ID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
