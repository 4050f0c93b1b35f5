package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"rental-backend/internal/models"
	"rental-backend/internal/services"
	"rental-backend/pkg/utils"
)

type MeterHandler struct {
	Service *services.MeterService
	log     *zap.Logger
}

func NewMeterHandler(s *services.MeterService, log *zap.Logger) *MeterHandler {
	return &MeterHandler{Service: s, log: log}
}

// CreateReading - POST /meter-readings
func (h *MeterHandler) CreateReading(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMeterReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reading, err := h.Service.CreateReading(r.Context(), &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusCreated, reading)
}

func (h *MeterHandler) GetReading(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid reading ID")
		return
	}

	reading, err := h.Service.GetReading(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, reading)
}

// LockReading locks the reading and materializes its invoice.
// PATCH /meter-readings/{id}/lock
func (h *MeterHandler) LockReading(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid reading ID")
		return
	}

	res, err := h.Service.Lock(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, res)
}
