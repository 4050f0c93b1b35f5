package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"rental-backend/internal/models"
	"rental-backend/internal/services"
	"rental-backend/pkg/utils"
)

type SettingsHandler struct {
	Meter     *services.MeterService
	Anomalies *services.AnomalyService
	log       *zap.Logger
}

func NewSettingsHandler(meter *services.MeterService, anomalies *services.AnomalyService, log *zap.Logger) *SettingsHandler {
	return &SettingsHandler{Meter: meter, Anomalies: anomalies, log: log}
}

func (h *SettingsHandler) GetUtilityPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.Meter.UtilityPrices(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, prices)
}

// PutUtilityPrices - PUT /settings/utility-prices
func (h *SettingsHandler) PutUtilityPrices(w http.ResponseWriter, r *http.Request) {
	var req models.UtilityPrices
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.Meter.SetUtilityPrices(r.Context(), req); err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, req)
}

// ListAnomalies - GET /reconciliation/anomalies
func (h *SettingsHandler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.Anomalies.List(r.Context(), p, limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, list)
}
