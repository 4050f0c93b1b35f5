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

type InvoiceHandler struct {
	Service *services.InvoiceService
	Meter   *services.MeterService
	log     *zap.Logger
}

func NewInvoiceHandler(s *services.InvoiceService, meter *services.MeterService, log *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{Service: s, Meter: meter, log: log}
}

type generateTriggerRequest struct {
	ReadingID int64 `json:"readingId"`
}

// GenerateTrigger runs the lock trigger for a reading. Idempotent.
// POST /invoices/generate-trigger
func (h *InvoiceHandler) GenerateTrigger(w http.ResponseWriter, r *http.Request) {
	var req generateTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReadingID <= 0 {
		utils.Error(w, http.StatusBadRequest, "readingId is required")
		return
	}

	res, err := h.Meter.OnLock(r.Context(), req.ReadingID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	utils.JSON(w, status, res)
}

// RequestPayment is the tenant telling the manager they paid.
// POST /invoices/{id}/request-payment
func (h *InvoiceHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}

	inv, err := h.Service.RequestPayment(r.Context(), id, p)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, inv)
}

// ConfirmPaid is the manager's manual confirmation.
// PATCH /invoices/{id}/pay
func (h *InvoiceHandler) ConfirmPaid(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}

	inv, err := h.Service.ConfirmPaid(r.Context(), id, p)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}

	inv, err := h.Service.Get(r.Context(), id, p)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, inv)
}

// ListInvoices supports period, status, room_id, limit and offset.
func (h *InvoiceHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	f := models.InvoiceFilter{
		Period: q.Get("period"),
		Status: models.InvoiceStatus(q.Get("status")),
	}
	if v := q.Get("room_id"); v != "" {
		roomID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid room_id")
			return
		}
		f.RoomID = &roomID
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	if f.Offset < 0 {
		f.Offset = 0
	}

	invoices, err := h.Service.List(r.Context(), p, f)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, invoices)
}

func (h *InvoiceHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}

	payments, err := h.Service.Payments(r.Context(), id, p)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, payments)
}
