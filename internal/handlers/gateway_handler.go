package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"rental-backend/internal/gateway"
	"rental-backend/internal/models"
	"rental-backend/internal/services"
	"rental-backend/pkg/utils"
)

// Return statuses carried back to the app in the redirect query string.
const (
	returnSuccess   = "success"
	returnFailed    = "failed"
	returnCancelled = "cancelled"
	returnInvalid   = "invalid"
	returnError     = "error"
)

type GatewayHandler struct {
	Payments     *services.PaymentService
	Query        *services.PaymentQuery
	AppReturnURL string
	log          *zap.Logger
}

func NewGatewayHandler(payments *services.PaymentService, query *services.PaymentQuery, appReturnURL string, log *zap.Logger) *GatewayHandler {
	return &GatewayHandler{Payments: payments, Query: query, AppReturnURL: appReturnURL, log: log}
}

// CreatePayment - POST /{gateway}/create
// Body: {"invoiceId": 42, ...gateway specific string options}
func (h *GatewayHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	in, err := decodeCreateRequest(r)
	if err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	in.ClientIP = clientIP(r)

	res, err := h.Payments.CreatePayment(r.Context(), p, mux.Vars(r)["gateway"], in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, res)
}

func decodeCreateRequest(r *http.Request) (services.CreatePaymentInput, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return services.CreatePaymentInput{}, errors.New("Invalid request body")
	}

	in := services.CreatePaymentInput{Options: map[string]string{}}
	for k, v := range raw {
		if k == "invoiceId" {
			var n json.Number
			if err := json.Unmarshal(v, &n); err != nil {
				var s string
				if json.Unmarshal(v, &s) != nil {
					return in, errors.New("invoiceId must be a number")
				}
				n = json.Number(s)
			}
			id, err := n.Int64()
			if err != nil || id <= 0 {
				return in, errors.New("invoiceId must be a positive integer")
			}
			in.InvoiceID = id
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil && s != "" {
			in.Options[k] = s
		}
	}
	if in.InvoiceID == 0 {
		return in, errors.New("invoiceId is required")
	}
	return in, nil
}

// Status - GET /{gateway}/status/{invoiceId}, the polling fallback.
func (h *GatewayHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "invoiceId")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid invoice ID")
		return
	}

	view, err := h.Query.Status(r.Context(), p, mux.Vars(r)["gateway"], id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, view)
}

// Return - GET /{gateway}/return. The browser lands here after checkout and
// is sent on to the app with status, resultCode and invoiceId.
func (h *GatewayHandler) Return(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["gateway"]
	res, err := h.Payments.HandleInbound(r.Context(), name, services.InboundReturn, r)

	q := url.Values{}
	switch {
	case errors.Is(err, models.ErrUnknownGateway):
		utils.Error(w, http.StatusNotFound, "Unknown payment gateway")
		return
	case errors.Is(err, models.ErrSignatureInvalid),
		errors.Is(err, models.ErrNoInvoice),
		errors.Is(err, models.ErrValidation):
		q.Set("status", returnInvalid)
	case err != nil:
		q.Set("status", returnError)
		if res != nil && res.Outcome != nil {
			q.Set("invoiceId", strconv.FormatInt(res.Outcome.InvoiceID, 10))
		}
		if !errors.Is(err, models.ErrNotFound) {
			h.log.Error("gateway return not reconciled", zap.String("gateway", name), zap.Error(err))
		}
	default:
		q.Set("status", returnStatus(res))
		q.Set("resultCode", res.Outcome.ResponseCode)
		q.Set("invoiceId", strconv.FormatInt(res.Outcome.InvoiceID, 10))
	}

	http.Redirect(w, r, withQuery(h.AppReturnURL, q), http.StatusFound)
}

func returnStatus(res *services.InboundResult) string {
	if res.Reconciliation != nil && res.Reconciliation.AmountMismatch {
		return returnFailed
	}
	switch res.Outcome.Outcome {
	case gateway.OutcomeSuccess:
		return returnSuccess
	case gateway.OutcomeCancelled:
		return returnCancelled
	default:
		return returnFailed
	}
}

func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + q.Encode()
	}
	merged := u.Query()
	for k, vs := range q {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String()
}

// Callback - GET/POST /{gateway}/callback, server to server. The body is the
// gateway's own acknowledgement format and never carries internal details.
func (h *GatewayHandler) Callback(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["gateway"]
	adapter, err := h.Payments.Adapter(name)
	if err != nil {
		utils.Error(w, http.StatusNotFound, "Unknown payment gateway")
		return
	}

	res, err := h.Payments.HandleInbound(r.Context(), name, services.InboundCallback, r)
	if err == nil && res.Reconciliation != nil && res.Reconciliation.AmountMismatch {
		err = models.ErrAmountMismatch
	}
	if err != nil && !isExpectedInboundError(err) {
		h.log.Error("gateway callback failed", zap.String("gateway", name), zap.Error(err))
	}

	ack := adapter.CallbackAck(err)
	if ack.Body == nil {
		w.WriteHeader(ack.Status)
		return
	}
	utils.JSON(w, ack.Status, ack.Body)
}

func isExpectedInboundError(err error) bool {
	return errors.Is(err, models.ErrSignatureInvalid) ||
		errors.Is(err, models.ErrNoInvoice) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrAmountMismatch)
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
