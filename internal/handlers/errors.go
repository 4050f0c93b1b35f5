package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"rental-backend/internal/middleware"
	"rental-backend/internal/models"
	"rental-backend/pkg/utils"
)

// writeError maps the error taxonomy to HTTP. Anything unrecognised is a
// generic 500 so internal details never reach the client.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNoInvoice):
		utils.Error(w, http.StatusNotFound, "Not found")
	case errors.Is(err, models.ErrUnknownGateway):
		utils.Error(w, http.StatusNotFound, "Unknown payment gateway")
	case errors.Is(err, models.ErrAlreadyPaid):
		utils.Error(w, http.StatusConflict, "Invoice is already paid")
	case errors.Is(err, models.ErrInvalidTransition):
		utils.Error(w, http.StatusConflict, "Invoice cannot move to that status")
	case errors.Is(err, models.ErrDuplicate):
		utils.Error(w, http.StatusConflict, "Already exists")
	case errors.Is(err, models.ErrForbidden):
		utils.Error(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, models.ErrValidation):
		utils.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrSignatureInvalid):
		utils.Error(w, http.StatusBadRequest, "Invalid signature")
	case errors.Is(err, models.ErrGatewayUnavailable):
		utils.JSON(w, http.StatusServiceUnavailable, utils.ErrorBody{
			Error:     "Payment gateway unavailable, please try again",
			Retryable: true,
		})
	default:
		log.Error("request failed", zap.Error(err))
		utils.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

// principal returns the caller or writes 401.
func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Unauthorized")
	}
	return p, ok
}
