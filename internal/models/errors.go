package models

import "errors"

// Error taxonomy shared by repositories, services and handlers.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyPaid        = errors.New("invoice already paid")
	ErrForbidden          = errors.New("forbidden")
	ErrSignatureInvalid   = errors.New("signature invalid")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrAmountMismatch     = errors.New("amount does not match invoice total")
	ErrNoInvoice          = errors.New("order info does not reference an invoice")
	ErrInvalidTransition  = errors.New("invalid invoice status transition")
	ErrUnknownGateway     = errors.New("unknown payment gateway")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicate          = errors.New("duplicate record")
)
