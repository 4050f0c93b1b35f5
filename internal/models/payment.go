package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Payment is one attempt to settle an invoice through one gateway.
// (Gateway, TransactionID) is the idempotency key; SUCCESS is absorbing.
type Payment struct {
	ID            int64           `json:"id"`
	InvoiceID     int64           `json:"invoice_id"`
	TenantID      int64           `json:"tenant_id"`
	Gateway       string          `json:"gateway"`
	TransactionID string          `json:"transaction_id"`
	GatewayRef    string          `json:"gateway_ref,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        PaymentStatus   `json:"status"`
	ResponseCode  string          `json:"response_code"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

// UpsertResult says what an idempotent payment upsert did.
type UpsertResult string

const (
	UpsertInserted  UpsertResult = "inserted"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)

// AnomalyAmountMismatch is the only anomaly kind recorded today.
const AnomalyAmountMismatch = "AMOUNT_MISMATCH"

// ReconciliationAnomaly is kept for operator review; it never changes an invoice.
type ReconciliationAnomaly struct {
	ID             int64           `json:"id"`
	InvoiceID      int64           `json:"invoice_id"`
	Gateway        string          `json:"gateway"`
	TransactionID  string          `json:"transaction_id"`
	Kind           string          `json:"kind"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	ReportedAmount decimal.Decimal `json:"reported_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PaymentStatusView is what polling clients get back.
type PaymentStatusView struct {
	InvoiceID     int64              `json:"invoiceId"`
	InvoiceStatus InvoiceStatus      `json:"invoiceStatus"`
	Payment       *PaymentStatusItem `json:"payment"`
}

type PaymentStatusItem struct {
	TransactionID string        `json:"transactionId"`
	Status        PaymentStatus `json:"status"`
	ResponseCode  string        `json:"responseCode"`
	PaidAt        *time.Time    `json:"paidAt"`
}
