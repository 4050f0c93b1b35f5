// Package gateway turns invoices into signed payment URLs and turns signed
// gateway messages back into canonical outcomes. Amounts are converted between
// the invoice's base unit and the gateway's integer unit here and nowhere else.
package gateway

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rental-backend/internal/models"
	"rental-backend/internal/timeutil"
)

const (
	NameVNPay = "vnpay"
	NameMoMo  = "momo"
)

// Outcome is the canonical result of a verified gateway message.
type Outcome string

const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeCancelled Outcome = "CANCELLED"
)

// PaymentStatus maps an outcome onto the payment row status.
func (o Outcome) PaymentStatus() models.PaymentStatus {
	switch o {
	case OutcomeSuccess:
		return models.PaymentStatusSuccess
	case OutcomeCancelled:
		return models.PaymentStatusCancelled
	default:
		return models.PaymentStatusFailed
	}
}

// Payer is optional buyer info some gateways display on their checkout page.
type Payer struct {
	Name  string
	Phone string
	Email string
}

type PaymentRequest struct {
	InvoiceID int64
	// Amount in the base currency unit (VND).
	Amount   decimal.Decimal
	ClientIP string
	// Options are gateway specific: bankCode and locale for VNPay,
	// requestType and lang for MoMo. Unknown keys are ignored.
	Options map[string]string
	Payer   *Payer
}

type PaymentURL struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId"`
	PaymentURL    string `json:"paymentUrl"`
}

// VerifiedOutcome is only ever built from a message whose signature checked out.
type VerifiedOutcome struct {
	Gateway       string
	TransactionID string
	GatewayRef    string
	InvoiceID     int64
	Amount        decimal.Decimal
	Outcome       Outcome
	ResponseCode  string
	Message       string
}

// Ack is what a gateway expects back from a server-to-server callback.
type Ack struct {
	Status int
	Body   interface{}
}

type Adapter interface {
	Name() string
	CreatePaymentURL(ctx context.Context, req PaymentRequest) (*PaymentURL, error)
	// InboundParams extracts the raw signed parameters from a return or callback request.
	InboundParams(r *http.Request) (url.Values, error)
	VerifyInbound(params url.Values) (*VerifiedOutcome, error)
	// CallbackAck renders the acknowledgement for a callback processed with err.
	CallbackAck(err error) Ack
}

const orderInfoPrefix = "Thanh toan hoa don "

var orderInfoPattern = regexp.MustCompile(`^Thanh toan hoa don ([1-9][0-9]{0,17})$`)

// FormatOrderInfo embeds the invoice id in the merchant order description.
func FormatOrderInfo(invoiceID int64) string {
	return orderInfoPrefix + strconv.FormatInt(invoiceID, 10)
}

// ParseOrderInfo recovers the invoice id. Anything that is not exactly the
// format written by FormatOrderInfo is ErrNoInvoice.
func ParseOrderInfo(s string) (int64, error) {
	m := orderInfoPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, models.ErrNoInvoice
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, models.ErrNoInvoice
	}
	return id, nil
}

// newTransactionID is partner code + ICT timestamp + random suffix.
func newTransactionID(partner string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return partner + timeutil.FormatICT(now, timeutil.CompactLayout) + suffix
}

// toMinorUnits multiplies by factor and insists on an integral positive result.
func toMinorUnits(amount decimal.Decimal, factor int64) (int64, error) {
	minor := amount.Mul(decimal.NewFromInt(factor))
	if !minor.IsInteger() || !minor.IsPositive() {
		return 0, fmt.Errorf("%w: amount %s is not a positive whole number of minor units", models.ErrValidation, amount)
	}
	return minor.IntPart(), nil
}

// signatureMatches compares hex signatures in constant time, case-insensitively.
func signatureMatches(expected []byte, supplied string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(supplied))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
