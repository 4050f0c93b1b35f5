package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rental-backend/internal/models"
	"rental-backend/internal/timeutil"
)

const (
	vnpayVersion      = "2.1.0"
	vnpayCommand      = "pay"
	vnpayCurrency     = "VND"
	vnpayOrderType    = "other"
	vnpayCodeSuccess  = "00"
	vnpayCodeCanceled = "24"
)

type VNPayConfig struct {
	TmnCode       string
	HashSecret    string
	PayURL        string
	ReturnURL     string
	Locale        string
	ExpireMinutes int
	Now           func() time.Time
}

// VNPay is a browser-redirect gateway. Requests and results are query strings
// signed with HMAC-SHA512 over the sorted, URL-encoded vnp_* parameters.
type VNPay struct {
	cfg VNPayConfig
}

func NewVNPay(cfg VNPayConfig) *VNPay {
	if cfg.Now == nil {
		cfg.Now = timeutil.Now
	}
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	return &VNPay{cfg: cfg}
}

func (v *VNPay) Name() string { return NameVNPay }

func (v *VNPay) CreatePaymentURL(ctx context.Context, req PaymentRequest) (*PaymentURL, error) {
	amount, err := toMinorUnits(req.Amount, 100)
	if err != nil {
		return nil, err
	}

	now := v.cfg.Now()
	txnRef := newTransactionID(v.cfg.TmnCode, now)

	locale := v.cfg.Locale
	if l := req.Options["locale"]; l == "vn" || l == "en" {
		locale = l
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("vnp_Version", vnpayVersion)
	params.Set("vnp_Command", vnpayCommand)
	params.Set("vnp_TmnCode", v.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(amount, 10))
	params.Set("vnp_CurrCode", vnpayCurrency)
	params.Set("vnp_TxnRef", txnRef)
	params.Set("vnp_OrderInfo", FormatOrderInfo(req.InvoiceID))
	params.Set("vnp_OrderType", vnpayOrderType)
	params.Set("vnp_Locale", locale)
	params.Set("vnp_ReturnUrl", v.cfg.ReturnURL)
	params.Set("vnp_IpAddr", ip)
	params.Set("vnp_CreateDate", timeutil.FormatICT(now, timeutil.CompactLayout))
	if v.cfg.ExpireMinutes > 0 {
		expire := now.Add(time.Duration(v.cfg.ExpireMinutes) * time.Minute)
		params.Set("vnp_ExpireDate", timeutil.FormatICT(expire, timeutil.CompactLayout))
	}
	if bank := req.Options["bankCode"]; bank != "" {
		params.Set("vnp_BankCode", bank)
	}

	canonical := vnpayCanonical(params)
	signature := fmt.Sprintf("%x", v.sign(canonical))

	return &PaymentURL{
		Code:          "00",
		Message:       "success",
		TransactionID: txnRef,
		PaymentURL:    v.cfg.PayURL + "?" + canonical + "&vnp_SecureHash=" + signature,
	}, nil
}

// InboundParams reads the query string; VNPay sends both return and IPN as GET.
func (v *VNPay) InboundParams(r *http.Request) (url.Values, error) {
	return r.URL.Query(), nil
}

func (v *VNPay) VerifyInbound(params url.Values) (*VerifiedOutcome, error) {
	supplied := params.Get("vnp_SecureHash")
	if supplied == "" {
		return nil, models.ErrSignatureInvalid
	}
	if !signatureMatches(v.sign(vnpayCanonical(params)), supplied) {
		return nil, models.ErrSignatureInvalid
	}
	if params.Get("vnp_TmnCode") != v.cfg.TmnCode {
		return nil, models.ErrSignatureInvalid
	}

	invoiceID, err := ParseOrderInfo(params.Get("vnp_OrderInfo"))
	if err != nil {
		return nil, err
	}
	minor, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: vnp_Amount %q", models.ErrValidation, params.Get("vnp_Amount"))
	}
	txnRef := params.Get("vnp_TxnRef")
	if txnRef == "" {
		return nil, fmt.Errorf("%w: missing vnp_TxnRef", models.ErrValidation)
	}

	code := params.Get("vnp_ResponseCode")
	return &VerifiedOutcome{
		Gateway:       NameVNPay,
		TransactionID: txnRef,
		GatewayRef:    params.Get("vnp_TransactionNo"),
		InvoiceID:     invoiceID,
		Amount:        decimal.New(minor, -2),
		Outcome:       vnpayOutcome(code, params.Get("vnp_TransactionStatus")),
		ResponseCode:  code,
	}, nil
}

func vnpayOutcome(responseCode, transactionStatus string) Outcome {
	switch {
	case responseCode == vnpayCodeSuccess && (transactionStatus == "" || transactionStatus == vnpayCodeSuccess):
		return OutcomeSuccess
	case responseCode == vnpayCodeCanceled:
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

func (v *VNPay) CallbackAck(err error) Ack {
	type rsp struct {
		RspCode string `json:"RspCode"`
		Message string `json:"Message"`
	}
	switch {
	case err == nil:
		return Ack{Status: http.StatusOK, Body: rsp{"00", "Confirm Success"}}
	case errors.Is(err, models.ErrSignatureInvalid):
		return Ack{Status: http.StatusOK, Body: rsp{"97", "Invalid Checksum"}}
	case errors.Is(err, models.ErrNoInvoice), errors.Is(err, models.ErrNotFound):
		return Ack{Status: http.StatusOK, Body: rsp{"01", "Order not found"}}
	case errors.Is(err, models.ErrAmountMismatch):
		return Ack{Status: http.StatusOK, Body: rsp{"04", "Invalid amount"}}
	default:
		return Ack{Status: http.StatusOK, Body: rsp{"99", "Unknown error"}}
	}
}

func (v *VNPay) sign(canonical string) []byte {
	mac := hmac.New(sha512.New, []byte(v.cfg.HashSecret))
	mac.Write([]byte(canonical))
	return mac.Sum(nil)
}

// vnpayCanonical builds the string VNPay signs: every non-empty vnp_* field
// except the hash fields, sorted by key, each key and value form-encoded
// (space as '+'), joined with '&'.
func vnpayCanonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}
