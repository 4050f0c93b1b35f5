package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rental-backend/internal/models"
	"rental-backend/internal/timeutil"
)

const (
	momoResultSuccess    = 0
	momoResultAuthorized = 9000
	momoResultUserDenied = 1006
)

type MoMoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNURL      string
	RequestType string
	Timeout     time.Duration
	Now         func() time.Time
}

// MoMo creates payments through a server-to-server call and reports results
// both on the user redirect and through an IPN POST. Signatures are
// HMAC-SHA256 over a fixed key=value& sequence.
type MoMo struct {
	cfg    MoMoConfig
	client *resty.Client
}

func NewMoMo(cfg MoMoConfig) *MoMo {
	if cfg.Now == nil {
		cfg.Now = timeutil.Now
	}
	if cfg.RequestType == "" {
		cfg.RequestType = "captureWallet"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &MoMo{cfg: cfg, client: client}
}

func (m *MoMo) Name() string { return NameMoMo }

type momoUserInfo struct {
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Email       string `json:"email,omitempty"`
}

type momoCreateRequest struct {
	PartnerCode string        `json:"partnerCode"`
	RequestID   string        `json:"requestId"`
	Amount      int64         `json:"amount"`
	OrderID     string        `json:"orderId"`
	OrderInfo   string        `json:"orderInfo"`
	RedirectURL string        `json:"redirectUrl"`
	IPNURL      string        `json:"ipnUrl"`
	RequestType string        `json:"requestType"`
	ExtraData   string        `json:"extraData"`
	Lang        string        `json:"lang"`
	UserInfo    *momoUserInfo `json:"userInfo,omitempty"`
	Signature   string        `json:"signature"`
}

type momoCreateResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink"`
	QRCodeURL    string `json:"qrCodeUrl"`
}

func (m *MoMo) CreatePaymentURL(ctx context.Context, req PaymentRequest) (*PaymentURL, error) {
	amount, err := toMinorUnits(req.Amount, 1)
	if err != nil {
		return nil, err
	}

	body := momoCreateRequest{
		PartnerCode: m.cfg.PartnerCode,
		RequestID:   uuid.NewString(),
		Amount:      amount,
		OrderID:     newTransactionID(m.cfg.PartnerCode, m.cfg.Now()),
		OrderInfo:   FormatOrderInfo(req.InvoiceID),
		RedirectURL: m.cfg.RedirectURL,
		IPNURL:      m.cfg.IPNURL,
		RequestType: m.cfg.RequestType,
		Lang:        "vi",
	}
	if rt := req.Options["requestType"]; rt == "captureWallet" || rt == "payWithATM" || rt == "payWithCC" {
		body.RequestType = rt
	}
	if lang := req.Options["lang"]; lang == "vi" || lang == "en" {
		body.Lang = lang
	}
	if p := req.Payer; p != nil && (p.Name != "" || p.Phone != "" || p.Email != "") {
		body.UserInfo = &momoUserInfo{Name: p.Name, PhoneNumber: p.Phone, Email: p.Email}
	}
	body.Signature = hex.EncodeToString(m.sign(momoCreateCanonical(m.cfg.AccessKey, body)))

	var out momoCreateResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(m.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: momo create: %v", models.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: momo create returned HTTP %d", models.ErrGatewayUnavailable, resp.StatusCode())
	}
	if out.ResultCode != momoResultSuccess || out.PayURL == "" {
		return nil, fmt.Errorf("%w: momo create rejected: code %d: %s", models.ErrGatewayUnavailable, out.ResultCode, out.Message)
	}

	return &PaymentURL{
		Code:          "00",
		Message:       "success",
		TransactionID: body.OrderID,
		PaymentURL:    out.PayURL,
	}, nil
}

// InboundParams reads the redirect query string, or the JSON body of an IPN POST.
func (m *MoMo) InboundParams(r *http.Request) (url.Values, error) {
	if r.Method != http.MethodPost {
		return r.URL.Query(), nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", models.ErrValidation, err)
	}
	return momoValuesFromJSON(raw)
}

func momoValuesFromJSON(raw []byte) (url.Values, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: malformed momo payload: %v", models.ErrValidation, err)
	}
	params := url.Values{}
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			params.Set(k, val)
		case json.Number:
			params.Set(k, val.String())
		case bool:
			params.Set(k, strconv.FormatBool(val))
		case nil:
			params.Set(k, "")
		}
	}
	return params, nil
}

func (m *MoMo) VerifyInbound(params url.Values) (*VerifiedOutcome, error) {
	supplied := params.Get("signature")
	if supplied == "" {
		return nil, models.ErrSignatureInvalid
	}
	if !signatureMatches(m.sign(momoResultCanonical(m.cfg.AccessKey, params)), supplied) {
		return nil, models.ErrSignatureInvalid
	}
	if params.Get("partnerCode") != m.cfg.PartnerCode {
		return nil, models.ErrSignatureInvalid
	}

	invoiceID, err := ParseOrderInfo(params.Get("orderInfo"))
	if err != nil {
		return nil, err
	}
	amount, err := strconv.ParseInt(params.Get("amount"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", models.ErrValidation, params.Get("amount"))
	}
	orderID := params.Get("orderId")
	if orderID == "" {
		return nil, fmt.Errorf("%w: missing orderId", models.ErrValidation)
	}
	code, err := strconv.Atoi(params.Get("resultCode"))
	if err != nil {
		return nil, fmt.Errorf("%w: resultCode %q", models.ErrValidation, params.Get("resultCode"))
	}

	return &VerifiedOutcome{
		Gateway:       NameMoMo,
		TransactionID: orderID,
		GatewayRef:    params.Get("transId"),
		InvoiceID:     invoiceID,
		Amount:        decimal.NewFromInt(amount),
		Outcome:       momoOutcome(code),
		ResponseCode:  strconv.Itoa(code),
		Message:       params.Get("message"),
	}, nil
}

func momoOutcome(code int) Outcome {
	switch code {
	case momoResultSuccess:
		return OutcomeSuccess
	case momoResultAuthorized:
		// held but not captured; the capture IPN carries resultCode 0
		return OutcomeFailed
	case momoResultUserDenied:
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// CallbackAck answers an IPN. MoMo wants 204 once the message is handled;
// recorded mismatches count as handled. Anything else it may retry.
func (m *MoMo) CallbackAck(err error) Ack {
	switch {
	case err == nil, errors.Is(err, models.ErrAmountMismatch):
		return Ack{Status: http.StatusNoContent}
	case errors.Is(err, models.ErrSignatureInvalid),
		errors.Is(err, models.ErrNoInvoice),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, models.ErrValidation):
		return Ack{Status: http.StatusBadRequest}
	default:
		return Ack{Status: http.StatusInternalServerError}
	}
}

func (m *MoMo) sign(canonical string) []byte {
	mac := hmac.New(sha256.New, []byte(m.cfg.SecretKey))
	mac.Write([]byte(canonical))
	return mac.Sum(nil)
}

// momoCreateCanonical is the raw signature of a create request. Field order
// is fixed by MoMo and values are not encoded.
func momoCreateCanonical(accessKey string, r momoCreateRequest) string {
	return joinPairs(
		"accessKey", accessKey,
		"amount", strconv.FormatInt(r.Amount, 10),
		"extraData", r.ExtraData,
		"ipnUrl", r.IPNURL,
		"orderId", r.OrderID,
		"orderInfo", r.OrderInfo,
		"partnerCode", r.PartnerCode,
		"redirectUrl", r.RedirectURL,
		"requestId", r.RequestID,
		"requestType", r.RequestType,
	)
}

// momoResultCanonical is the raw signature of a redirect or IPN result.
func momoResultCanonical(accessKey string, p url.Values) string {
	return joinPairs(
		"accessKey", accessKey,
		"amount", p.Get("amount"),
		"extraData", p.Get("extraData"),
		"message", p.Get("message"),
		"orderId", p.Get("orderId"),
		"orderInfo", p.Get("orderInfo"),
		"orderType", p.Get("orderType"),
		"partnerCode", p.Get("partnerCode"),
		"payType", p.Get("payType"),
		"requestId", p.Get("requestId"),
		"responseTime", p.Get("responseTime"),
		"resultCode", p.Get("resultCode"),
		"transId", p.Get("transId"),
	)
}

func joinPairs(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv[i])
		b.WriteByte('=')
		b.WriteString(kv[i+1])
	}
	return b.String()
}
