package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-backend/internal/models"
)

const (
	momoAccessKey = "F8BBA842ECF85"
	momoSecretKey = "K951B6PE1waDMi640xX08PD3vg6EkVlz"
)

func testMoMo(endpoint string) *MoMo {
	fixed := time.Date(2024, 5, 1, 3, 4, 5, 0, time.UTC)
	return NewMoMo(MoMoConfig{
		PartnerCode: "MOMO",
		AccessKey:   momoAccessKey,
		SecretKey:   momoSecretKey,
		Endpoint:    endpoint,
		RedirectURL: "https://api.example.com/momo/return",
		IPNURL:      "https://api.example.com/momo/callback",
		Timeout:     200 * time.Millisecond,
		Now:         func() time.Time { return fixed },
	})
}

func hmac256(s string) string {
	mac := hmac.New(sha256.New, []byte(momoSecretKey))
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

func signedMoMoResult(orderID, amount, resultCode string) url.Values {
	p := url.Values{}
	p.Set("partnerCode", "MOMO")
	p.Set("orderId", orderID)
	p.Set("requestId", "7a1c1b0e-0f6b-4a53-8d4f-3b2a2f0b9d11")
	p.Set("amount", amount)
	p.Set("orderInfo", "Thanh toan hoa don 42")
	p.Set("orderType", "momo_wallet")
	p.Set("transId", "4088878653")
	p.Set("resultCode", resultCode)
	p.Set("message", "Successful.")
	p.Set("payType", "qr")
	p.Set("responseTime", "1714532700000")
	p.Set("extraData", "")
	p.Set("signature", hmac256(momoResultCanonical(momoAccessKey, p)))
	return p
}

func TestMoMoResultCanonicalOrder(t *testing.T) {
	p := signedMoMoResult("MOMO1", "2550000", "0")
	assert.Equal(t,
		"accessKey=F8BBA842ECF85&amount=2550000&extraData=&message=Successful.&orderId=MOMO1"+
			"&orderInfo=Thanh toan hoa don 42&orderType=momo_wallet&partnerCode=MOMO&payType=qr"+
			"&requestId=7a1c1b0e-0f6b-4a53-8d4f-3b2a2f0b9d11&responseTime=1714532700000&resultCode=0&transId=4088878653",
		momoResultCanonical(momoAccessKey, p))
}

func TestMoMoCreatePaymentURL(t *testing.T) {
	var got momoCreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"partnerCode":"MOMO","orderId":%q,"requestId":%q,"amount":%d,"resultCode":0,"message":"Successful.","payUrl":"https://test-payment.momo.vn/pay/abc"}`,
			got.OrderID, got.RequestID, got.Amount)
	}))
	defer srv.Close()

	m := testMoMo(srv.URL)
	res, err := m.CreatePaymentURL(context.Background(), PaymentRequest{
		InvoiceID: 42,
		Amount:    decimal.NewFromInt(2_550_000),
		Options:   map[string]string{"requestType": "payWithATM"},
		Payer:     &Payer{Name: "Nguyen Van A", Phone: "0901234567"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://test-payment.momo.vn/pay/abc", res.PaymentURL)
	assert.Equal(t, got.OrderID, res.TransactionID)
	assert.True(t, strings.HasPrefix(got.OrderID, "MOMO20240501100405"))
	assert.Equal(t, int64(2_550_000), got.Amount)
	assert.Equal(t, "Thanh toan hoa don 42", got.OrderInfo)
	assert.Equal(t, "payWithATM", got.RequestType)
	require.NotNil(t, got.UserInfo)
	assert.Equal(t, "0901234567", got.UserInfo.PhoneNumber)

	raw := "accessKey=" + momoAccessKey +
		"&amount=2550000&extraData=&ipnUrl=https://api.example.com/momo/callback" +
		"&orderId=" + got.OrderID +
		"&orderInfo=Thanh toan hoa don 42&partnerCode=MOMO" +
		"&redirectUrl=https://api.example.com/momo/return" +
		"&requestId=" + got.RequestID +
		"&requestType=payWithATM"
	assert.Equal(t, hmac256(raw), got.Signature)
}

func TestMoMoCreateGatewayFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"rejected", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"resultCode":20,"message":"Bad format request."}`)
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := testMoMo(srv.URL).CreatePaymentURL(context.Background(), PaymentRequest{
				InvoiceID: 42,
				Amount:    decimal.NewFromInt(2_550_000),
			})
			assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
		})
	}
}

func TestMoMoVerifyInbound(t *testing.T) {
	m := testMoMo("http://unused")
	tests := []struct {
		code string
		want Outcome
	}{
		{"0", OutcomeSuccess},
		{"9000", OutcomeFailed},
		{"1006", OutcomeCancelled},
		{"1005", OutcomeFailed},
		{"49", OutcomeFailed},
	}
	for _, tt := range tests {
		out, err := m.VerifyInbound(signedMoMoResult("MOMO1", "2550000", tt.code))
		require.NoError(t, err, tt.code)
		assert.Equal(t, tt.want, out.Outcome, tt.code)
		assert.Equal(t, "MOMO1", out.TransactionID)
		assert.Equal(t, "4088878653", out.GatewayRef)
		assert.Equal(t, int64(42), out.InvoiceID)
		assert.True(t, decimal.NewFromInt(2_550_000).Equal(out.Amount))
	}
}

func TestMoMoTamperedParamsAreRejected(t *testing.T) {
	m := testMoMo("http://unused")
	for field, value := range map[string]string{
		"amount":     "1000",
		"resultCode": "0",
		"orderId":    "MOMO2",
		"orderInfo":  "Thanh toan hoa don 43",
	} {
		p := signedMoMoResult("MOMO1", "2550000", "1006")
		p.Set(field, value)
		_, err := m.VerifyInbound(p)
		assert.ErrorIs(t, err, models.ErrSignatureInvalid, field)
	}
}

func TestMoMoInboundParamsFromIPNBody(t *testing.T) {
	body := `{"partnerCode":"MOMO","orderId":"MOMO1","requestId":"r1","amount":2550000,` +
		`"orderInfo":"Thanh toan hoa don 42","orderType":"momo_wallet","transId":4088878653,` +
		`"resultCode":0,"message":"Successful.","payType":"qr","responseTime":1714532700000,` +
		`"extraData":"","signature":"abc"}`
	req := httptest.NewRequest(http.MethodPost, "/momo/callback", strings.NewReader(body))

	p, err := testMoMo("http://unused").InboundParams(req)
	require.NoError(t, err)
	assert.Equal(t, "2550000", p.Get("amount"))
	assert.Equal(t, "4088878653", p.Get("transId"))
	assert.Equal(t, "0", p.Get("resultCode"))
	assert.Equal(t, "1714532700000", p.Get("responseTime"))

	bad := httptest.NewRequest(http.MethodPost, "/momo/callback", strings.NewReader("{not json"))
	_, err = testMoMo("http://unused").InboundParams(bad)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestMoMoCallbackAck(t *testing.T) {
	m := testMoMo("http://unused")
	assert.Equal(t, http.StatusNoContent, m.CallbackAck(nil).Status)
	assert.Equal(t, http.StatusNoContent, m.CallbackAck(models.ErrAmountMismatch).Status)
	assert.Equal(t, http.StatusBadRequest, m.CallbackAck(models.ErrSignatureInvalid).Status)
	assert.Equal(t, http.StatusInternalServerError, m.CallbackAck(assert.AnError).Status)
}
