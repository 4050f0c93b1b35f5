package gateway

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-backend/internal/models"
)

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestOrderInfoRoundTrip(t *testing.T) {
	for _, id := range []int64{1, 42, 9_000_000_001} {
		got, err := ParseOrderInfo(FormatOrderInfo(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestParseOrderInfoFailsClosed(t *testing.T) {
	for _, s := range []string{
		"",
		"Thanh toan hoa don",
		"Thanh toan hoa don abc",
		"Thanh toan hoa don 0",
		"Thanh toan hoa don -3",
		"Thanh toan hoa don 12 extra",
		"Invoice 12",
		"Thanh toan hoa don 99999999999999999999",
	} {
		_, err := ParseOrderInfo(s)
		assert.ErrorIs(t, err, models.ErrNoInvoice, s)
	}
}

func TestOutcomePaymentStatus(t *testing.T) {
	assert.Equal(t, models.PaymentStatusSuccess, OutcomeSuccess.PaymentStatus())
	assert.Equal(t, models.PaymentStatusCancelled, OutcomeCancelled.PaymentStatus())
	assert.Equal(t, models.PaymentStatusFailed, OutcomeFailed.PaymentStatus())
}

func TestToMinorUnits(t *testing.T) {
	v, err := toMinorUnits(decimal.NewFromInt(2_550_000), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(255_000_000), v)

	_, err = toMinorUnits(decimal.Zero, 1)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = toMinorUnits(decimal.RequireFromString("1000.5"), 1)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(testVNPay(), testMoMo("http://unused"), nil)
	assert.Equal(t, []string{"momo", "vnpay"}, r.Names())

	a, err := r.Get(" VNPay ")
	require.NoError(t, err)
	assert.Equal(t, NameVNPay, a.Name())

	_, err = r.Get("paypal")
	assert.ErrorIs(t, err, models.ErrUnknownGateway)

	var nilRegistry *Registry
	_, err = nilRegistry.Get("vnpay")
	assert.ErrorIs(t, err, models.ErrUnknownGateway)
}
