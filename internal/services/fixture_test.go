package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rental-backend/internal/archive"
	"rental-backend/internal/fieldcrypt"
	"rental-backend/internal/gateway"
	"rental-backend/internal/models"
	"rental-backend/internal/repositories"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeCache struct {
	mu          sync.Mutex
	data        map[string][]byte
	invalidated []string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) GetCached(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) SetCached(_ context.Context, key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

func (c *fakeCache) Invalidate(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
		c.invalidated = append(c.invalidated, k)
	}
}

// fakeAdapter trusts messages carrying sig=ok and rejects everything else.
type fakeAdapter struct {
	mu        sync.Mutex
	name      string
	createErr error
	created   int
	lastReq   gateway.PaymentRequest
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) CreatePaymentURL(_ context.Context, req gateway.PaymentRequest) (*gateway.PaymentURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.lastReq = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	txn := fmt.Sprintf("TXN%d", f.created)
	return &gateway.PaymentURL{
		Code:          "00",
		Message:       "success",
		TransactionID: txn,
		PaymentURL:    "https://pay.example/checkout?ref=" + txn,
	}, nil
}

func (f *fakeAdapter) InboundParams(r *http.Request) (url.Values, error) {
	return r.URL.Query(), nil
}

func (f *fakeAdapter) VerifyInbound(p url.Values) (*gateway.VerifiedOutcome, error) {
	if p.Get("sig") != "ok" {
		return nil, models.ErrSignatureInvalid
	}
	id, err := strconv.ParseInt(p.Get("invoice"), 10, 64)
	if err != nil {
		return nil, models.ErrNoInvoice
	}
	return &gateway.VerifiedOutcome{
		Gateway:       f.name,
		TransactionID: p.Get("txn"),
		InvoiceID:     id,
		Amount:        decimal.RequireFromString(p.Get("amount")),
		Outcome:       gateway.Outcome(p.Get("outcome")),
		ResponseCode:  p.Get("code"),
	}, nil
}

func (f *fakeAdapter) CallbackAck(err error) gateway.Ack {
	if err != nil {
		return gateway.Ack{Status: http.StatusBadRequest}
	}
	return gateway.Ack{Status: http.StatusNoContent}
}

type memArchive struct {
	mu   sync.Mutex
	msgs []archive.Message
}

func (a *memArchive) Store(_ context.Context, m archive.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, m)
	return nil
}

type fixture struct {
	store      *repositories.MemoryStore
	cache      *fakeCache
	archive    *memArchive
	adapter    *fakeAdapter
	cipher     *fieldcrypt.Cipher
	meter      *MeterService
	invoices   *InvoiceService
	reconciler *PaymentReconciler
	payments   *PaymentService
	query      *PaymentQuery

	room    *models.Room
	tenant  *models.Tenant
	owner   models.Principal
	manager models.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()
	clock := func() time.Time { return fixedNow }

	c, err := fieldcrypt.New(fieldcrypt.Config{CurrentKey: testKey})
	require.NoError(t, err)

	f := &fixture{
		store:   repositories.NewMemoryStore(),
		cache:   newFakeCache(),
		archive: &memArchive{},
		adapter: &fakeAdapter{name: gateway.NameVNPay},
		cipher:  c,
	}
	require.NoError(t, f.store.SetUtilityPrices(context.Background(), models.UtilityPrices{
		Electricity: decimal.NewFromInt(3_500),
		Water:       decimal.NewFromInt(15_000),
	}))

	name, err := c.Encrypt("Nguyen Van A")
	require.NoError(t, err)
	phone, err := c.Encrypt("0901234567")
	require.NoError(t, err)
	f.tenant = f.store.PutTenant(models.Tenant{FullName: name, Phone: phone})
	f.room = f.store.PutRoom(models.Room{
		Name:            "101",
		Rent:            decimal.NewFromInt(2_000_000),
		Status:          models.RoomStatusOccupied,
		CurrentTenantID: &f.tenant.ID,
	})
	f.owner = models.Principal{UserID: 10, Role: models.RoleTenant, TenantID: &f.tenant.ID}
	f.manager = models.Principal{UserID: 1, Role: models.RoleManager}

	registry := gateway.NewRegistry(f.adapter)
	f.meter = NewMeterService(f.store, f.store, f.store, f.store, f.cache, log)
	f.meter.now = clock
	f.invoices = NewInvoiceService(f.store, f.store, f.cache, log)
	f.invoices.now = clock
	f.reconciler = NewPaymentReconciler(f.store, f.invoices, f.cache, log)
	f.reconciler.now = clock
	f.payments = NewPaymentService(registry, f.store, f.store, f.store, c, f.reconciler, f.archive, f.cache, log)
	f.payments.now = clock
	f.query = NewPaymentQuery(registry, f.store, f.store, f.cache, log)
	return f
}

// invoice seeds an UNPAID 2,550,000 invoice for the fixture room.
func (f *fixture) invoice(t *testing.T, period string) *models.Invoice {
	t.Helper()
	return f.store.PutInvoice(models.Invoice{
		RoomID:           f.room.ID,
		TenantID:         f.tenant.ID,
		Period:           period,
		Rent:             decimal.NewFromInt(2_000_000),
		ElectricityUsed:  50,
		ElectricityPrice: decimal.NewFromInt(3_500),
		WaterUsed:        25,
		WaterPrice:       decimal.NewFromInt(15_000),
		Total:            decimal.NewFromInt(2_550_000),
		Status:           models.InvoiceStatusUnpaid,
		CreatedAt:        fixedNow,
	})
}

func (f *fixture) storedInvoice(t *testing.T, id int64) *models.Invoice {
	t.Helper()
	inv, err := f.store.GetInvoice(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func outcome(invoiceID int64, txn string, amount int64, o gateway.Outcome) *gateway.VerifiedOutcome {
	code := "00"
	switch o {
	case gateway.OutcomeCancelled:
		code = "24"
	case gateway.OutcomeFailed:
		code = "51"
	}
	return &gateway.VerifiedOutcome{
		Gateway:       gateway.NameVNPay,
		TransactionID: txn,
		GatewayRef:    "REF-" + txn,
		InvoiceID:     invoiceID,
		Amount:        decimal.NewFromInt(amount),
		Outcome:       o,
		ResponseCode:  code,
	}
}

func int64Ptr(v int64) *int64 { return &v }
