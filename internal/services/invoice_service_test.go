package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-backend/internal/cache"
	"rental-backend/internal/gateway"
	"rental-backend/internal/models"
)

func TestRequestPaymentByOwner(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, "2024-05")

	got, err := f.invoices.RequestPayment(context.Background(), inv.ID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPending, got.Status)
	require.NotNil(t, got.RequestedAt)
	assert.True(t, fixedNow.Equal(*got.RequestedAt))
	assert.Contains(t, f.cache.invalidated, cache.PaymentStatusKey(gateway.NameVNPay, inv.ID))
}

func TestRequestPaymentGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "2024-05")
	other := int64(777)

	_, err := f.invoices.RequestPayment(ctx, inv.ID, models.Principal{Role: models.RoleTenant, TenantID: &other})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.invoices.RequestPayment(ctx, inv.ID, f.manager)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.invoices.RequestPayment(ctx, 4242, f.owner)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.invoices.RequestPayment(ctx, inv.ID, f.owner)
	require.NoError(t, err)
	_, err = f.invoices.RequestPayment(ctx, inv.ID, f.owner)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestRequestPaymentOnPaidInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, "2024-05")
	_, err := f.invoices.ConfirmPaid(context.Background(), inv.ID, f.manager)
	require.NoError(t, err)

	_, err = f.invoices.RequestPayment(context.Background(), inv.ID, f.owner)
	assert.ErrorIs(t, err, models.ErrAlreadyPaid)

	stored := f.storedInvoice(t, inv.ID)
	assert.Equal(t, models.InvoiceStatusPaid, stored.Status)
	assert.Nil(t, stored.RequestedAt)
}

func TestConfirmPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "2024-05")

	_, err := f.invoices.ConfirmPaid(ctx, inv.ID, f.owner)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.invoices.RequestPayment(ctx, inv.ID, f.owner)
	require.NoError(t, err)

	got, err := f.invoices.ConfirmPaid(ctx, inv.ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)

	_, err = f.invoices.ConfirmPaid(ctx, inv.ID, f.manager)
	assert.ErrorIs(t, err, models.ErrAlreadyPaid)

	_, err = f.invoices.ConfirmPaid(ctx, 4242, f.manager)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestManagerConfirmRacesGatewaySuccess(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		inv := f.invoice(t, "2024-05")

		var wg sync.WaitGroup
		var confirmErr error
		var res *ReconciliationResult
		var recErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, confirmErr = f.invoices.ConfirmPaid(ctx, inv.ID, f.manager)
		}()
		go func() {
			defer wg.Done()
			res, recErr = f.reconciler.Reconcile(ctx, outcome(inv.ID, "T1", 2_550_000, gateway.OutcomeSuccess))
		}()
		wg.Wait()

		require.NoError(t, recErr)
		managerWon := confirmErr == nil
		if !managerWon {
			assert.ErrorIs(t, confirmErr, models.ErrAlreadyPaid)
		}
		assert.NotEqual(t, managerWon, res.InvoicePaid, "exactly one side moves the invoice")
		assert.Equal(t, models.InvoiceStatusPaid, f.storedInvoice(t, inv.ID).Status)
	}
}

func TestListInvoicesScopesTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.invoice(t, "2024-05")

	otherTenant := f.store.PutTenant(models.Tenant{})
	f.store.PutInvoice(models.Invoice{RoomID: f.room.ID + 100, TenantID: otherTenant.ID, Period: "2024-05"})

	list, err := f.invoices.List(ctx, f.owner, models.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	all, err := f.invoices.List(ctx, f.manager, models.InvoiceFilter{Period: "2024-05"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.invoices.List(ctx, f.manager, models.InvoiceFilter{Status: "REFUNDED"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetInvoiceAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "2024-05")
	other := int64(777)

	_, err := f.invoices.Get(ctx, inv.ID, f.owner)
	assert.NoError(t, err)
	_, err = f.invoices.Get(ctx, inv.ID, f.manager)
	assert.NoError(t, err)
	_, err = f.invoices.Get(ctx, inv.ID, models.Principal{Role: models.RoleTenant, TenantID: &other})
	assert.ErrorIs(t, err, models.ErrForbidden)

	payments, err := f.invoices.Payments(ctx, inv.ID, f.owner)
	require.NoError(t, err)
	assert.Empty(t, payments)
}
