package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-backend/internal/gateway"
	"rental-backend/internal/models"
)

func TestReconcileSuccessMarksInvoicePaid(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, "2024-05")

	res, err := f.reconciler.Reconcile(context.Background(), outcome(inv.ID, "T1", 2_550_000, gateway.OutcomeSuccess))
	require.NoError(t, err)
	assert.Equal(t, models.UpsertInserted, res.Upsert)
	assert.True(t, res.InvoicePaid)
	assert.Equal(t, models.InvoiceStatusPaid, res.InvoiceStatus)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusSuccess, payments[0].Status)
	assert.Equal(t, f.tenant.ID, payments[0].TenantID)
	assert.Equal(t, "REF-T1", payments[0].GatewayRef)

	stored := f.storedInvoice(t, inv.ID)
	assert.Equal(t, models.InvoiceStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	inv := f.invoice(t, "2024-05")
	o := outcome(inv.ID, "T1", 2_550_000, gateway.OutcomeSuccess)

	first, err := f.reconciler.Reconcile(context.Background(), o)
	require.NoError(t, err)
	paidAt := *f.storedInvoice(t, inv.ID).PaidAt

	for i := 0; i < 5; i++ {
		res, err := f.reconciler.Reconcile(context.Background(), o)
		require.NoError(t, err)
		assert.Equal(t, models.UpsertUnchanged, res.Upsert)
		assert.False(t, res.InvoicePaid)
		assert.Equal(t, first.Payment.ID, res.Payment.ID)
	}

	assert.Len(t, f.store.Payments(), 1)
	assert.Equal(t, paidAt, *f.storedInvoice(t, inv.ID).PaidAt)
}

func TestReconcileCancelAndFailLeaveInvoiceAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "2024-05")

	res, err := f.reconciler.Reconcile(ctx, outcome(inv.ID, "T1", 2_550_000, gateway.OutcomeCancelled))
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusUnpaid, res.InvoiceStatus)

	_, err = f.reconciler.Reconcile(ctx, outcome(inv.ID, "T2", 2_550_000, gateway.OutcomeFailed))
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusUnpaid, f.storedInvoice(t, inv.ID).Status)

	// a failed attempt does not block a later success
	res, err = f.reconciler.Reconcile(ctx, outcome(inv.ID, "T3", 2_550_000, gateway.OutcomeSuccess))
	require.NoError(t, err)
	assert.True(t, res.InvoicePaid)

	statuses := map[string]models.PaymentStatus{}
	for _, p := range f.store.Payments() {
		statuses[p.TransactionID] = p.Status
	}
	assert.Equal(t, map[string]models.PaymentStatus{
		"T1": models.PaymentStatusCancelled,
		"T2": models.PaymentStatusFailed,
		"T3": models.PaymentStatusSuccess,
	}, statuses)
}

func TestReconcileSuccessNeverRegresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "2024-05")

	_, err := f.reconciler.Reconcile(ctx, outcome(inv.ID, "T1", 2_550_000, gateway.OutcomeFailed))
	require.NoError(t, err)
	res, err := f.reconciler.Reconcile(ctx, outcome(inv.ID, "T1", 2_550_000, gateway.OutcomeSuccess))
	require.NoError(t, err)
	assert.Equal(t, models.UpsertUpdated, res.Upsert)

	// late out-of-order failure for the same transaction
	res, err = f.reconciler.Reconcile(ctx, outcome(inv.ID, "T1", 2_550_000, gateway.OutcomeFailed))
	require.NoError(t, err)
	assert.Equal(t, models.UpsertUnchanged, res.Upsert)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusSuccess, payments[0].Status)
	assert.Equal(t, models.InvoiceStatusPaid, f.storedInvoice(t, inv.ID).Status)
}

func TestReconcileAmountMismatchIsRecordedButNotApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "2024-05")
	o := outcome(inv.ID, "T1", 1_000, gateway.OutcomeSuccess)

	res, err := f.reconciler.Reconcile(ctx, o)
	require.NoError(t, err)
	assert.True(t, res.AmountMismatch)
	assert.False(t, res.InvoicePaid)

	_, err = f.reconciler.Reconcile(ctx, o)
	require.NoError(t, err)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusSuccess, payments[0].Status)
	assert.Equal(t, "1000", payments[0].Amount.String())
	assert.Equal(t, models.InvoiceStatusUnpaid, f.storedInvoice(t, inv.ID).Status)

	anomalies, err := f.store.ListAnomalies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyAmountMismatch, anomalies[0].Kind)
	assert.Equal(t, "2550000", anomalies[0].ExpectedAmount.String())
	assert.Equal(t, "1000", anomalies[0].ReportedAmount.String())
}

func TestReconcileSecondSuccessOnPaidInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.invoice(t, "2024-05")

	_, err := f.reconciler.Reconcile(ctx, outcome(inv.ID, "T1", 2_550_000, gateway.OutcomeSuccess))
	require.NoError(t, err)
	paidAt := *f.storedInvoice(t, inv.ID).PaidAt

	f.reconciler.now = func() time.Time { return fixedNow.Add(time.Hour) }
	res, err := f.reconciler.Reconcile(ctx, outcome(inv.ID, "T2", 2_550_000, gateway.OutcomeSuccess))
	require.NoError(t, err)
	assert.Equal(t, models.UpsertInserted, res.Upsert)
	assert.False(t, res.InvoicePaid)
	assert.Equal(t, models.PaymentStatusSuccess, res.Payment.Status)

	stored := f.storedInvoice(t, inv.ID)
	assert.Equal(t, models.InvoiceStatusPaid, stored.Status)
	assert.Equal(t, paidAt, *stored.PaidAt)
	assert.Len(t, f.store.Payments(), 2)
}

func TestReconcileUnknownInvoiceWritesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.reconciler.Reconcile(context.Background(), outcome(4242, "T1", 2_550_000, gateway.OutcomeSuccess))
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Empty(t, f.store.Payments())
}
