package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-backend/internal/models"
)

func seededInvoice(t *testing.T, s *MemoryStore) *models.Invoice {
	t.Helper()
	return s.PutInvoice(models.Invoice{RoomID: 1, TenantID: 2, Period: "2024-05", Total: decimal.NewFromInt(100)})
}

func TestMemoryUpsertPaymentNeverLeavesSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	inv := seededInvoice(t, s)
	paidAt := time.Now()

	upsert := func(status models.PaymentStatus) models.UpsertResult {
		var res models.UpsertResult
		err := s.WithInvoiceLock(ctx, inv.ID, func(ctx context.Context, tx InvoiceTx) error {
			p := &models.Payment{InvoiceID: inv.ID, Gateway: "vnpay", TransactionID: "T1", Status: status, PaidAt: &paidAt}
			var err error
			res, err = tx.UpsertPayment(ctx, p)
			return err
		})
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, models.UpsertInserted, upsert(models.PaymentStatusFailed))
	assert.Equal(t, models.UpsertUpdated, upsert(models.PaymentStatusSuccess))
	assert.Equal(t, models.UpsertUnchanged, upsert(models.PaymentStatusFailed))

	payments := s.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusSuccess, payments[0].Status)
}

func TestMemoryInvoiceLockDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	inv := seededInvoice(t, s)

	err := s.WithInvoiceLock(ctx, inv.ID, func(ctx context.Context, tx InvoiceTx) error {
		_, err := tx.UpsertPayment(ctx, &models.Payment{InvoiceID: inv.ID, Gateway: "momo", TransactionID: "M1", Status: models.PaymentStatusSuccess})
		require.NoError(t, err)
		_, err = tx.MarkPaid(ctx, time.Now())
		require.NoError(t, err)
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, s.Payments())

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusUnpaid, got.Status)
}

func TestMemoryLockReadingWritesInvoiceOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	r := &models.MeterReading{RoomID: 1, Period: "2024-05"}
	require.NoError(t, s.CreateReading(ctx, r))

	locked, created, err := s.LockReading(ctx, r.ID, now, &models.Invoice{RoomID: 1, TenantID: 1, Period: "2024-05"})
	require.NoError(t, err)
	assert.True(t, locked)
	assert.True(t, created)

	locked, created, err = s.LockReading(ctx, r.ID, now, &models.Invoice{RoomID: 1, TenantID: 2, Period: "2024-05"})
	require.NoError(t, err)
	assert.False(t, locked)
	assert.False(t, created)
	require.Len(t, s.Invoices(), 1)
	assert.Equal(t, int64(1), s.Invoices()[0].TenantID)

	// a second reading for the same (room, period) cannot add another invoice
	other := &models.MeterReading{RoomID: 1, Period: "2024-05"}
	s.readings[99] = other
	other.ID = 99
	locked, created, err = s.LockReading(ctx, 99, now, &models.Invoice{RoomID: 1, TenantID: 1, Period: "2024-05"})
	require.NoError(t, err)
	assert.True(t, locked)
	assert.False(t, created)
	assert.Len(t, s.Invoices(), 1)
}

func TestMemoryConditionalInvoiceWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	inv := seededInvoice(t, s)
	now := time.Now()

	ok, _ := s.MarkInvoiceRequested(ctx, inv.ID, now)
	assert.True(t, ok)
	ok, _ = s.MarkInvoiceRequested(ctx, inv.ID, now)
	assert.False(t, ok)

	ok, _ = s.MarkInvoicePaid(ctx, inv.ID, now)
	assert.True(t, ok)
	ok, _ = s.MarkInvoicePaid(ctx, inv.ID, now.Add(time.Hour))
	assert.False(t, ok)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAt.Equal(now))
}

func TestMemoryLatestReadingBeforeSkipsGaps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateReading(ctx, &models.MeterReading{RoomID: 1, Period: "2024-01", ElectricityNew: 100}))
	require.NoError(t, s.CreateReading(ctx, &models.MeterReading{RoomID: 1, Period: "2024-02", ElectricityNew: 130}))
	require.NoError(t, s.CreateReading(ctx, &models.MeterReading{RoomID: 2, Period: "2024-03", ElectricityNew: 999}))

	prev, err := s.LatestReadingBefore(ctx, 1, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, "2024-02", prev.Period)

	_, err = s.LatestReadingBefore(ctx, 1, "2024-01")
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = s.CreateReading(ctx, &models.MeterReading{RoomID: 1, Period: "2024-02"})
	assert.ErrorIs(t, err, models.ErrDuplicate)
}
