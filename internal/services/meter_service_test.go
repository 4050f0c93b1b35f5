package services

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-backend/internal/models"
)

func TestLockCreatesInvoiceFromReading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{
		RoomID:         f.room.ID,
		Period:         "2024-05",
		ElectricityOld: int64Ptr(100),
		ElectricityNew: 150,
		WaterOld:       int64Ptr(50),
		WaterNew:       75,
	})
	require.NoError(t, err)

	res, err := f.meter.Lock(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.NotNil(t, res.Invoice)

	inv := res.Invoice
	assert.Equal(t, models.InvoiceStatusUnpaid, inv.Status)
	assert.Equal(t, f.tenant.ID, inv.TenantID)
	assert.Equal(t, int64(50), inv.ElectricityUsed)
	assert.Equal(t, int64(25), inv.WaterUsed)
	assert.True(t, decimal.NewFromInt(2_550_000).Equal(inv.Total), inv.Total.String())
	assert.True(t, res.Reading.Locked)

	// later price changes never touch an issued invoice
	require.NoError(t, f.meter.SetUtilityPrices(ctx, models.UtilityPrices{
		Electricity: decimal.NewFromInt(4_000),
		Water:       decimal.NewFromInt(20_000),
	}))
	stored := f.storedInvoice(t, inv.ID)
	assert.True(t, decimal.NewFromInt(3_500).Equal(stored.ElectricityPrice))
	assert.True(t, decimal.NewFromInt(2_550_000).Equal(stored.Total))
}

func TestLockTwiceYieldsOneInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{
		RoomID: f.room.ID, Period: "2024-05", ElectricityNew: 10, WaterNew: 5,
	})
	require.NoError(t, err)

	first, err := f.meter.Lock(ctx, r.ID)
	require.NoError(t, err)
	second, err := f.meter.Lock(ctx, r.ID)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, "exists", second.Reason)
	assert.Equal(t, first.Invoice.ID, second.Invoice.ID)
	assert.Len(t, f.store.Invoices(), 1)
}

func TestConcurrentLocksCreateOneInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{
		RoomID: f.room.ID, Period: "2024-05", ElectricityNew: 10, WaterNew: 5,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.meter.OnLock(ctx, r.ID)
			if !assert.NoError(t, err) {
				return
			}
			if res.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, f.store.Invoices(), 1)
}

func TestRelockAfterTenantMovesInIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.store.PutRoom(models.Room{Name: "102", Rent: decimal.NewFromInt(1_500_000), Status: models.RoomStatusVacant})
	r, err := f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{
		RoomID: room.ID, Period: "2024-05", ElectricityNew: 10, WaterNew: 5,
	})
	require.NoError(t, err)

	first, err := f.meter.Lock(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "vacant", first.Reason)

	room.Status = models.RoomStatusOccupied
	room.CurrentTenantID = &f.tenant.ID
	f.store.PutRoom(*room)

	second, err := f.meter.Lock(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Nil(t, second.Invoice)
	assert.Equal(t, "already_locked", second.Reason)
	assert.True(t, second.Reading.Locked)

	_, err = f.meter.OnLock(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, f.store.Invoices())
}

func TestLockVacantRoomIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vacant := f.store.PutRoom(models.Room{Name: "102", Rent: decimal.NewFromInt(1_500_000), Status: models.RoomStatusVacant})
	r, err := f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{
		RoomID: vacant.ID, Period: "2024-05", ElectricityNew: 10, WaterNew: 5,
	})
	require.NoError(t, err)

	res, err := f.meter.Lock(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Nil(t, res.Invoice)
	assert.Equal(t, "vacant", res.Reason)
	assert.Empty(t, f.store.Invoices())
}

func TestLockUnknownReading(t *testing.T) {
	f := newFixture(t)
	_, err := f.meter.Lock(context.Background(), 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateReadingTakesOldCountersFromLatestEarlierPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{
		RoomID: f.room.ID, Period: "2024-02", ElectricityNew: 120, WaterNew: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.ElectricityOld)
	assert.Equal(t, int64(0), first.WaterOld)

	// 2024-03 and 2024-04 were skipped
	r, err := f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{
		RoomID: f.room.ID, Period: "2024-05", ElectricityNew: 200, WaterNew: 70,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(120), r.ElectricityOld)
	assert.Equal(t, int64(40), r.WaterOld)

	_, err = f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{
		RoomID: f.room.ID, Period: "2024-05", ElectricityNew: 1, WaterNew: 1,
	})
	assert.ErrorIs(t, err, models.ErrDuplicate)
}

func TestMeterRollbackBillsZeroConsumption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{
		RoomID:         f.room.ID,
		Period:         "2024-05",
		ElectricityOld: int64Ptr(150),
		ElectricityNew: 100,
		WaterOld:       int64Ptr(50),
		WaterNew:       75,
	})
	require.NoError(t, err)

	res, err := f.meter.Lock(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Invoice.ElectricityUsed)
	assert.True(t, decimal.NewFromInt(2_375_000).Equal(res.Invoice.Total), res.Invoice.Total.String())
}

func TestCreateReadingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, req := range []*models.CreateMeterReadingRequest{
		{RoomID: f.room.ID, Period: "2024-13", ElectricityNew: 1, WaterNew: 1},
		{RoomID: f.room.ID, Period: "May 2024", ElectricityNew: 1, WaterNew: 1},
		{RoomID: 0, Period: "2024-05", ElectricityNew: 1, WaterNew: 1},
		{RoomID: f.room.ID, Period: "2024-05", ElectricityNew: -1, WaterNew: 1},
	} {
		_, err := f.meter.CreateReading(ctx, req)
		assert.ErrorIs(t, err, models.ErrValidation, "%+v", req)
	}

	_, err := f.meter.CreateReading(ctx, &models.CreateMeterReadingRequest{RoomID: 4242, Period: "2024-05"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetUtilityPricesRejectsNegative(t *testing.T) {
	f := newFixture(t)
	err := f.meter.SetUtilityPrices(context.Background(), models.UtilityPrices{
		Electricity: decimal.NewFromInt(-1),
		Water:       decimal.NewFromInt(15_000),
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}
