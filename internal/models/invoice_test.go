package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to InvoiceStatus
		want     bool
	}{
		{InvoiceStatusUnpaid, InvoiceStatusPending, true},
		{InvoiceStatusUnpaid, InvoiceStatusPaid, true},
		{InvoiceStatusPending, InvoiceStatusPaid, true},
		{InvoiceStatusPending, InvoiceStatusUnpaid, false},
		{InvoiceStatusPaid, InvoiceStatusUnpaid, false},
		{InvoiceStatusPaid, InvoiceStatusPending, false},
		{InvoiceStatusPaid, InvoiceStatusPaid, false},
		{InvoiceStatusUnpaid, InvoiceStatusUnpaid, false},
		{"VOID", InvoiceStatusPaid, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestComputeTotal(t *testing.T) {
	inv := Invoice{
		Rent:             decimal.NewFromInt(2_000_000),
		ElectricityUsed:  50,
		ElectricityPrice: decimal.NewFromInt(3_500),
		WaterUsed:        25,
		WaterPrice:       decimal.NewFromInt(15_000),
	}
	assert.True(t, decimal.NewFromInt(2_550_000).Equal(inv.ComputeTotal()))
}

func TestConsumptionNeverNegative(t *testing.T) {
	r := MeterReading{ElectricityOld: 900, ElectricityNew: 120, WaterOld: 30, WaterNew: 30}
	assert.Equal(t, int64(0), r.ElectricityUsed())
	assert.Equal(t, int64(0), r.WaterUsed())

	r = MeterReading{ElectricityOld: 100, ElectricityNew: 150, WaterOld: 50, WaterNew: 75}
	assert.Equal(t, int64(50), r.ElectricityUsed())
	assert.Equal(t, int64(25), r.WaterUsed())
}
