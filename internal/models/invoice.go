package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "UNPAID"
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
)

// invoiceTransitions lists every legal move. PAID has no way out.
var invoiceTransitions = map[InvoiceStatus]map[InvoiceStatus]struct{}{
	InvoiceStatusUnpaid:  {InvoiceStatusPending: {}, InvoiceStatusPaid: {}},
	InvoiceStatusPending: {InvoiceStatusPaid: {}},
	InvoiceStatusPaid:    {},
}

// CanTransition reports whether an invoice may move from one status to another.
func CanTransition(from, to InvoiceStatus) bool {
	next, ok := invoiceTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

func (s InvoiceStatus) Valid() bool {
	_, ok := invoiceTransitions[s]
	return ok
}

// Invoice is the bill for one room and period. Prices are copied at creation
// and Total is never recomputed.
type Invoice struct {
	ID               int64           `json:"id"`
	RoomID           int64           `json:"room_id"`
	TenantID         int64           `json:"tenant_id"`
	ReadingID        *int64          `json:"reading_id,omitempty"`
	Period           string          `json:"period"`
	Rent             decimal.Decimal `json:"rent"`
	ElectricityUsed  int64           `json:"electricity_used"`
	ElectricityPrice decimal.Decimal `json:"electricity_price"`
	WaterUsed        int64           `json:"water_used"`
	WaterPrice       decimal.Decimal `json:"water_price"`
	Surcharge        decimal.Decimal `json:"surcharge"`
	Total            decimal.Decimal `json:"total"`
	Status           InvoiceStatus   `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	RequestedAt      *time.Time      `json:"requested_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
}

// ComputeTotal is rent + electricity + water + surcharge.
func (i *Invoice) ComputeTotal() decimal.Decimal {
	electricity := i.ElectricityPrice.Mul(decimal.NewFromInt(i.ElectricityUsed))
	water := i.WaterPrice.Mul(decimal.NewFromInt(i.WaterUsed))
	return i.Rent.Add(electricity).Add(water).Add(i.Surcharge)
}

// InvoiceFilter narrows invoice listings. Zero values mean "any".
type InvoiceFilter struct {
	TenantID *int64
	RoomID   *int64
	Period   string
	Status   InvoiceStatus
	Limit    int
	Offset   int
}
