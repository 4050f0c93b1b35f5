package models

import "github.com/shopspring/decimal"

type RoomStatus string

const (
	RoomStatusVacant   RoomStatus = "VACANT"
	RoomStatusOccupied RoomStatus = "OCCUPIED"
)

// Room is read-only input to invoice generation.
type Room struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Rent            decimal.Decimal `json:"rent"`
	Status          RoomStatus      `json:"status"`
	CurrentTenantID *int64          `json:"current_tenant_id,omitempty"`
}

// HasTenant reports whether someone is billed for this room.
func (r *Room) HasTenant() bool {
	return r.CurrentTenantID != nil
}
