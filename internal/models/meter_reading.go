package models

import "time"

// MeterReading holds the electricity and water counters of one room for one
// period (YYYY-MM). Once Locked it is immutable.
type MeterReading struct {
	ID             int64      `json:"id"`
	RoomID         int64      `json:"room_id"`
	Period         string     `json:"period"`
	ElectricityOld int64      `json:"electricity_old"`
	ElectricityNew int64      `json:"electricity_new"`
	WaterOld       int64      `json:"water_old"`
	WaterNew       int64      `json:"water_new"`
	Locked         bool       `json:"locked"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ElectricityUsed never goes negative; a rolled-back meter bills zero.
func (m *MeterReading) ElectricityUsed() int64 {
	return nonNegative(m.ElectricityNew - m.ElectricityOld)
}

// WaterUsed never goes negative.
func (m *MeterReading) WaterUsed() int64 {
	return nonNegative(m.WaterNew - m.WaterOld)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// CreateMeterReadingRequest is the manager's input. Old counters are filled
// from the latest earlier reading unless given.
type CreateMeterReadingRequest struct {
	RoomID         int64  `json:"room_id"`
	Period         string `json:"period"`
	ElectricityOld *int64 `json:"electricity_old,omitempty"`
	ElectricityNew int64  `json:"electricity_new"`
	WaterOld       *int64 `json:"water_old,omitempty"`
	WaterNew       int64  `json:"water_new"`
}
