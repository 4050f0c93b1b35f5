package models

import "github.com/shopspring/decimal"

const (
	SettingElectricityPrice = "electricity_price"
	SettingWaterPrice       = "water_price"
)

// UtilityPrices are the unit prices in effect right now. Invoices copy them.
type UtilityPrices struct {
	Electricity decimal.Decimal `json:"electricity_price"`
	Water       decimal.Decimal `json:"water_price"`
}
