package models

import "github.com/shopspring/decimal"

// Budget is a monthly spending ceiling for a category
type Budget struct {
	Category     string          `json:"category"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
	Currency     string          `json:"currency"`
}
