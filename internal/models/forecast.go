package models

import "github.com/shopspring/decimal"

// Forecast represents the current month's spending picture in the base currency
type Forecast struct {
	Currency        string           `json:"currency"`
	Spent           decimal.Decimal  `json:"spent"`
	Forecast        decimal.Decimal  `json:"forecast"`
	BudgetTotal     *decimal.Decimal `json:"budget_total"`     // nil when no budgets exist
	BudgetRemaining *decimal.Decimal `json:"budget_remaining"` // BudgetTotal - Spent
}

// MonthOutlook represents projected obligations for one calendar month
type MonthOutlook struct {
	Month         string          `json:"month"` // Format: YYYY-MM
	Subscriptions decimal.Decimal `json:"subscriptions"`
	Installments  decimal.Decimal `json:"installments"`
	Total         decimal.Decimal `json:"total"`
}
