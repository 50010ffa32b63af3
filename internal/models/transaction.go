package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a recorded expense
type Transaction struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Date        time.Time       `json:"date"`
	Category    string          `json:"category,omitempty"`
	GroupID     string          `json:"group_id,omitempty"` // explicit installment plan reference, optional
}
