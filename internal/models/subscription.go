package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the billing cadence of a subscription
type Frequency string

const (
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyYearly  Frequency = "YEARLY"
)

// Subscription represents an open-ended recurring charge
type Subscription struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Frequency   Frequency       `json:"frequency"`
	DayOfMonth  *int            `json:"day_of_month,omitempty"`
	Active      bool            `json:"active"`
	NextDueDate time.Time       `json:"next_due_date"`
}

// Occurrence is a single projected due date of a subscription
type Occurrence struct {
	SubscriptionID string          `json:"subscription_id"`
	DueDate        time.Time       `json:"due_date"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}
