package models

import "time"

// InstallmentMeta is what the description suffix "(index/total)" carries
type InstallmentMeta struct {
	Index int
	Total int
	Base  string
}

// InstallmentMember is a transaction that belongs to an installment plan
type InstallmentMember struct {
	Transaction
	Index int `json:"index"`
}

// InstallmentPlan groups the transactions of a single installment purchase.
// It is derived on every refresh and never persisted.
type InstallmentPlan struct {
	Key      string              `json:"key"`
	GroupID  string              `json:"group_id,omitempty"`
	Base     string              `json:"base"`
	Total    int                 `json:"total"`
	Currency string              `json:"currency"`
	StartKey string              `json:"start_key"` // Format: YYYY-MM-DD
	Members  []InstallmentMember `json:"members"`
}

// Remaining returns the members due on or after today. Member dates are
// compared as calendar days in today's location.
func (p InstallmentPlan) Remaining(today time.Time) []InstallmentMember {
	ty, tm, td := today.Date()
	start := time.Date(ty, tm, td, 0, 0, 0, 0, today.Location())

	var out []InstallmentMember
	for _, m := range p.Members {
		y, mo, d := m.Date.Date()
		if !time.Date(y, mo, d, 0, 0, 0, 0, today.Location()).Before(start) {
			out = append(out, m)
		}
	}
	return out
}

// NextDue returns the first member due on or after today.
func (p InstallmentPlan) NextDue(today time.Time) (InstallmentMember, bool) {
	remaining := p.Remaining(today)
	if len(remaining) == 0 {
		return InstallmentMember{}, false
	}
	return remaining[0], true
}

// PlanProgress describes where a transaction's installment plan stands today
type PlanProgress struct {
	Plan      InstallmentPlan    `json:"plan"`
	NextDue   *InstallmentMember `json:"next_due"` // nil once every member is past
	Remaining int                `json:"remaining"`
}
