package forecast

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Dan9191/reminder-service/internal/installment"
	"github.com/Dan9191/reminder-service/internal/models"
	"github.com/Dan9191/reminder-service/internal/recurrence"
	"github.com/shopspring/decimal"
)

// Converter converts an amount in the given currency into the base currency
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error)
	BaseCurrency() string
}

const roundingPlaces = 2

var (
	weeksPerMonth = decimal.RequireFromString("4.33")
	monthsPerYear = decimal.NewFromInt(12)
)

// MonthlyCost prorates a subscription's amount to one month.
func MonthlyCost(sub models.Subscription) decimal.Decimal {
	switch sub.Frequency {
	case models.FrequencyWeekly:
		return sub.Amount.Mul(weeksPerMonth)
	case models.FrequencyYearly:
		return sub.Amount.Div(monthsPerYear)
	default:
		return sub.Amount
	}
}

// totals accumulates amounts per currency so that each currency is
// converted once.
type totals map[string]decimal.Decimal

func (t totals) add(currency string, amount decimal.Decimal) {
	if currency == "" {
		currency = installment.DefaultCurrency
	}
	t[currency] = t[currency].Add(amount)
}

func (t totals) convert(ctx context.Context, conv Converter) (decimal.Decimal, error) {
	currencies := make([]string, 0, len(t))
	for c := range t {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	sum := decimal.Zero
	for _, c := range currencies {
		converted, err := conv.Convert(ctx, t[c], c)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to convert %s %s: %w", t[c].StringFixed(2), c, err)
		}
		sum = sum.Add(converted)
	}
	return sum.Round(roundingPlaces), nil
}

// OpenInstallments returns the plan members still due in today's month,
// ordered as the plans are.
func OpenInstallments(plans []models.InstallmentPlan, today time.Time) []models.InstallmentMember {
	var open []models.InstallmentMember
	for _, plan := range plans {
		for _, m := range plan.Remaining(today) {
			if recurrence.SameMonth(recurrence.CalendarDay(m.Date, today.Location()), today) {
				open = append(open, m)
			}
		}
	}
	return open
}

// Compute builds the current month's spending figures. Any conversion
// failure aborts the computation; amounts are never summed unconverted.
func Compute(ctx context.Context, now time.Time, txs []models.Transaction, subs []models.Subscription, budgets []models.Budget, conv Converter) (models.Forecast, error) {
	today := recurrence.DateOf(now)

	spent := totals{}
	for _, tx := range txs {
		if recurrence.SameMonth(recurrence.CalendarDay(tx.Date, today.Location()), today) {
			spent.add(tx.Currency, tx.Amount)
		}
	}

	open := totals{}
	for _, m := range OpenInstallments(installment.Group(txs), today) {
		open.add(m.Currency, m.Amount)
	}
	for _, sub := range subs {
		if sub.Active {
			open.add(sub.Currency, MonthlyCost(sub))
		}
	}

	result := models.Forecast{Currency: conv.BaseCurrency()}
	var err error
	if result.Spent, err = spent.convert(ctx, conv); err != nil {
		return models.Forecast{}, fmt.Errorf("failed to compute spent: %w", err)
	}
	if result.Forecast, err = open.convert(ctx, conv); err != nil {
		return models.Forecast{}, fmt.Errorf("failed to compute forecast: %w", err)
	}

	if len(budgets) > 0 {
		limits := totals{}
		for _, b := range budgets {
			limits.add(b.Currency, b.MonthlyLimit)
		}
		total, err := limits.convert(ctx, conv)
		if err != nil {
			return models.Forecast{}, fmt.Errorf("failed to compute budget total: %w", err)
		}
		remaining := total.Sub(result.Spent)
		result.BudgetTotal = &total
		result.BudgetRemaining = &remaining
	}

	return result, nil
}

// Outlook projects obligations for the current month and the following
// months-1 months. The current month only counts what is still due.
func Outlook(ctx context.Context, now time.Time, months int, txs []models.Transaction, subs []models.Subscription, conv Converter) ([]models.MonthOutlook, error) {
	if months < 1 {
		return nil, nil
	}
	today := recurrence.DateOf(now)
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	horizonEnd := recurrence.EndOfDay(recurrence.AddMonths(firstOfMonth, months).AddDate(0, 0, -1))

	subsByMonth := make([]totals, months)
	installmentsByMonth := make([]totals, months)
	for i := range subsByMonth {
		subsByMonth[i] = totals{}
		installmentsByMonth[i] = totals{}
	}

	monthIndex := func(t time.Time) int {
		return (t.Year()-firstOfMonth.Year())*12 + int(t.Month()) - int(firstOfMonth.Month())
	}

	for _, occ := range recurrence.ProjectAll(subs, today, horizonEnd) {
		if i := monthIndex(occ.DueDate); i >= 0 && i < months {
			subsByMonth[i].add(occ.Currency, occ.Amount)
		}
	}
	for _, plan := range installment.Group(txs) {
		for _, m := range plan.Remaining(today) {
			date := recurrence.CalendarDay(m.Date, today.Location())
			if date.After(horizonEnd) {
				continue
			}
			if i := monthIndex(date); i >= 0 && i < months {
				installmentsByMonth[i].add(m.Currency, m.Amount)
			}
		}
	}

	outlook := make([]models.MonthOutlook, 0, months)
	for i := 0; i < months; i++ {
		subsTotal, err := subsByMonth[i].convert(ctx, conv)
		if err != nil {
			return nil, err
		}
		installmentsTotal, err := installmentsByMonth[i].convert(ctx, conv)
		if err != nil {
			return nil, err
		}
		outlook = append(outlook, models.MonthOutlook{
			Month:         recurrence.AddMonths(firstOfMonth, i).Format("2006-01"),
			Subscriptions: subsTotal,
			Installments:  installmentsTotal,
			Total:         subsTotal.Add(installmentsTotal),
		})
	}
	return outlook, nil
}
