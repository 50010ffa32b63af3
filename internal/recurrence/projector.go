package recurrence

import (
	"sort"
	"time"

	"github.com/Dan9191/reminder-service/internal/models"
)

// Advance returns the due date following date for the given frequency.
// For monthly subscriptions with a fixed dayOfMonth the result lands on
// min(dayOfMonth, last day of the month).
func Advance(date time.Time, frequency models.Frequency, dayOfMonth *int) time.Time {
	switch frequency {
	case models.FrequencyWeekly:
		return date.AddDate(0, 0, 7)
	case models.FrequencyYearly:
		return AddMonths(date, 12)
	default:
		next := AddMonths(date, 1)
		if dayOfMonth != nil && *dayOfMonth > 0 {
			next = WithDay(next, *dayOfMonth)
		}
		return next
	}
}

// Project lists the occurrences of sub that are due between today and
// horizonEnd, both inclusive. A stale NextDueDate is rolled forward past
// today without emitting the skipped dates. Inactive subscriptions
// produce nothing.
func Project(sub models.Subscription, today, horizonEnd time.Time) []models.Occurrence {
	if !sub.Active {
		return nil
	}

	today = DateOf(today)
	horizon := DateOf(horizonEnd)

	cursor := today
	if !sub.NextDueDate.IsZero() {
		cursor = CalendarDay(sub.NextDueDate, today.Location())
	}

	for cursor.Before(today) {
		cursor = Advance(cursor, sub.Frequency, sub.DayOfMonth)
	}

	var occurrences []models.Occurrence
	for !cursor.After(horizon) {
		occurrences = append(occurrences, models.Occurrence{
			SubscriptionID: sub.ID,
			DueDate:        cursor,
			Amount:         sub.Amount,
			Currency:       sub.Currency,
		})
		cursor = Advance(cursor, sub.Frequency, sub.DayOfMonth)
	}
	return occurrences
}

// ProjectAll projects every subscription and returns the occurrences
// ordered by due date, then subscription id.
func ProjectAll(subs []models.Subscription, today, horizonEnd time.Time) []models.Occurrence {
	var all []models.Occurrence
	for _, sub := range subs {
		all = append(all, Project(sub, today, horizonEnd)...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].DueDate.Equal(all[j].DueDate) {
			return all[i].DueDate.Before(all[j].DueDate)
		}
		return all[i].SubscriptionID < all[j].SubscriptionID
	})
	return all
}
