package installment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Dan9191/reminder-service/internal/models"
	"github.com/Dan9191/reminder-service/internal/recurrence"
)

// DefaultCurrency is assumed for transactions stored without a currency
const DefaultCurrency = "EUR"

// StartKey anchors an installment at the date its first payment fell on,
// assuming one payment per month.
func StartKey(date time.Time, index int) time.Time {
	return recurrence.DateOf(recurrence.AddMonths(date, -(index - 1)))
}

type bucketEntry struct {
	member   models.InstallmentMember
	groupID  string
	base     string
	total    int
	currency string
	startKey string
}

// Group partitions the installment transactions into plans. Transactions
// with an explicit GroupID are grouped by it; the rest by base description,
// total, currency and start key. When an identity holds the same index more
// than once, the duplicates are split into separate plans by date order so
// that an index never repeats inside a plan.
func Group(transactions []models.Transaction) []models.InstallmentPlan {
	identities := make(map[string][]bucketEntry)
	var order []string

	for _, tx := range transactions {
		meta, ok := Match(tx.Description)
		if !ok {
			continue
		}
		currency := tx.Currency
		if currency == "" {
			currency = DefaultCurrency
		}
		entry := bucketEntry{
			member:   models.InstallmentMember{Transaction: tx, Index: meta.Index},
			groupID:  tx.GroupID,
			base:     meta.Base,
			total:    meta.Total,
			currency: currency,
			startKey: StartKey(tx.Date, meta.Index).Format(recurrence.DateLayout),
		}

		var identity string
		if tx.GroupID != "" {
			identity = "group:" + tx.GroupID
		} else {
			identity = "virtual:" + strings.Join([]string{
				entry.base,
				fmt.Sprint(entry.total),
				entry.currency,
				entry.startKey,
			}, "|")
		}
		if _, seen := identities[identity]; !seen {
			order = append(order, identity)
		}
		identities[identity] = append(identities[identity], entry)
	}

	var plans []models.InstallmentPlan
	for _, identity := range order {
		plans = append(plans, splitByIndex(identity, identities[identity])...)
	}

	sort.SliceStable(plans, func(i, j int) bool {
		a, b := plans[i], plans[j]
		if a.StartKey != b.StartKey {
			return a.StartKey < b.StartKey
		}
		if a.Base != b.Base {
			return a.Base < b.Base
		}
		if a.Total != b.Total {
			return a.Total < b.Total
		}
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		return a.Key < b.Key
	})
	return plans
}

func splitByIndex(identity string, entries []bucketEntry) []models.InstallmentPlan {
	byIndex := make(map[int][]bucketEntry)
	for _, e := range entries {
		byIndex[e.member.Index] = append(byIndex[e.member.Index], e)
	}

	indexes := make([]int, 0, len(byIndex))
	buckets := 1
	for index, list := range byIndex {
		indexes = append(indexes, index)
		if len(list) > buckets {
			buckets = len(list)
		}
	}
	sort.Ints(indexes)

	grouped := make([][]bucketEntry, buckets)
	for _, index := range indexes {
		list := byIndex[index]
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].member.Date.Equal(list[j].member.Date) {
				return list[i].member.Date.Before(list[j].member.Date)
			}
			return list[i].member.ID < list[j].member.ID
		})
		for position, e := range list {
			grouped[position] = append(grouped[position], e)
		}
	}

	plans := make([]models.InstallmentPlan, 0, buckets)
	for position, bucket := range grouped {
		if len(bucket) == 0 {
			continue
		}
		first := bucket[0]
		key := identity
		if strings.HasPrefix(identity, "virtual:") || position > 0 {
			key = fmt.Sprintf("%s:%d", identity, position)
		}
		plan := models.InstallmentPlan{
			Key:      key,
			GroupID:  first.groupID,
			Base:     first.base,
			Total:    first.total,
			Currency: first.currency,
			StartKey: first.startKey,
			Members:  make([]models.InstallmentMember, 0, len(bucket)),
		}
		for _, e := range bucket {
			plan.Members = append(plan.Members, e.member)
		}
		plans = append(plans, plan)
	}
	return plans
}

// Find returns the plan that contains the transaction with the given id.
func Find(transactionID string, plans []models.InstallmentPlan) (models.InstallmentPlan, bool) {
	for _, plan := range plans {
		for _, m := range plan.Members {
			if m.ID == transactionID {
				return plan, true
			}
		}
	}
	return models.InstallmentPlan{}, false
}
