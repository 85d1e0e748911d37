// Package analytics computes spending rollups over a user's stored expenses.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/receipt-ledger/internal/domain"
)

const (
	// TopMerchantLimit caps the merchant ranking.
	TopMerchantLimit = 5

	UncategorizedLabel = "Uncategorized"
	UnknownMerchant    = "Unknown"
)

// MerchantTotal is one entry of the merchant ranking.
type MerchantTotal struct {
	Merchant string  `json:"merchant"`
	Total    float64 `json:"total"`
}

// Result is the rollup of one evaluation.
type Result struct {
	TotalsByCategory map[string]float64 `json:"totalsByCategory"`
	TopMerchants     []MerchantTotal    `json:"topMerchants"`
	MonthComparison  map[string]string  `json:"monthComparison"`
}

// MonthWindow returns the start of the calendar month containing now and the
// start of the month before it, in now's location.
func MonthWindow(now time.Time) (current, previous time.Time) {
	current = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	previous = current.AddDate(0, -1, 0)
	return current, previous
}

// Compute aggregates records relative to now. Records are bucketed by
// createdAt in now's location. It keeps no state between calls.
func Compute(records []*domain.ExpenseRecord, now time.Time) Result {
	curStart, prevStart := MonthWindow(now)
	nextStart := curStart.AddDate(0, 1, 0)

	curByCategory := map[string]decimal.Decimal{}
	prevByCategory := map[string]decimal.Decimal{}
	curByMerchant := map[string]decimal.Decimal{}

	for _, r := range records {
		at := r.CreatedAt.In(now.Location())
		amount := decimal.NewFromFloat(r.Amount)
		category := r.Category
		if category == "" {
			category = UncategorizedLabel
		}

		switch {
		case !at.Before(curStart) && at.Before(nextStart):
			curByCategory[category] = curByCategory[category].Add(amount)
			merchant := r.Merchant
			if merchant == "" {
				merchant = UnknownMerchant
			}
			curByMerchant[merchant] = curByMerchant[merchant].Add(amount)
		case !at.Before(prevStart) && at.Before(curStart):
			prevByCategory[category] = prevByCategory[category].Add(amount)
		}
	}

	result := Result{
		TotalsByCategory: make(map[string]float64, len(curByCategory)),
		TopMerchants:     topMerchants(curByMerchant, TopMerchantLimit),
		MonthComparison:  make(map[string]string, len(curByCategory)),
	}
	for category, cur := range curByCategory {
		result.TotalsByCategory[category] = cur.Round(2).InexactFloat64()
		result.MonthComparison[category] = Compare(cur, prevByCategory[category])
	}
	return result
}

// topMerchants ranks merchants by total descending, ties by name ascending.
func topMerchants(totals map[string]decimal.Decimal, limit int) []MerchantTotal {
	type entry struct {
		merchant string
		total    decimal.Decimal
	}
	entries := make([]entry, 0, len(totals))
	for m, t := range totals {
		entries = append(entries, entry{m, t})
	}
	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].total.Cmp(entries[j].total); c != 0 {
			return c > 0
		}
		return entries[i].merchant < entries[j].merchant
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]MerchantTotal, len(entries))
	for i, e := range entries {
		out[i] = MerchantTotal{Merchant: e.merchant, Total: e.total.Round(2).InexactFloat64()}
	}
	return out
}

// Compare renders the month-over-month change of one category. Amounts are
// never negative, so a zero previous total means growth from nothing.
func Compare(current, previous decimal.Decimal) string {
	if previous.IsZero() {
		if current.IsZero() {
			return "0%"
		}
		return "+100%"
	}

	pct := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(1)
	sign := ""
	if !pct.IsNegative() {
		sign = "+"
	}
	return sign + pct.StringFixed(1) + "%"
}
