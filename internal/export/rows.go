package export

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/receipt-ledger/internal/domain"
)

// Defaults for absent text fields.
const (
	UnknownCategory = "Unknown"
	UnknownMerchant = "Unknown"
)

// Columns is the header row, in output order.
var Columns = []string{
	"expenseId",
	"receiptId",
	"itemName",
	"amount",
	"quantity",
	"category",
	"aiCategory",
	"categoryConfidence",
	"merchant",
	"date",
	"source",
	"parsedBy",
	"createdAt",
	"receiptTotal",
	"numItems",
}

// Row is one expense joined with its owning receipt. Nil numbers are absent
// and render as empty cells, never as zero.
type Row struct {
	ExpenseID          string
	ReceiptID          string
	ItemName           string
	Amount             float64
	Quantity           *int
	Category           string
	AICategory         string
	CategoryConfidence *float64
	Merchant           string
	Date               string
	Source             string
	ParsedBy           string
	CreatedAt          string
	ReceiptTotal       *float64
	NumItems           *int
}

// BuildRows joins each record with its receipt from receipts, keyed by receipt ID.
// Records whose receipt is missing from the map are exported without it.
func BuildRows(records []*domain.ExpenseRecord, receipts map[string]*domain.ReceiptSummary) []Row {
	rows := make([]Row, 0, len(records))
	for _, e := range records {
		var receipt *domain.ReceiptSummary
		if e.ReceiptID != "" {
			receipt = receipts[e.ReceiptID]
		}

		row := Row{
			ExpenseID:          e.ID,
			ReceiptID:          e.ReceiptID,
			ItemName:           e.ItemName,
			Amount:             e.Amount,
			Quantity:           e.Quantity,
			Category:           e.Category,
			AICategory:         e.AICategory,
			CategoryConfidence: e.CategoryConfidence,
			Merchant:           e.Merchant,
			Date:               e.Date,
			Source:             e.Source,
			ParsedBy:           e.ParsedBy,
		}
		if !e.CreatedAt.IsZero() {
			row.CreatedAt = e.CreatedAt.UTC().Format(time.RFC3339)
		}
		if row.Category == "" {
			row.Category = UnknownCategory
		}

		if receipt != nil {
			total := receipt.Total
			n := receipt.NumItems
			row.ReceiptTotal = &total
			row.NumItems = &n
			if row.Merchant == "" {
				row.Merchant = receipt.Merchant
			}
			if row.Date == "" {
				row.Date = receipt.Date
			}
		}
		if row.Merchant == "" {
			row.Merchant = UnknownMerchant
		}

		rows = append(rows, row)
	}
	return rows
}

// Strings renders the row in Columns order.
func (r Row) Strings() []string {
	return []string{
		r.ExpenseID,
		r.ReceiptID,
		r.ItemName,
		money(r.Amount),
		optInt(r.Quantity),
		r.Category,
		r.AICategory,
		optFloat(r.CategoryConfidence),
		r.Merchant,
		r.Date,
		r.Source,
		r.ParsedBy,
		r.CreatedAt,
		optMoney(r.ReceiptTotal),
		optInt(r.NumItems),
	}
}

// Values renders the row in Columns order with numbers kept numeric and
// absent numbers as nil.
func (r Row) Values() []interface{} {
	return []interface{}{
		r.ExpenseID,
		r.ReceiptID,
		r.ItemName,
		r.Amount,
		derefInt(r.Quantity),
		r.Category,
		r.AICategory,
		derefFloat(r.CategoryConfidence),
		r.Merchant,
		r.Date,
		r.Source,
		r.ParsedBy,
		r.CreatedAt,
		derefFloat(r.ReceiptTotal),
		derefInt(r.NumItems),
	}
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func optMoney(v *float64) string {
	if v == nil {
		return ""
	}
	return money(*v)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func derefInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func derefFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
