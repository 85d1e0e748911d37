package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/receipt-ledger/internal/domain"
)

// ReceiptRow mirrors the receipts table.
type ReceiptRow struct {
	ReceiptID string `bigquery:"receipt_id"` // REQUIRED
	UserID    string `bigquery:"user_id"`    // REQUIRED

	Merchant string  `bigquery:"merchant"`  // NULLABLE
	Total    float64 `bigquery:"total"`     // FLOAT64, REQUIRED
	Date     string  `bigquery:"date"`      // NULLABLE, MM/DD/YYYY as extracted
	NumItems int64   `bigquery:"num_items"` // REQUIRED

	// Typed copy of Date; NULL when Date does not parse.
	ReceiptDate bigquery.NullDate `bigquery:"receipt_date"` // DATE, NULLABLE

	Source   string `bigquery:"source"`    // REQUIRED
	ParsedBy string `bigquery:"parsed_by"` // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

// ExpenseRow mirrors the expenses table.
type ExpenseRow struct {
	ExpenseID string              `bigquery:"expense_id"` // REQUIRED
	UserID    string              `bigquery:"user_id"`    // REQUIRED
	ReceiptID bigquery.NullString `bigquery:"receipt_id"` // NULLABLE, empty for manual expenses

	ItemName string             `bigquery:"item_name"` // REQUIRED
	Amount   float64            `bigquery:"amount"`    // FLOAT64, REQUIRED
	Quantity bigquery.NullInt64 `bigquery:"quantity"`  // NULLABLE

	Category           string               `bigquery:"category"`            // NULLABLE
	AICategory         string               `bigquery:"ai_category"`         // NULLABLE
	CategoryConfidence bigquery.NullFloat64 `bigquery:"category_confidence"` // NULLABLE

	Merchant string `bigquery:"merchant"`  // NULLABLE
	Date     string `bigquery:"date"`      // NULLABLE
	Source   string `bigquery:"source"`    // REQUIRED
	ParsedBy string `bigquery:"parsed_by"` // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

func (r *ReceiptRow) toDomain() *domain.ReceiptSummary {
	s := &domain.ReceiptSummary{
		ReceiptID: r.ReceiptID,
		UserID:    r.UserID,
		Merchant:  r.Merchant,
		Total:     r.Total,
		Date:      r.Date,
		NumItems:  int(r.NumItems),
		Source:    r.Source,
		ParsedBy:  r.ParsedBy,
		CreatedAt: r.CreatedTS,
	}
	if r.UpdatedTS.Valid {
		s.UpdatedAt = r.UpdatedTS.Timestamp
	}
	return s
}

func (r *ExpenseRow) toDomain() *domain.ExpenseRecord {
	e := &domain.ExpenseRecord{
		ID:         r.ExpenseID,
		UserID:     r.UserID,
		ReceiptID:  r.ReceiptID.StringVal,
		ItemName:   r.ItemName,
		Amount:     r.Amount,
		Category:   r.Category,
		AICategory: r.AICategory,
		Merchant:   r.Merchant,
		Date:       r.Date,
		Source:     r.Source,
		ParsedBy:   r.ParsedBy,
		CreatedAt:  r.CreatedTS,
	}
	if r.Quantity.Valid {
		q := int(r.Quantity.Int64)
		e.Quantity = &q
	}
	if r.CategoryConfidence.Valid {
		c := r.CategoryConfidence.Float64
		e.CategoryConfidence = &c
	}
	if r.UpdatedTS.Valid {
		e.UpdatedAt = r.UpdatedTS.Timestamp
	}
	return e
}
