package domain

import "time"

// Expense sources.
const (
	SourceReceipt = "receipt"
	SourceManual  = "manual"
)

// ReceiptSummary is the aggregate record of one purchase event.
// Total and NumItems are derived from the sibling expense records and are
// never set independently of them.
type ReceiptSummary struct {
	ReceiptID string    `json:"receiptId"`
	UserID    string    `json:"userId"`
	Merchant  string    `json:"merchant"`
	Total     float64   `json:"total"`
	Date      string    `json:"date"`
	NumItems  int       `json:"numItems"`
	Source    string    `json:"source"`
	ParsedBy  string    `json:"parsedBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ExpenseRecord is one line-item level financial record. ReceiptID is empty
// for expenses that were not captured from a receipt.
type ExpenseRecord struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	ReceiptID          string    `json:"receiptId,omitempty"`
	ItemName           string    `json:"itemName"`
	Amount             float64   `json:"amount"`
	Quantity           *int      `json:"quantity,omitempty"`
	Category           string    `json:"category,omitempty"`
	AICategory         string    `json:"aiCategory,omitempty"`
	CategoryConfidence *float64  `json:"categoryConfidence,omitempty"`
	Merchant           string    `json:"merchant,omitempty"`
	Date               string    `json:"date,omitempty"`
	Source             string    `json:"source,omitempty"`
	ParsedBy           string    `json:"parsedBy,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// LineTotal returns amount multiplied by quantity; a missing quantity counts as one.
func (e *ExpenseRecord) LineTotal() float64 {
	if e.Quantity == nil {
		return e.Amount
	}
	return e.Amount * float64(*e.Quantity)
}

// ManualExpense is a single expense entered without a receipt.
type ManualExpense struct {
	ItemName string  `json:"itemName"`
	Amount   float64 `json:"amount"`
	Quantity *int    `json:"quantity,omitempty"`
	Category string  `json:"category"`
	Merchant string  `json:"merchant"`
	Date     string  `json:"date"`
}

// ReceiptDetail is a receipt summary together with its expense records.
type ReceiptDetail struct {
	Summary  *ReceiptSummary  `json:"summary"`
	Expenses []*ExpenseRecord `json:"expenses"`
}
