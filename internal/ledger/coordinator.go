// Package ledger turns validated receipts into durable, linked records.
//
// A receipt is always written as one summary plus one expense per line item
// in a single atomic batch, and deleted the same way. Readers never observe
// a summary without its full expense set.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/store"
)

// Coordinator owns the write and delete paths of the ledger.
type Coordinator struct {
	store    store.Store
	parsedBy string
	log      zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewCoordinator creates a coordinator. parsedBy names the model recorded on
// receipts it saves.
func NewCoordinator(s store.Store, parsedBy string, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    s,
		parsedBy: parsedBy,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock replaces the clock used for createdAt/updatedAt.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// ReceiptTotal returns round(Σ price·quantity, 2).
func ReceiptTotal(items []domain.EnrichedLineItem) float64 {
	sum := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum.Round(2).InexactFloat64()
}

// Save writes one receipt summary and one expense record per item in a
// single atomic commit and returns the new receipt ID.
func (c *Coordinator) Save(ctx context.Context, userID string, receipt *domain.EnrichedReceipt) (string, error) {
	if userID == "" {
		return "", domain.NewInputValidationError("userId", "is required")
	}
	items, err := normalizeItems(receipt)
	if err != nil {
		return "", err
	}

	now := c.now().UTC()
	receiptID := c.newID()
	date := storedDate(receipt.Date)

	batch := store.NewBatch()
	for _, item := range items {
		qty := item.Quantity
		batch.PutExpense(&domain.ExpenseRecord{
			ID:         c.newID(),
			UserID:     userID,
			ReceiptID:  receiptID,
			ItemName:   item.Name,
			Amount:     item.Price,
			Quantity:   &qty,
			Category:   string(item.Category),
			AICategory: string(item.Category),
			Merchant:   receipt.Store,
			Date:       date,
			Source:     domain.SourceReceipt,
			ParsedBy:   c.parsedBy,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	batch.PutReceipt(&domain.ReceiptSummary{
		ReceiptID: receiptID,
		UserID:    userID,
		Merchant:  receipt.Store,
		Total:     ReceiptTotal(items),
		Date:      date,
		NumItems:  len(items),
		Source:    domain.SourceReceipt,
		ParsedBy:  c.parsedBy,
		CreatedAt: now,
		UpdatedAt: now,
	})

	if err := c.store.Commit(ctx, batch); err != nil {
		c.log.Error().Err(err).Str("receipt_id", receiptID).Str("user_id", userID).Msg("Receipt commit failed")
		return "", &domain.PartialWriteFailure{Op: "save", ReceiptID: receiptID, Err: err}
	}

	c.log.Info().
		Str("receipt_id", receiptID).
		Str("user_id", userID).
		Int("count", len(items)).
		Msg("Receipt saved")

	return receiptID, nil
}

// storedDate rewrites a recognized date as MM/DD/YYYY. Anything else is kept
// as the oracle returned it.
func storedDate(raw string) string {
	d, err := domain.ParseReceiptDate(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return domain.FormatReceiptDate(d)
}

// normalizeItems applies the same soft corrections as enrichment and rejects
// receipts that cannot be persisted.
func normalizeItems(receipt *domain.EnrichedReceipt) ([]domain.EnrichedLineItem, error) {
	if receipt == nil || len(receipt.Items) == 0 {
		return nil, domain.NewInputValidationError("items", "at least one line item is required")
	}

	items := make([]domain.EnrichedLineItem, len(receipt.Items))
	for i, item := range receipt.Items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, domain.NewInputValidationError(fmt.Sprintf("items[%d].name", i), "is required")
		}
		if item.Price < 0 || math.IsNaN(item.Price) || math.IsInf(item.Price, 0) {
			return nil, domain.NewInputValidationError(fmt.Sprintf("items[%d].price", i), "must be a non-negative number")
		}
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		item.Category = domain.NormalizeCategory(string(item.Category))
		items[i] = item
	}
	return items, nil
}

// ownedReceipt loads a receipt and checks it belongs to userID. Missing and
// foreign receipts are reported identically.
func (c *Coordinator) ownedReceipt(ctx context.Context, userID, receiptID string) (*domain.ReceiptSummary, error) {
	if userID == "" {
		return nil, domain.NewInputValidationError("userId", "is required")
	}
	if receiptID == "" {
		return nil, domain.NewInputValidationError("receiptId", "is required")
	}

	summary, err := c.store.GetReceipt(ctx, receiptID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrNotFoundOrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("load receipt %s: %w", receiptID, err)
	}
	if summary.UserID != userID {
		c.log.Warn().Str("receipt_id", receiptID).Str("user_id", userID).Msg("Receipt access denied")
		return nil, domain.ErrNotFoundOrForbidden
	}
	return summary, nil
}

// GetReceipt returns a receipt summary with its expenses if userID owns it.
func (c *Coordinator) GetReceipt(ctx context.Context, userID, receiptID string) (*domain.ReceiptDetail, error) {
	summary, err := c.ownedReceipt(ctx, userID, receiptID)
	if err != nil {
		return nil, err
	}

	expenses, err := c.store.ListExpensesByReceipt(ctx, receiptID)
	if err != nil {
		return nil, fmt.Errorf("list expenses of receipt %s: %w", receiptID, err)
	}
	return &domain.ReceiptDetail{Summary: summary, Expenses: expenses}, nil
}

// Delete removes a receipt and every expense linked to it in one atomic
// commit, returning the number of expenses removed. Ownership is checked
// before anything is mutated.
func (c *Coordinator) Delete(ctx context.Context, userID, receiptID string) (int, error) {
	if _, err := c.ownedReceipt(ctx, userID, receiptID); err != nil {
		return 0, err
	}

	expenses, err := c.store.ListExpensesByReceipt(ctx, receiptID)
	if err != nil {
		return 0, fmt.Errorf("list expenses of receipt %s: %w", receiptID, err)
	}

	batch := store.NewBatch()
	for _, e := range expenses {
		batch.DeleteExpense(e.ID)
	}
	batch.DeleteReceipt(receiptID)

	if err := c.store.Commit(ctx, batch); err != nil {
		c.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Receipt delete commit failed")
		return 0, &domain.PartialWriteFailure{Op: "delete", ReceiptID: receiptID, Err: err}
	}

	c.log.Info().
		Str("receipt_id", receiptID).
		Str("user_id", userID).
		Int("count", len(expenses)).
		Msg("Receipt deleted")

	return len(expenses), nil
}

// AddManualExpense stores a single expense that has no receipt.
func (c *Coordinator) AddManualExpense(ctx context.Context, userID string, in domain.ManualExpense) (*domain.ExpenseRecord, error) {
	if userID == "" {
		return nil, domain.NewInputValidationError("userId", "is required")
	}
	name := strings.TrimSpace(in.ItemName)
	if name == "" {
		return nil, domain.NewInputValidationError("itemName", "is required")
	}
	if in.Amount < 0 || math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) {
		return nil, domain.NewInputValidationError("amount", "must be a non-negative number")
	}
	if in.Quantity != nil && *in.Quantity < 1 {
		return nil, domain.NewInputValidationError("quantity", "must be at least 1")
	}

	now := c.now().UTC()
	date := domain.FormatReceiptDate(civil.DateOf(now))
	if in.Date != "" {
		d, err := domain.ParseReceiptDate(in.Date)
		if err != nil {
			return nil, domain.NewInputValidationError("date", err.Error())
		}
		date = domain.FormatReceiptDate(d)
	}

	category := string(domain.NormalizeCategory(in.Category))
	record := &domain.ExpenseRecord{
		ID:        c.newID(),
		UserID:    userID,
		ItemName:  name,
		Amount:    decimal.NewFromFloat(in.Amount).Round(2).InexactFloat64(),
		Quantity:  in.Quantity,
		Category:  category,
		Merchant:  strings.TrimSpace(in.Merchant),
		Date:      date,
		Source:    domain.SourceManual,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.store.Commit(ctx, store.NewBatch().PutExpense(record)); err != nil {
		return nil, fmt.Errorf("AddManualExpense: commit: %w", err)
	}

	c.log.Info().Str("expense_id", record.ID).Str("user_id", userID).Msg("Manual expense added")
	return record, nil
}
