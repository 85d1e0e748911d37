// Package store describes the document store the ledger persists into.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/receipt-ledger/internal/domain"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Store is a transactional document store holding receipt summaries and
// expense records. Implementations must apply a Batch all-or-nothing.
type Store interface {
	// GetReceipt reads a single receipt summary. Returns ErrNotFound when absent.
	GetReceipt(ctx context.Context, receiptID string) (*domain.ReceiptSummary, error)

	// ListExpensesByReceipt returns every expense whose receiptId equals receiptID.
	ListExpensesByReceipt(ctx context.Context, receiptID string) ([]*domain.ExpenseRecord, error)

	// ListExpensesByUser returns every expense owned by userID.
	ListExpensesByUser(ctx context.Context, userID string) ([]*domain.ExpenseRecord, error)

	// Commit applies every operation in the batch atomically.
	Commit(ctx context.Context, batch *Batch) error
}

// OpKind identifies a batched mutation.
type OpKind int

const (
	OpPutReceipt OpKind = iota
	OpPutExpense
	OpDeleteReceipt
	OpDeleteExpense
)

func (k OpKind) String() string {
	switch k {
	case OpPutReceipt:
		return "put_receipt"
	case OpPutExpense:
		return "put_expense"
	case OpDeleteReceipt:
		return "delete_receipt"
	case OpDeleteExpense:
		return "delete_expense"
	default:
		return "unknown"
	}
}

// Op is one mutation inside a Batch. Exactly one of Receipt, Expense or ID is
// meaningful depending on Kind.
type Op struct {
	Kind    OpKind
	Receipt *domain.ReceiptSummary
	Expense *domain.ExpenseRecord
	ID      string
}

// Batch collects mutations that must become visible together.
type Batch struct {
	ops []Op
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// PutReceipt creates or replaces a receipt summary.
func (b *Batch) PutReceipt(r *domain.ReceiptSummary) *Batch {
	b.ops = append(b.ops, Op{Kind: OpPutReceipt, Receipt: r, ID: r.ReceiptID})
	return b
}

// PutExpense creates or replaces an expense record.
func (b *Batch) PutExpense(e *domain.ExpenseRecord) *Batch {
	b.ops = append(b.ops, Op{Kind: OpPutExpense, Expense: e, ID: e.ID})
	return b
}

// DeleteReceipt removes a receipt summary.
func (b *Batch) DeleteReceipt(receiptID string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDeleteReceipt, ID: receiptID})
	return b
}

// DeleteExpense removes an expense record.
func (b *Batch) DeleteExpense(expenseID string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDeleteExpense, ID: expenseID})
	return b
}

// Ops returns the batched operations in insertion order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of batched operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Validate checks that every operation carries what its kind needs.
func (b *Batch) Validate() error {
	for i, op := range b.ops {
		if op.ID == "" {
			return fmt.Errorf("batch op %d (%s): missing document id", i, op.Kind)
		}
		switch op.Kind {
		case OpPutReceipt:
			if op.Receipt == nil {
				return fmt.Errorf("batch op %d (%s): missing receipt", i, op.Kind)
			}
		case OpPutExpense:
			if op.Expense == nil {
				return fmt.Errorf("batch op %d (%s): missing expense", i, op.Kind)
			}
		case OpDeleteReceipt, OpDeleteExpense:
		default:
			return fmt.Errorf("batch op %d: unknown kind %d", i, op.Kind)
		}
	}
	return nil
}
