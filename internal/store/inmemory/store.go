package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/store"
)

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu       sync.RWMutex
	receipts map[string]*domain.ReceiptSummary
	expenses map[string]*domain.ExpenseRecord
}

var _ store.Store = (*Store)(nil)

// NewStore creates an empty in-memory document store.
func NewStore() *Store {
	return &Store{
		receipts: make(map[string]*domain.ReceiptSummary),
		expenses: make(map[string]*domain.ExpenseRecord),
	}
}

// GetReceipt implements store.Store.
func (s *Store) GetReceipt(ctx context.Context, receiptID string) (*domain.ReceiptSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receipts[receiptID]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", receiptID, store.ErrNotFound)
	}
	rc := *r
	return &rc, nil
}

// ListExpensesByReceipt implements store.Store.
func (s *Store) ListExpensesByReceipt(ctx context.Context, receiptID string) ([]*domain.ExpenseRecord, error) {
	return s.list(func(e *domain.ExpenseRecord) bool { return e.ReceiptID == receiptID }), nil
}

// ListExpensesByUser implements store.Store.
func (s *Store) ListExpensesByUser(ctx context.Context, userID string) ([]*domain.ExpenseRecord, error) {
	return s.list(func(e *domain.ExpenseRecord) bool { return e.UserID == userID }), nil
}

func (s *Store) list(match func(*domain.ExpenseRecord) bool) []*domain.ExpenseRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.ExpenseRecord{}
	for _, e := range s.expenses {
		if match(e) {
			result = append(result, copyExpense(e))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Commit implements store.Store. The batch is validated before any mutation
// and applied under a single lock, so readers never see a partial batch.
func (s *Store) Commit(ctx context.Context, batch *store.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := batch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range batch.Ops() {
		switch op.Kind {
		case store.OpPutReceipt:
			rc := *op.Receipt
			s.receipts[op.ID] = &rc
		case store.OpPutExpense:
			s.expenses[op.ID] = copyExpense(op.Expense)
		case store.OpDeleteReceipt:
			delete(s.receipts, op.ID)
		case store.OpDeleteExpense:
			delete(s.expenses, op.ID)
		}
	}
	return nil
}

func copyExpense(e *domain.ExpenseRecord) *domain.ExpenseRecord {
	ec := *e
	if e.Quantity != nil {
		q := *e.Quantity
		ec.Quantity = &q
	}
	if e.CategoryConfidence != nil {
		c := *e.CategoryConfidence
		ec.CategoryConfidence = &c
	}
	return &ec
}
