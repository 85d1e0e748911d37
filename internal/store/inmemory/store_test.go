package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/store"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	qty := 2
	b := store.NewBatch().
		PutReceipt(&domain.ReceiptSummary{ReceiptID: "r1", UserID: "u1", Merchant: "Shop", Total: 5, NumItems: 2, CreatedAt: now}).
		PutExpense(&domain.ExpenseRecord{ID: "e2", UserID: "u1", ReceiptID: "r1", ItemName: "Bread", Amount: 2, CreatedAt: now.Add(time.Minute)}).
		PutExpense(&domain.ExpenseRecord{ID: "e1", UserID: "u1", ReceiptID: "r1", ItemName: "Milk", Amount: 1.5, Quantity: &qty, CreatedAt: now}).
		PutExpense(&domain.ExpenseRecord{ID: "e3", UserID: "u2", ItemName: "Taxi", Amount: 12, Source: domain.SourceManual, CreatedAt: now})
	require.NoError(t, s.Commit(context.Background(), b))
}

func expenseByID(t *testing.T, s *Store, id string) *domain.ExpenseRecord {
	t.Helper()
	all, err := s.ListExpensesByUser(context.Background(), "u1")
	require.NoError(t, err)
	for _, e := range all {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("expense %s not found", id)
	return nil
}

func TestStore_GetReceipt(t *testing.T) {
	s := NewStore()
	seed(t, s)

	r, err := s.GetReceipt(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "Shop", r.Merchant)

	_, err = s.GetReceipt(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ListExpenses(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	byReceipt, err := s.ListExpensesByReceipt(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, byReceipt, 2)
	assert.Equal(t, "e1", byReceipt[0].ID, "ordered by createdAt")
	assert.Equal(t, "e2", byReceipt[1].ID)

	byUser, err := s.ListExpensesByUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "Taxi", byUser[0].ItemName)

	none, err := s.ListExpensesByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	seed(t, s)

	e := expenseByID(t, s, "e1")
	*e.Quantity = 99
	e.ItemName = "changed"

	again := expenseByID(t, s, "e1")
	assert.Equal(t, 2, *again.Quantity)
	assert.Equal(t, "Milk", again.ItemName)
}

func TestStore_CommitDeletes(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	err := s.Commit(ctx, store.NewBatch().DeleteExpense("e1").DeleteExpense("e2").DeleteReceipt("r1"))
	require.NoError(t, err)

	_, err = s.GetReceipt(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	left, err := s.ListExpensesByReceipt(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestStore_InvalidBatchAppliesNothing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	b := store.NewBatch().
		PutReceipt(&domain.ReceiptSummary{ReceiptID: "r1", UserID: "u1"}).
		PutExpense(&domain.ExpenseRecord{UserID: "u1", ItemName: "no id"})

	require.Error(t, s.Commit(ctx, b))
	_, err := s.GetReceipt(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Commit(ctx, store.NewBatch().PutReceipt(&domain.ReceiptSummary{ReceiptID: "r1"}))
	assert.ErrorIs(t, err, context.Canceled)
}
