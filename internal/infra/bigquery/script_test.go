package bigquery

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/store"
)

func paramMap(params []bigquery.QueryParameter) map[string]interface{} {
	m := make(map[string]interface{}, len(params))
	for _, p := range params {
		m[p.Name] = p.Value
	}
	return m
}

func TestBuildCommitScript_WrapsInTransaction(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	qty := 3
	b := store.NewBatch().
		PutReceipt(&domain.ReceiptSummary{ReceiptID: "r1", UserID: "u1", Merchant: "M", Total: 9, Date: "01/02/2024", NumItems: 1, Source: "receipt", CreatedAt: now}).
		PutExpense(&domain.ExpenseRecord{ID: "e1", UserID: "u1", ReceiptID: "r1", ItemName: "Tea", Amount: 3, Quantity: &qty, CreatedAt: now})

	script, params := buildCommitScript("proj", "ds", b)

	assert.True(t, strings.HasPrefix(script, "BEGIN TRANSACTION;"))
	assert.True(t, strings.HasSuffix(script, "COMMIT TRANSACTION;\n"))
	assert.Contains(t, script, "`proj.ds.receipts`")
	assert.Contains(t, script, "`proj.ds.expenses`")
	assert.Equal(t, 2, strings.Count(script, "INSERT INTO"))

	p := paramMap(params)
	assert.Equal(t, "r1", p["op0_receipt_id"])
	assert.Equal(t, int64(1), p["op0_num_items"])
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 2}, p["op0_receipt_date"])
	assert.Equal(t, int64(3), p["op1_quantity"])
	assert.Equal(t, "r1", p["op1_receipt_id"])
	assert.Equal(t, now, p["op1_created_ts"])
}

func TestBuildCommitScript_NullsForAbsentValues(t *testing.T) {
	b := store.NewBatch().PutExpense(&domain.ExpenseRecord{
		ID: "m1", UserID: "u1", ItemName: "Bus", Amount: 2, Source: domain.SourceManual, CreatedAt: time.Now(),
	})

	script, params := buildCommitScript("p", "d", b)
	p := paramMap(params)

	_, hasReceipt := p["op0_receipt_id"]
	assert.False(t, hasReceipt)
	_, hasQty := p["op0_quantity"]
	assert.False(t, hasQty)
	_, hasUpdated := p["op0_updated_ts"]
	assert.False(t, hasUpdated)
	assert.Contains(t, script, "NULL")
}

func TestBuildCommitScript_UnparseableDateIsNull(t *testing.T) {
	b := store.NewBatch().PutReceipt(&domain.ReceiptSummary{ReceiptID: "r1", UserID: "u1", Date: "sometime", CreatedAt: time.Now()})

	_, params := buildCommitScript("p", "d", b)
	p := paramMap(params)

	assert.Equal(t, "sometime", p["op0_date"])
	_, has := p["op0_receipt_date"]
	assert.False(t, has)
}

func TestBuildCommitScript_Deletes(t *testing.T) {
	b := store.NewBatch().DeleteExpense("e1").DeleteExpense("e2").DeleteReceipt("r1")

	script, params := buildCommitScript("p", "d", b)

	require.Len(t, params, 3)
	assert.Equal(t, 3, strings.Count(script, "DELETE FROM"))
	assert.Contains(t, script, "WHERE receipt_id = @op2_receipt_id")
	assert.NotContains(t, script, "INSERT")
}
