package bigquery

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/store"
)

const (
	receiptColumns = "receipt_id, user_id, merchant, total, date, receipt_date, num_items, source, parsed_by, created_ts, updated_ts"
	expenseColumns = "expense_id, user_id, receipt_id, item_name, amount, quantity, category, ai_category, " +
		"category_confidence, merchant, date, source, parsed_by, created_ts, updated_ts"
)

// scriptBuilder renders a batch as one multi-statement transaction so
// BigQuery applies it all-or-nothing.
type scriptBuilder struct {
	projectID string
	datasetID string

	sb     strings.Builder
	params []bigquery.QueryParameter
}

// buildCommitScript returns the SQL script and its named parameters for batch.
func buildCommitScript(projectID, datasetID string, batch *store.Batch) (string, []bigquery.QueryParameter) {
	b := &scriptBuilder{projectID: projectID, datasetID: datasetID}

	b.sb.WriteString("BEGIN TRANSACTION;\n")
	for i, op := range batch.Ops() {
		b.writeOp(i, op)
	}
	b.sb.WriteString("COMMIT TRANSACTION;\n")

	return b.sb.String(), b.params
}

func (b *scriptBuilder) table(name string) string {
	return "`" + b.projectID + "." + b.datasetID + "." + name + "`"
}

// bind registers a parameter for op i and returns its placeholder. Nil or
// empty-optional values render as a NULL literal instead.
func (b *scriptBuilder) bind(i int, name string, value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case *int:
		if v == nil {
			return "NULL"
		}
		value = int64(*v)
	case *float64:
		if v == nil {
			return "NULL"
		}
		value = *v
	case time.Time:
		if v.IsZero() {
			return "NULL"
		}
	}

	param := fmt.Sprintf("op%d_%s", i, name)
	b.params = append(b.params, bigquery.QueryParameter{Name: param, Value: value})
	return "@" + param
}

// receiptDate returns the typed date for s, or nil when it does not parse.
func receiptDate(s string) interface{} {
	d, err := domain.ParseReceiptDate(s)
	if err != nil {
		return nil
	}
	return d
}

func (b *scriptBuilder) writeOp(i int, op store.Op) {
	switch op.Kind {
	case store.OpPutReceipt:
		r := op.Receipt
		id := b.bind(i, "receipt_id", r.ReceiptID)
		fmt.Fprintf(&b.sb, "DELETE FROM %s WHERE receipt_id = %s;\n", b.table("receipts"), id)
		values := []string{
			id,
			b.bind(i, "user_id", r.UserID),
			b.bind(i, "merchant", r.Merchant),
			b.bind(i, "total", r.Total),
			b.bind(i, "date", r.Date),
			b.bind(i, "receipt_date", receiptDate(r.Date)),
			b.bind(i, "num_items", int64(r.NumItems)),
			b.bind(i, "source", r.Source),
			b.bind(i, "parsed_by", r.ParsedBy),
			b.bind(i, "created_ts", r.CreatedAt),
			b.bind(i, "updated_ts", r.UpdatedAt),
		}
		fmt.Fprintf(&b.sb, "INSERT INTO %s (%s) VALUES (%s);\n",
			b.table("receipts"), receiptColumns, strings.Join(values, ", "))

	case store.OpPutExpense:
		e := op.Expense
		id := b.bind(i, "expense_id", e.ID)
		fmt.Fprintf(&b.sb, "DELETE FROM %s WHERE expense_id = %s;\n", b.table("expenses"), id)
		var receiptID interface{}
		if e.ReceiptID != "" {
			receiptID = e.ReceiptID
		}
		values := []string{
			id,
			b.bind(i, "user_id", e.UserID),
			b.bind(i, "receipt_id", receiptID),
			b.bind(i, "item_name", e.ItemName),
			b.bind(i, "amount", e.Amount),
			b.bind(i, "quantity", e.Quantity),
			b.bind(i, "category", e.Category),
			b.bind(i, "ai_category", e.AICategory),
			b.bind(i, "category_confidence", e.CategoryConfidence),
			b.bind(i, "merchant", e.Merchant),
			b.bind(i, "date", e.Date),
			b.bind(i, "source", e.Source),
			b.bind(i, "parsed_by", e.ParsedBy),
			b.bind(i, "created_ts", e.CreatedAt),
			b.bind(i, "updated_ts", e.UpdatedAt),
		}
		fmt.Fprintf(&b.sb, "INSERT INTO %s (%s) VALUES (%s);\n",
			b.table("expenses"), expenseColumns, strings.Join(values, ", "))

	case store.OpDeleteReceipt:
		fmt.Fprintf(&b.sb, "DELETE FROM %s WHERE receipt_id = %s;\n",
			b.table("receipts"), b.bind(i, "receipt_id", op.ID))

	case store.OpDeleteExpense:
		fmt.Fprintf(&b.sb, "DELETE FROM %s WHERE expense_id = %s;\n",
			b.table("expenses"), b.bind(i, "expense_id", op.ID))
	}
}
