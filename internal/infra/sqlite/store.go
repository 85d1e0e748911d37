// Package sqlite persists receipts and expenses in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/store"
)

// Fixed-width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a store.Store backed by SQLite.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ store.Store = (*Store)(nil)

// Open creates the database file if needed, applies migrations and returns a ready store.
func Open(dbPath string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	return &Store{db: db, log: log}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetReceipt implements store.Store.
func (s *Store) GetReceipt(ctx context.Context, receiptID string) (*domain.ReceiptSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT receipt_id, user_id, merchant, total, date, num_items, source, parsed_by, created_at, updated_at
		FROM receipts WHERE receipt_id = ?`, receiptID)

	var (
		r                    domain.ReceiptSummary
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ReceiptID, &r.UserID, &r.Merchant, &r.Total, &r.Date, &r.NumItems,
		&r.Source, &r.ParsedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", receiptID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetReceipt: scan: %w", err)
	}

	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("GetReceipt: created_at: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("GetReceipt: updated_at: %w", err)
	}
	return &r, nil
}

const expenseColumns = `expense_id, user_id, receipt_id, item_name, amount, quantity, category, ai_category,
	category_confidence, merchant, date, source, parsed_by, created_at, updated_at`

// ListExpensesByReceipt implements store.Store.
func (s *Store) ListExpensesByReceipt(ctx context.Context, receiptID string) ([]*domain.ExpenseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE receipt_id = ? ORDER BY created_at, expense_id`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("ListExpensesByReceipt: query: %w", err)
	}
	expenses, err := scanExpenses(rows)
	if err != nil {
		return nil, fmt.Errorf("ListExpensesByReceipt: %w", err)
	}
	return expenses, nil
}

// ListExpensesByUser implements store.Store.
func (s *Store) ListExpensesByUser(ctx context.Context, userID string) ([]*domain.ExpenseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses
		WHERE user_id = ? ORDER BY created_at, expense_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListExpensesByUser: query: %w", err)
	}
	expenses, err := scanExpenses(rows)
	if err != nil {
		return nil, fmt.Errorf("ListExpensesByUser: %w", err)
	}
	return expenses, nil
}

func scanExpenses(rows *sql.Rows) ([]*domain.ExpenseRecord, error) {
	defer rows.Close()

	result := []*domain.ExpenseRecord{}
	for rows.Next() {
		var (
			e                    domain.ExpenseRecord
			receiptID            sql.NullString
			quantity             sql.NullInt64
			confidence           sql.NullFloat64
			createdAt, updatedAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &receiptID, &e.ItemName, &e.Amount, &quantity,
			&e.Category, &e.AICategory, &confidence, &e.Merchant, &e.Date, &e.Source, &e.ParsedBy,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}

		e.ReceiptID = receiptID.String
		if quantity.Valid {
			q := int(quantity.Int64)
			e.Quantity = &q
		}
		if confidence.Valid {
			c := confidence.Float64
			e.CategoryConfidence = &c
		}

		var err error
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("expense %s created_at: %w", e.ID, err)
		}
		if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("expense %s updated_at: %w", e.ID, err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return result, nil
}

// Commit implements store.Store. All operations run inside one transaction.
func (s *Store) Commit(ctx context.Context, batch *store.Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}

	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		for i, op := range batch.Ops() {
			if err := applyOp(ctx, tx, op); err != nil {
				return fmt.Errorf("op %d (%s %s): %w", i, op.Kind, op.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) withTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			s.log.Error().Interface("panic", p).Msg("Transaction panicked, rolled back")
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.log.Error().Err(err).Msg("Failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func applyOp(ctx context.Context, tx *sql.Tx, op store.Op) error {
	var err error
	switch op.Kind {
	case store.OpPutReceipt:
		r := op.Receipt
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO receipts
				(receipt_id, user_id, merchant, total, date, num_items, source, parsed_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ReceiptID, r.UserID, r.Merchant, r.Total, r.Date, r.NumItems, r.Source, r.ParsedBy,
			formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	case store.OpPutExpense:
		e := op.Expense
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO expenses (`+expenseColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.UserID, nullString(e.ReceiptID), e.ItemName, e.Amount, nullInt(e.Quantity),
			e.Category, e.AICategory, nullFloat(e.CategoryConfidence), e.Merchant, e.Date, e.Source,
			e.ParsedBy, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	case store.OpDeleteReceipt:
		_, err = tx.ExecContext(ctx, `DELETE FROM receipts WHERE receipt_id = ?`, op.ID)
	case store.OpDeleteExpense:
		_, err = tx.ExecContext(ctx, `DELETE FROM expenses WHERE expense_id = ?`, op.ID)
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
