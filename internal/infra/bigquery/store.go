// Package bigquery persists receipts and expenses in BigQuery tables.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/store"
)

// Store is a store.Store backed by BigQuery. It holds one shared client.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	log       zerolog.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore creates a BigQuery client for projectID and returns a store over datasetID.
func NewStore(ctx context.Context, projectID, datasetID string, log zerolog.Logger, opts ...option.ClientOption) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewStore: project ID is required")
	}
	if datasetID == "" {
		return nil, fmt.Errorf("NewStore: dataset ID is required")
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return &Store{client: client, projectID: projectID, datasetID: datasetID, log: log}, nil
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) table(name string) string {
	return "`" + s.projectID + "." + s.datasetID + "." + name + "`"
}

// GetReceipt implements store.Store.
func (s *Store) GetReceipt(ctx context.Context, receiptID string) (*domain.ReceiptSummary, error) {
	q := s.client.Query(`SELECT ` + receiptColumns + ` FROM ` + s.table("receipts") + `
		WHERE receipt_id = @receipt_id
		LIMIT 1`)
	q.Parameters = []bigquery.QueryParameter{{Name: "receipt_id", Value: receiptID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetReceipt: reading query: %w", err)
	}

	var row ReceiptRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("receipt %s: %w", receiptID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetReceipt: iterating: %w", err)
	}
	return row.toDomain(), nil
}

// ListExpensesByReceipt implements store.Store.
func (s *Store) ListExpensesByReceipt(ctx context.Context, receiptID string) ([]*domain.ExpenseRecord, error) {
	expenses, err := s.queryExpenses(ctx, "receipt_id", receiptID)
	if err != nil {
		return nil, fmt.Errorf("ListExpensesByReceipt: %w", err)
	}
	return expenses, nil
}

// ListExpensesByUser implements store.Store.
func (s *Store) ListExpensesByUser(ctx context.Context, userID string) ([]*domain.ExpenseRecord, error) {
	expenses, err := s.queryExpenses(ctx, "user_id", userID)
	if err != nil {
		return nil, fmt.Errorf("ListExpensesByUser: %w", err)
	}
	return expenses, nil
}

// queryExpenses selects expenses where column equals value. column is never user input.
func (s *Store) queryExpenses(ctx context.Context, column, value string) ([]*domain.ExpenseRecord, error) {
	q := s.client.Query(`SELECT ` + expenseColumns + ` FROM ` + s.table("expenses") + `
		WHERE ` + column + ` = @value
		ORDER BY created_ts, expense_id`)
	q.Parameters = []bigquery.QueryParameter{{Name: "value", Value: value}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}

	expenses := []*domain.ExpenseRecord{}
	for {
		var row ExpenseRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating: %w", err)
		}
		expenses = append(expenses, row.toDomain())
	}
	return expenses, nil
}

// Commit implements store.Store by running the batch as a single
// multi-statement transaction.
func (s *Store) Commit(ctx context.Context, batch *store.Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	script, params := buildCommitScript(s.projectID, s.datasetID, batch)
	q := s.client.Query(script)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("Commit: run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("Commit: wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID()).Int("ops", batch.Len()).Msg("BigQuery transaction failed")
		return fmt.Errorf("Commit: job error: %w", err)
	}

	s.log.Debug().Str("job_id", job.ID()).Int("ops", batch.Len()).Msg("BigQuery transaction committed")
	return nil
}
