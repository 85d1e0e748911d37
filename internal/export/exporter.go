// Package export flattens a user's expenses into a downloadable file.
package export

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/receipt-ledger/internal/blob"
	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/store"
)

// DefaultURLTTL is how long a retrieval URL stays valid.
const DefaultURLTTL = 10 * time.Minute

// receiptLookupLimit bounds concurrent receipt reads.
const receiptLookupLimit = 8

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_\-]`)

// Result describes a finished export.
type Result struct {
	RowCount  int       `json:"rowCount"`
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Exporter joins expenses with their receipts and uploads the encoded rows.
type Exporter struct {
	store   store.Store
	blobs   blob.Store
	encoder Encoder
	ttl     time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewExporter creates an exporter. A zero ttl means DefaultURLTTL.
func NewExporter(s store.Store, blobs blob.Store, encoder Encoder, ttl time.Duration, log zerolog.Logger) *Exporter {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	if encoder == nil {
		encoder = CSVEncoder{}
	}
	return &Exporter{store: s, blobs: blobs, encoder: encoder, ttl: ttl, log: log, now: time.Now}
}

// WithClock replaces the clock used for object names and expiry.
func (x *Exporter) WithClock(now func() time.Time) *Exporter {
	x.now = now
	return x
}

// ObjectPath names the export object for userID generated at t.
func ObjectPath(userID string, t time.Time, ext string) string {
	return fmt.Sprintf("exports/user_%s_expenses_%d.%s", unsafePathChars.ReplaceAllString(userID, "_"), t.UnixMilli(), ext)
}

// ExportAll writes every expense of userID to blob storage and returns a
// retrieval URL valid for the configured TTL. A user with no expenses gets
// domain.ErrNoData and no artifact is produced.
func (x *Exporter) ExportAll(ctx context.Context, userID string) (*Result, error) {
	if userID == "" {
		return nil, domain.NewInputValidationError("userId", "is required")
	}

	records, err := x.store.ListExpensesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ExportAll: listing expenses: %w", err)
	}
	if len(records) == 0 {
		return nil, domain.ErrNoData
	}

	receipts, err := x.loadReceipts(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("ExportAll: %w", err)
	}

	rows := BuildRows(records, receipts)
	data, err := x.encoder.Encode(rows)
	if err != nil {
		return nil, fmt.Errorf("ExportAll: encoding: %w", err)
	}

	now := x.now()
	path := ObjectPath(userID, now, x.encoder.Extension())
	if err := x.blobs.Upload(ctx, path, x.encoder.ContentType(), data); err != nil {
		return nil, fmt.Errorf("ExportAll: uploading %s: %w", path, err)
	}

	expiresAt := now.Add(x.ttl)
	url, err := x.blobs.SignedURL(ctx, path, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("ExportAll: signing %s: %w", path, err)
	}

	x.log.Info().
		Str("user_id", userID).
		Str("path", path).
		Int("count", len(rows)).
		Msg("Export written")

	return &Result{RowCount: len(rows), URL: url, Path: path, ExpiresAt: expiresAt}, nil
}

// loadReceipts reads the distinct receipts referenced by records concurrently.
// Receipts that no longer exist are left out of the map.
func (x *Exporter) loadReceipts(ctx context.Context, records []*domain.ExpenseRecord) (map[string]*domain.ReceiptSummary, error) {
	ids := map[string]struct{}{}
	for _, r := range records {
		if r.ReceiptID != "" {
			ids[r.ReceiptID] = struct{}{}
		}
	}

	var mu sync.Mutex
	receipts := make(map[string]*domain.ReceiptSummary, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(receiptLookupLimit)
	for id := range ids {
		g.Go(func() error {
			summary, err := x.store.GetReceipt(gctx, id)
			if errors.Is(err, store.ErrNotFound) {
				x.log.Warn().Str("receipt_id", id).Msg("Expense references a missing receipt")
				return nil
			}
			if err != nil {
				return fmt.Errorf("loading receipt %s: %w", id, err)
			}
			mu.Lock()
			receipts[id] = summary
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return receipts, nil
}
