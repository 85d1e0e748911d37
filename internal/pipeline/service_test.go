package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/receipt-ledger/internal/analytics"
	"github.com/dvloznov/receipt-ledger/internal/blob"
	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/enrich"
	"github.com/dvloznov/receipt-ledger/internal/export"
	"github.com/dvloznov/receipt-ledger/internal/ledger"
	"github.com/dvloznov/receipt-ledger/internal/pipeline"
	"github.com/dvloznov/receipt-ledger/internal/store/inmemory"
)

// MockClassifier is a mock implementation of enrich.Classifier.
type MockClassifier struct {
	ClassifyFunc func(ctx context.Context, req enrich.ClassifyRequest) (string, error)
}

func (m *MockClassifier) Classify(ctx context.Context, req enrich.ClassifyRequest) (string, error) {
	return m.ClassifyFunc(ctx, req)
}

func (m *MockClassifier) Model() string { return "mock-model" }

// MockRecognizer is a mock implementation of enrich.TextRecognizer.
type MockRecognizer struct {
	RecognizeTextFunc func(ctx context.Context, image []byte, mimeType string) (string, error)
}

func (m *MockRecognizer) RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error) {
	return m.RecognizeTextFunc(ctx, image, mimeType)
}

const receiptText = `
CORNER DELI
06/03/2024
Turkey Sandwich 8.50
Iced Tea 2.25
TOTAL: $10.75
`

const oracleReply = "```json\n" + `{
  "store": "Corner Deli",
  "date": "06/03/2024",
  "total": 10.75,
  "items": [
    {"name": "Turkey Sandwich", "price": 8.50, "quantity": 1, "category": "Food & Dining"},
    {"name": "Iced Tea", "price": 2.25, "quantity": 1, "category": "Beverages"}
  ]
}` + "\n```"

type fixture struct {
	svc        *pipeline.Service
	store      *inmemory.Store
	classifier *MockClassifier
	recognizer *MockRecognizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zerolog.Nop()
	st := inmemory.NewStore()
	classifier := &MockClassifier{ClassifyFunc: func(ctx context.Context, req enrich.ClassifyRequest) (string, error) {
		return oracleReply, nil
	}}
	recognizer := &MockRecognizer{RecognizeTextFunc: func(ctx context.Context, image []byte, mimeType string) (string, error) {
		return receiptText, nil
	}}
	enricher := enrich.NewEnricher(classifier, log)

	svc := pipeline.NewService(pipeline.Deps{
		Enricher:   enricher,
		Recognizer: recognizer,
		Ledger:     ledger.NewCoordinator(st, enricher.Model(), log),
		Analytics:  analytics.NewEngine(st, nil, time.UTC, log),
		Exporter:   export.NewExporter(st, blob.NewMemoryStore(), export.CSVEncoder{}, 0, log),
		Log:        log,
	})
	return &fixture{svc: svc, store: st, classifier: classifier, recognizer: recognizer}
}

func TestExtractAndEnrich(t *testing.T) {
	f := newFixture(t)

	var seen enrich.ClassifyRequest
	f.classifier.ClassifyFunc = func(ctx context.Context, req enrich.ClassifyRequest) (string, error) {
		seen = req
		return oracleReply, nil
	}

	got, err := f.svc.ExtractAndEnrich(context.Background(), receiptText)
	require.NoError(t, err)
	assert.Equal(t, "Corner Deli", got.Store)
	require.Len(t, got.Items, 2)
	assert.Equal(t, domain.CategoryOther, got.Items[1].Category, "unknown category is rewritten")

	assert.Equal(t, "CORNER DELI", seen.Store)
	assert.Len(t, seen.Categories, 10)

	all, err := f.store.ListExpensesByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, all, "extraction never persists")
}

func TestExtractAndEnrich_NoItemsSkipsOracle(t *testing.T) {
	f := newFixture(t)
	called := false
	f.classifier.ClassifyFunc = func(ctx context.Context, req enrich.ClassifyRequest) (string, error) {
		called = true
		return "", nil
	}

	_, err := f.svc.ExtractAndEnrich(context.Background(), "JUST A HEADER\nthanks for shopping")
	assert.True(t, domain.IsInputValidation(err))
	assert.False(t, called)
}

func TestIngestImage_SavesReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.IngestImage(ctx, "u1", []byte{0xFF, 0xD8}, "image/jpeg")
	require.NoError(t, err)
	require.NotEmpty(t, res.ReceiptID)
	assert.True(t, strings.Contains(res.RawText, "CORNER DELI"))

	detail, err := f.svc.GetReceipt(ctx, "u1", res.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, 10.75, detail.Summary.Total)
	assert.Equal(t, 2, detail.Summary.NumItems)
	assert.Equal(t, "mock-model", detail.Summary.ParsedBy)
	assert.Len(t, detail.Expenses, 2)
}

func TestIngestImage_FailuresPersistNothing(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fixture)
		image   []byte
		checkFn func(t *testing.T, err error)
	}{
		{
			name:  "recognizer error",
			image: []byte{1},
			mutate: func(f *fixture) {
				f.recognizer.RecognizeTextFunc = func(ctx context.Context, image []byte, mimeType string) (string, error) {
					return "", errors.New("vision unavailable")
				}
			},
			checkFn: func(t *testing.T, err error) { assert.ErrorContains(t, err, "pipeline step 1 failed") },
		},
		{
			name:    "empty image",
			image:   nil,
			mutate:  func(f *fixture) {},
			checkFn: func(t *testing.T, err error) { assert.True(t, domain.IsInputValidation(err)) },
		},
		{
			name:  "oracle returns nothing",
			image: []byte{1},
			mutate: func(f *fixture) {
				f.classifier.ClassifyFunc = func(ctx context.Context, req enrich.ClassifyRequest) (string, error) {
					return "", nil
				}
			},
			checkFn: func(t *testing.T, err error) {
				kind, ok := domain.IsEnrichmentFailure(err)
				require.True(t, ok)
				assert.Equal(t, domain.FailureNoResponse, kind)
			},
		},
		{
			name:  "oracle returns garbage",
			image: []byte{1},
			mutate: func(f *fixture) {
				f.classifier.ClassifyFunc = func(ctx context.Context, req enrich.ClassifyRequest) (string, error) {
					return "I could not read this receipt, sorry.", nil
				}
			},
			checkFn: func(t *testing.T, err error) {
				kind, ok := domain.IsEnrichmentFailure(err)
				require.True(t, ok)
				assert.Equal(t, domain.FailureInvalidResponse, kind)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.mutate(f)

			_, err := f.svc.IngestImage(context.Background(), "u1", tt.image, "image/png")
			require.Error(t, err)
			tt.checkFn(t, err)

			all, err := f.store.ListExpensesByUser(context.Background(), "u1")
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestIngestImage_NoRecognizer(t *testing.T) {
	log := zerolog.Nop()
	st := inmemory.NewStore()
	svc := pipeline.NewService(pipeline.Deps{
		Enricher: enrich.NewEnricher(&MockClassifier{}, log),
		Ledger:   ledger.NewCoordinator(st, "m", log),
		Log:      log,
	})

	_, err := svc.IngestImage(context.Background(), "u1", []byte{1}, "image/png")
	assert.ErrorIs(t, err, pipeline.ErrRecognizerUnavailable)
}

func TestSaveDeleteAggregateExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enriched, err := f.svc.ExtractAndEnrich(ctx, receiptText)
	require.NoError(t, err)

	receiptID, err := f.svc.SaveEnrichedReceipt(ctx, "u1", enriched)
	require.NoError(t, err)
	_, err = f.svc.AddManualExpense(ctx, "u1", domain.ManualExpense{ItemName: "Bus", Amount: 2.75, Category: "Transportation"})
	require.NoError(t, err)

	agg, err := f.svc.Aggregate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 8.5, agg.TotalsByCategory[string(domain.CategoryFood)])
	assert.Equal(t, 2.75, agg.TotalsByCategory[string(domain.CategoryTransport)])

	exp, err := f.svc.ExportAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, exp.RowCount)

	n, err := f.svc.DeleteReceipt(ctx, "u1", receiptID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	exp, err = f.svc.ExportAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, exp.RowCount)

	_, err = f.svc.ExportAll(ctx, "u2")
	assert.ErrorIs(t, err, domain.ErrNoData)
}
