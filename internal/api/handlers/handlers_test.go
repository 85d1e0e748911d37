package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/receipt-ledger/internal/analytics"
	"github.com/dvloznov/receipt-ledger/internal/api/middleware"
	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/export"
	"github.com/dvloznov/receipt-ledger/internal/pipeline"
)

// MockService is a mock implementation of ReceiptService.
type MockService struct {
	ExtractAndEnrichFunc    func(ctx context.Context, rawText string) (*domain.EnrichedReceipt, error)
	SaveEnrichedReceiptFunc func(ctx context.Context, userID string, receipt *domain.EnrichedReceipt) (string, error)
	IngestImageFunc         func(ctx context.Context, userID string, image []byte, mimeType string) (*pipeline.IngestResult, error)
	GetReceiptFunc          func(ctx context.Context, userID, receiptID string) (*domain.ReceiptDetail, error)
	DeleteReceiptFunc       func(ctx context.Context, userID, receiptID string) (int, error)
	AddManualExpenseFunc    func(ctx context.Context, userID string, in domain.ManualExpense) (*domain.ExpenseRecord, error)
	AggregateFunc           func(ctx context.Context, userID string) (*analytics.Result, error)
	SummarizeFunc           func(ctx context.Context, userID string) (string, error)
	ExportAllFunc           func(ctx context.Context, userID string) (*export.Result, error)
}

func (m *MockService) ExtractAndEnrich(ctx context.Context, rawText string) (*domain.EnrichedReceipt, error) {
	return m.ExtractAndEnrichFunc(ctx, rawText)
}

func (m *MockService) SaveEnrichedReceipt(ctx context.Context, userID string, receipt *domain.EnrichedReceipt) (string, error) {
	return m.SaveEnrichedReceiptFunc(ctx, userID, receipt)
}

func (m *MockService) IngestImage(ctx context.Context, userID string, image []byte, mimeType string) (*pipeline.IngestResult, error) {
	return m.IngestImageFunc(ctx, userID, image, mimeType)
}

func (m *MockService) GetReceipt(ctx context.Context, userID, receiptID string) (*domain.ReceiptDetail, error) {
	return m.GetReceiptFunc(ctx, userID, receiptID)
}

func (m *MockService) DeleteReceipt(ctx context.Context, userID, receiptID string) (int, error) {
	return m.DeleteReceiptFunc(ctx, userID, receiptID)
}

func (m *MockService) AddManualExpense(ctx context.Context, userID string, in domain.ManualExpense) (*domain.ExpenseRecord, error) {
	return m.AddManualExpenseFunc(ctx, userID, in)
}

func (m *MockService) Aggregate(ctx context.Context, userID string) (*analytics.Result, error) {
	return m.AggregateFunc(ctx, userID)
}

func (m *MockService) Summarize(ctx context.Context, userID string) (string, error) {
	return m.SummarizeFunc(ctx, userID)
}

func (m *MockService) ExportAll(ctx context.Context, userID string) (*export.Result, error) {
	return m.ExportAllFunc(ctx, userID)
}

func serve(t *testing.T, svc ReceiptService, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	log := zerolog.Nop()
	rec := httptest.NewRecorder()
	Wrap(NewRouter(svc, log), log).ServeHTTP(rec, req)
	return rec
}

func newRequest(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, "u1")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuth_MissingIdentity(t *testing.T) {
	called := false
	svc := &MockService{AggregateFunc: func(ctx context.Context, userID string) (*analytics.Result, error) {
		called = true
		return &analytics.Result{}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	rec := serve(t, svc, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealth_NoIdentityRequired(t *testing.T) {
	rec := serve(t, &MockService{}, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestExtract(t *testing.T) {
	svc := &MockService{ExtractAndEnrichFunc: func(ctx context.Context, rawText string) (*domain.EnrichedReceipt, error) {
		assert.Equal(t, "COFFEE 3.50", rawText)
		return &domain.EnrichedReceipt{Store: "Cafe", Date: "01/02/2024", Total: 3.5, Items: []domain.EnrichedLineItem{
			{Name: "COFFEE", Price: 3.5, Quantity: 1, Category: domain.CategoryFood},
		}}, nil
	}}

	rec := serve(t, svc, newRequest(http.MethodPost, "/api/receipts/extract", []byte(`{"rawText":"COFFEE 3.50"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.EnrichedReceipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Cafe", got.Store)
	assert.Equal(t, domain.CategoryFood, got.Items[0].Category)
}

func TestExtract_InvalidBody(t *testing.T) {
	rec := serve(t, &MockService{}, newRequest(http.MethodPost, "/api/receipts/extract", []byte(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSave_UsesCallerIdentity(t *testing.T) {
	svc := &MockService{SaveEnrichedReceiptFunc: func(ctx context.Context, userID string, receipt *domain.EnrichedReceipt) (string, error) {
		assert.Equal(t, "u1", userID)
		assert.Len(t, receipt.Items, 1)
		return "r-123", nil
	}}

	body := []byte(`{"store":"Cafe","date":"01/02/2024","total":3.5,"items":[{"name":"Tea","price":3.5,"quantity":1,"category":"Other"}]}`)
	rec := serve(t, svc, newRequest(http.MethodPost, "/api/receipts", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "r-123", decodeBody(t, rec)["receiptId"])
}

func TestScan_Base64(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G'}
	svc := &MockService{IngestImageFunc: func(ctx context.Context, userID string, got []byte, mimeType string) (*pipeline.IngestResult, error) {
		assert.Equal(t, image, got)
		assert.Equal(t, "image/png", mimeType)
		return &pipeline.IngestResult{ReceiptID: "r-1"}, nil
	}}

	body := fmt.Sprintf(`{"image":%q,"mimeType":"image/png"}`, base64.StdEncoding.EncodeToString(image))
	rec := serve(t, svc, newRequest(http.MethodPost, "/api/receipts/scan", []byte(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "r-1", decodeBody(t, rec)["receiptId"])
}

func TestScan_Multipart(t *testing.T) {
	svc := &MockService{IngestImageFunc: func(ctx context.Context, userID string, got []byte, mimeType string) (*pipeline.IngestResult, error) {
		assert.Equal(t, []byte("jpeg-bytes"), got)
		return &pipeline.IngestResult{ReceiptID: "r-2"}, nil
	}}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "receipt.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := newRequest(http.MethodPost, "/api/receipts/scan", buf.Bytes())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "r-2", decodeBody(t, rec)["receiptId"])
}

func TestScan_BadBase64(t *testing.T) {
	rec := serve(t, &MockService{}, newRequest(http.MethodPost, "/api/receipts/scan", []byte(`{"image":"%%%"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndDeleteReceipt(t *testing.T) {
	svc := &MockService{
		GetReceiptFunc: func(ctx context.Context, userID, receiptID string) (*domain.ReceiptDetail, error) {
			if receiptID != "r-1" {
				return nil, domain.ErrNotFoundOrForbidden
			}
			return &domain.ReceiptDetail{Summary: &domain.ReceiptSummary{ReceiptID: "r-1", UserID: userID}}, nil
		},
		DeleteReceiptFunc: func(ctx context.Context, userID, receiptID string) (int, error) {
			return 3, nil
		},
	}

	rec := serve(t, svc, newRequest(http.MethodGet, "/api/receipts/r-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, svc, newRequest(http.MethodGet, "/api/receipts/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, svc, newRequest(http.MethodDelete, "/api/receipts/r-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "r-1", body["receiptId"])
	assert.Equal(t, float64(3), body["deletedExpenses"])
}

func TestAddManualExpense(t *testing.T) {
	svc := &MockService{AddManualExpenseFunc: func(ctx context.Context, userID string, in domain.ManualExpense) (*domain.ExpenseRecord, error) {
		assert.Equal(t, "Bus", in.ItemName)
		return &domain.ExpenseRecord{ID: "e-1", UserID: userID, ItemName: in.ItemName, Amount: in.Amount, Source: domain.SourceManual}, nil
	}}

	rec := serve(t, svc, newRequest(http.MethodPost, "/api/expenses", []byte(`{"itemName":"Bus","amount":2.75}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "e-1", decodeBody(t, rec)["id"])
}

func TestAnalyticsAndExport(t *testing.T) {
	svc := &MockService{
		AggregateFunc: func(ctx context.Context, userID string) (*analytics.Result, error) {
			return &analytics.Result{TotalsByCategory: map[string]float64{"Other": 4}}, nil
		},
		SummarizeFunc: func(ctx context.Context, userID string) (string, error) {
			return "You spent a little.", nil
		},
		ExportAllFunc: func(ctx context.Context, userID string) (*export.Result, error) {
			return &export.Result{RowCount: 2, URL: "memory:///x"}, nil
		},
	}

	rec := serve(t, svc, newRequest(http.MethodGet, "/api/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalsByCategory":{"Other":4}`)

	rec = serve(t, svc, newRequest(http.MethodGet, "/api/analytics/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You spent a little.", decodeBody(t, rec)["summary"])

	rec = serve(t, svc, newRequest(http.MethodPost, "/api/exports", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["rowCount"])
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(t, &MockService{}, newRequest(http.MethodPut, "/api/exports", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"input", domain.NewInputValidationError("items", "empty"), http.StatusBadRequest},
		{"wrapped input", fmt.Errorf("pipeline step 1 failed: %w", domain.NewInputValidationError("image", "is required")), http.StatusBadRequest},
		{"not found", domain.ErrNotFoundOrForbidden, http.StatusNotFound},
		{"no data", domain.ErrNoData, http.StatusNotFound},
		{"enrichment", &domain.EnrichmentFailure{Kind: domain.FailureInvalidResponse}, http.StatusBadGateway},
		{"partial write", &domain.PartialWriteFailure{Op: "save", Err: errors.New("boom")}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestServiceErrorBodies(t *testing.T) {
	svc := &MockService{ExportAllFunc: func(ctx context.Context, userID string) (*export.Result, error) {
		return nil, &domain.EnrichmentFailure{Kind: domain.FailureNoResponse}
	}}
	rec := serve(t, svc, newRequest(http.MethodPost, "/api/exports", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Could not enrich receipt: no_response", decodeBody(t, rec)["error"])

	svc.ExportAllFunc = func(ctx context.Context, userID string) (*export.Result, error) {
		return nil, errors.New("dial tcp: secret host")
	}
	rec = serve(t, svc, newRequest(http.MethodPost, "/api/exports", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeBody(t, rec)["error"])
}

func TestRecovery(t *testing.T) {
	svc := &MockService{SummarizeFunc: func(ctx context.Context, userID string) (string, error) {
		panic("boom")
	}}
	rec := serve(t, svc, newRequest(http.MethodGet, "/api/analytics/summary", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServiceError_LogsWithRequestScope(t *testing.T) {
	buf := &bytes.Buffer{}
	log := zerolog.New(buf)
	svc := &MockService{AggregateFunc: func(ctx context.Context, userID string) (*analytics.Result, error) {
		return nil, errors.New("boom")
	}}

	req := newRequest(http.MethodGet, "/api/analytics", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	Wrap(NewRouter(svc, log), log).ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var failed map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["message"] == "Request failed" {
			failed = entry
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "req-42", failed["request_id"])
	assert.Equal(t, "u1", failed["user_id"])
	assert.Equal(t, "boom", failed["error"])
}
