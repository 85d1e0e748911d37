package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-ledger/internal/analytics"
	"github.com/dvloznov/receipt-ledger/internal/api/middleware"
	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/export"
	"github.com/dvloznov/receipt-ledger/internal/pipeline"
)

// maxImageBytes caps uploaded receipt images.
const maxImageBytes = 10 << 20

// ReceiptService is the set of operations the HTTP surface exposes.
type ReceiptService interface {
	ExtractAndEnrich(ctx context.Context, rawText string) (*domain.EnrichedReceipt, error)
	SaveEnrichedReceipt(ctx context.Context, userID string, receipt *domain.EnrichedReceipt) (string, error)
	IngestImage(ctx context.Context, userID string, image []byte, mimeType string) (*pipeline.IngestResult, error)
	GetReceipt(ctx context.Context, userID, receiptID string) (*domain.ReceiptDetail, error)
	DeleteReceipt(ctx context.Context, userID, receiptID string) (int, error)
	AddManualExpense(ctx context.Context, userID string, in domain.ManualExpense) (*domain.ExpenseRecord, error)
	Aggregate(ctx context.Context, userID string) (*analytics.Result, error)
	Summarize(ctx context.Context, userID string) (string, error)
	ExportAll(ctx context.Context, userID string) (*export.Result, error)
}

var _ ReceiptService = (*pipeline.Service)(nil)

// ReceiptsHandler handles receipt-related endpoints.
type ReceiptsHandler struct {
	svc ReceiptService
	log zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(svc ReceiptService, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{svc: svc, log: log}
}

// Extract handles POST /api/receipts/extract
func (h *ReceiptsHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RawText string `json:"rawText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := h.svc.ExtractAndEnrich(r.Context(), req.RawText)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, receipt)
}

// Save handles POST /api/receipts
func (h *ReceiptsHandler) Save(w http.ResponseWriter, r *http.Request) {
	var receipt domain.EnrichedReceipt
	if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	receiptID, err := h.svc.SaveEnrichedReceipt(r.Context(), userID, &receipt)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{"receiptId": receiptID})
}

// Scan handles POST /api/receipts/scan. The image arrives either as the
// multipart field "image" or as JSON {"image": base64, "mimeType": ...}.
func (h *ReceiptsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)

	image, mimeType, err := readImage(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	result, err := h.svc.IngestImage(r.Context(), userID, image, mimeType)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	log := requestLog(r, h.log)
	log.Info().Str("receipt_id", result.ReceiptID).Msg("Receipt scanned")
	middleware.WriteJSON(w, http.StatusCreated, result)
}

func readImage(r *http.Request) ([]byte, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("image")
		if err != nil {
			return nil, "", errors.New("image file is required")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", errors.New("could not read image")
		}
		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		return data, mimeType, nil
	}

	var req struct {
		Image    string `json:"image"`
		MIMEType string `json:"mimeType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", errors.New("invalid request body")
	}
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return nil, "", errors.New("image must be base64 encoded")
	}
	if req.MIMEType == "" {
		req.MIMEType = http.DetectContentType(data)
	}
	return data, req.MIMEType, nil
}

// Get handles GET /api/receipts/{id}
func (h *ReceiptsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	detail, err := h.svc.GetReceipt(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, detail)
}

// Delete handles DELETE /api/receipts/{id}
func (h *ReceiptsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	receiptID := r.PathValue("id")

	n, err := h.svc.DeleteReceipt(r.Context(), userID, receiptID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"receiptId":       receiptID,
		"deletedExpenses": n,
	})
}

// ExpensesHandler handles manual expense entry.
type ExpensesHandler struct {
	svc ReceiptService
	log zerolog.Logger
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(svc ReceiptService, log zerolog.Logger) *ExpensesHandler {
	return &ExpensesHandler{svc: svc, log: log}
}

// Create handles POST /api/expenses
func (h *ExpensesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.ManualExpense
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := h.svc.AddManualExpense(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, record)
}

// AnalyticsHandler handles spending rollups.
type AnalyticsHandler struct {
	svc ReceiptService
	log zerolog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(svc ReceiptService, log zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, log: log}
}

// Aggregate handles GET /api/analytics
func (h *AnalyticsHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Aggregate(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// Summary handles GET /api/analytics/summary
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	text, err := h.svc.Summarize(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"summary": text})
}

// ExportsHandler handles expense exports.
type ExportsHandler struct {
	svc ReceiptService
	log zerolog.Logger
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(svc ReceiptService, log zerolog.Logger) *ExportsHandler {
	return &ExportsHandler{svc: svc, log: log}
}

// Create handles POST /api/exports
func (h *ExportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ExportAll(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, result)
}
