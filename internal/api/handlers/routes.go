package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-ledger/internal/api/middleware"
)

// NewRouter registers every endpoint on a new mux.
func NewRouter(svc ReceiptService, log zerolog.Logger) *http.ServeMux {
	receipts := NewReceiptsHandler(svc, log)
	expenses := NewExpensesHandler(svc, log)
	analytics := NewAnalyticsHandler(svc, log)
	exports := NewExportsHandler(svc, log)

	mux := http.NewServeMux()

	// Receipts endpoints
	mux.HandleFunc("POST /api/receipts/extract", receipts.Extract)
	mux.HandleFunc("POST /api/receipts/scan", receipts.Scan)
	mux.HandleFunc("POST /api/receipts", receipts.Save)
	mux.HandleFunc("GET /api/receipts/{id}", receipts.Get)
	mux.HandleFunc("DELETE /api/receipts/{id}", receipts.Delete)

	mux.HandleFunc("POST /api/expenses", expenses.Create)

	mux.HandleFunc("GET /api/analytics", analytics.Aggregate)
	mux.HandleFunc("GET /api/analytics/summary", analytics.Summary)

	mux.HandleFunc("POST /api/exports", exports.Create)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}

// Wrap applies the middleware chain around h.
func Wrap(h http.Handler, log zerolog.Logger) http.Handler {
	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(h),
				),
			),
		),
	)
}
