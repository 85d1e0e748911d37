package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-ledger/internal/api/middleware"
	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/logger"
)

// StatusForError maps a service outcome to an HTTP status code.
func StatusForError(err error) int {
	switch {
	case domain.IsInputValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFoundOrForbidden), errors.Is(err, domain.ErrNoData):
		return http.StatusNotFound
	case domain.IsPartialWrite(err):
		return http.StatusServiceUnavailable
	}
	if _, ok := domain.IsEnrichmentFailure(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// requestLog returns the request-scoped logger, tagged with the caller.
// fallback is used outside the Logger middleware.
func requestLog(r *http.Request, fallback zerolog.Logger) zerolog.Logger {
	return logger.WithFields(logger.FromContextOr(r.Context(), fallback), map[string]interface{}{
		"user_id": middleware.UserIDFromContext(r.Context()),
	})
}

// writeServiceError logs err and writes the mapped status. Client errors
// carry the error text; server errors carry a fixed message.
func writeServiceError(w http.ResponseWriter, r *http.Request, fallback zerolog.Logger, err error) {
	status := StatusForError(err)
	log := requestLog(r, fallback)

	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		log.Debug().Err(err).Int("status", status).Msg("Request rejected")
		middleware.WriteError(w, status, err.Error())
	case http.StatusBadGateway:
		kind, _ := domain.IsEnrichmentFailure(err)
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Enrichment failed")
		middleware.WriteError(w, status, "Could not enrich receipt: "+string(kind))
	case http.StatusServiceUnavailable:
		log.Error().Err(err).Msg("Commit failed")
		middleware.WriteError(w, status, "Storage commit failed, retry the request")
	default:
		log.Error().Err(err).Msg("Request failed")
		middleware.WriteError(w, status, "Internal server error")
	}
}
