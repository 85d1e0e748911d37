// Package pipeline exposes the caller-facing receipt operations and wires
// extraction, enrichment, persistence, analytics and export together.
package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-ledger/internal/analytics"
	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/enrich"
	"github.com/dvloznov/receipt-ledger/internal/export"
	"github.com/dvloznov/receipt-ledger/internal/extract"
	"github.com/dvloznov/receipt-ledger/internal/ledger"
)

// ErrRecognizerUnavailable is returned by IngestImage when no text
// recognizer is configured.
var ErrRecognizerUnavailable = errors.New("text recognition is not configured")

// IngestResult is the outcome of an image ingestion.
type IngestResult struct {
	ReceiptID string                  `json:"receiptId"`
	Receipt   *domain.EnrichedReceipt `json:"receipt"`
	RawText   string                  `json:"rawText"`
}

// Service implements every caller-facing operation.
type Service struct {
	enricher   *enrich.Enricher
	recognizer enrich.TextRecognizer
	ledger     *ledger.Coordinator
	analytics  *analytics.Engine
	exporter   *export.Exporter
	log        zerolog.Logger
}

// Deps groups the collaborators of a Service. Recognizer may be nil.
type Deps struct {
	Enricher   *enrich.Enricher
	Recognizer enrich.TextRecognizer
	Ledger     *ledger.Coordinator
	Analytics  *analytics.Engine
	Exporter   *export.Exporter
	Log        zerolog.Logger
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	return &Service{
		enricher:   d.Enricher,
		recognizer: d.Recognizer,
		ledger:     d.Ledger,
		analytics:  d.Analytics,
		exporter:   d.Exporter,
		log:        d.Log,
	}
}

// Extract runs heuristic field extraction only.
func (s *Service) Extract(rawText string) domain.ParsedReceipt {
	return extract.ParseReceiptText(rawText)
}

// ExtractAndEnrich parses raw receipt text and has the oracle complete it.
// Nothing is persisted.
func (s *Service) ExtractAndEnrich(ctx context.Context, rawText string) (*domain.EnrichedReceipt, error) {
	state := &PipelineState{RawText: rawText}
	p := NewPipeline(&ExtractStep{}, &EnrichStep{Enricher: s.enricher})
	if err := p.Execute(ctx, state); err != nil {
		return nil, err
	}
	return state.Enriched, nil
}

// SaveEnrichedReceipt persists an enriched receipt for userID.
func (s *Service) SaveEnrichedReceipt(ctx context.Context, userID string, receipt *domain.EnrichedReceipt) (string, error) {
	return s.ledger.Save(ctx, userID, receipt)
}

// IngestImage runs recognition, extraction, enrichment and save in order.
// Nothing is persisted unless every earlier step succeeded.
func (s *Service) IngestImage(ctx context.Context, userID string, image []byte, mimeType string) (*IngestResult, error) {
	if userID == "" {
		return nil, domain.NewInputValidationError("userId", "is required")
	}
	if s.recognizer == nil {
		return nil, ErrRecognizerUnavailable
	}

	state := &PipelineState{UserID: userID, Image: image, MIMEType: mimeType}
	p := NewPipeline(
		&RecognizeStep{Recognizer: s.recognizer},
		&ExtractStep{},
		&EnrichStep{Enricher: s.enricher},
		&SaveStep{Ledger: s.ledger},
	)
	if err := p.Execute(ctx, state); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Image ingestion failed")
		return nil, err
	}

	return &IngestResult{ReceiptID: state.ReceiptID, Receipt: state.Enriched, RawText: state.RawText}, nil
}

// GetReceipt returns a receipt owned by userID with its expenses.
func (s *Service) GetReceipt(ctx context.Context, userID, receiptID string) (*domain.ReceiptDetail, error) {
	return s.ledger.GetReceipt(ctx, userID, receiptID)
}

// DeleteReceipt removes a receipt owned by userID and its expenses.
func (s *Service) DeleteReceipt(ctx context.Context, userID, receiptID string) (int, error) {
	return s.ledger.Delete(ctx, userID, receiptID)
}

// AddManualExpense stores an expense without a receipt.
func (s *Service) AddManualExpense(ctx context.Context, userID string, in domain.ManualExpense) (*domain.ExpenseRecord, error) {
	return s.ledger.AddManualExpense(ctx, userID, in)
}

// Aggregate computes the spending rollup for userID.
func (s *Service) Aggregate(ctx context.Context, userID string) (*analytics.Result, error) {
	return s.analytics.Aggregate(ctx, userID)
}

// Summarize returns a prose overview of userID's current month.
func (s *Service) Summarize(ctx context.Context, userID string) (string, error) {
	return s.analytics.Summarize(ctx, userID)
}

// ExportAll exports every expense of userID.
func (s *Service) ExportAll(ctx context.Context, userID string) (*export.Result, error) {
	return s.exporter.ExportAll(ctx, userID)
}
