// Package enrich asks the classification oracle to complete parsed receipt
// fields and validates what comes back before anything may be persisted.
package enrich

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-ledger/internal/domain"
)

// Enricher runs the oracle call and validates its answer.
type Enricher struct {
	classifier Classifier
	log        zerolog.Logger
}

// NewEnricher creates an Enricher backed by the given classifier.
func NewEnricher(classifier Classifier, log zerolog.Logger) *Enricher {
	return &Enricher{
		classifier: classifier,
		log:        log,
	}
}

// Model names the model used for classification.
func (e *Enricher) Model() string {
	return e.classifier.Model()
}

// Enrich classifies the parsed receipt. A receipt without items is rejected
// before the oracle is called.
func (e *Enricher) Enrich(ctx context.Context, parsed domain.ParsedReceipt) (*domain.EnrichedReceipt, error) {
	if len(parsed.Items) == 0 {
		return nil, domain.NewInputValidationError("items", "at least one line item is required")
	}

	req := ClassifyRequest{
		Store:      parsed.Store,
		Date:       parsed.Date,
		Total:      parsed.Total,
		Items:      parsed.Items,
		Categories: domain.CategoryNames(),
	}

	raw, err := e.classifier.Classify(ctx, req)
	if err != nil {
		e.log.Error().Err(err).Str("model", e.classifier.Model()).Msg("Classification call failed")
		return nil, &domain.EnrichmentFailure{Kind: domain.FailureNoResponse, Err: err}
	}

	enriched, err := ValidateResponse(raw, parsed)
	if err != nil {
		e.log.Warn().Err(err).Str("raw_response", raw).Msg("Rejected classification response")
		return nil, err
	}

	e.log.Info().
		Str("store", enriched.Store).
		Int("items", len(enriched.Items)).
		Msg("Receipt enriched")

	return enriched, nil
}
