package enrich

import (
	"context"

	"github.com/dvloznov/receipt-ledger/internal/domain"
)

// ClassifyRequest is what the classification oracle sees: the parsed fields
// and the closed taxonomy it must choose categories from.
type ClassifyRequest struct {
	Store      string
	Date       *string
	Total      *float64
	Items      []domain.ParsedLineItem
	Categories []string
}

// Classifier completes and categorizes parsed receipt fields.
// This interface enables mocking and testing of the oracle call.
type Classifier interface {
	// Classify returns the raw payload produced by the oracle. An empty
	// string means the oracle produced no content.
	Classify(ctx context.Context, req ClassifyRequest) (string, error)

	// Model names the model behind the classifier, recorded as parsedBy.
	Model() string
}

// TextRecognizer turns a receipt image into raw recognized text.
type TextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Summarizer turns a prompt into free-form prose.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}
