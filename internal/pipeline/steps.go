package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/enrich"
	"github.com/dvloznov/receipt-ledger/internal/extract"
	"github.com/dvloznov/receipt-ledger/internal/ledger"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	UserID    string
	Image     []byte
	MIMEType  string
	RawText   string
	Parsed    domain.ParsedReceipt
	Enriched  *domain.EnrichedReceipt
	ReceiptID string
}

// Step 1: RecognizeStep turns the receipt image into raw text.
type RecognizeStep struct {
	Recognizer enrich.TextRecognizer
}

func (s *RecognizeStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Image) == 0 {
		return domain.NewInputValidationError("image", "is required")
	}
	text, err := s.Recognizer.RecognizeText(ctx, state.Image, state.MIMEType)
	if err != nil {
		return fmt.Errorf("recognize text: %w", err)
	}
	state.RawText = text
	return nil
}

// Step 2: ExtractStep parses the raw text into receipt fields.
type ExtractStep struct{}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Parsed = extract.ParseReceiptText(state.RawText)
	return nil
}

// Step 3: EnrichStep classifies and validates the parsed fields.
type EnrichStep struct {
	Enricher *enrich.Enricher
}

func (s *EnrichStep) Execute(ctx context.Context, state *PipelineState) error {
	enriched, err := s.Enricher.Enrich(ctx, state.Parsed)
	if err != nil {
		return err
	}
	state.Enriched = enriched
	return nil
}

// Step 4: SaveStep persists the enriched receipt for the user.
type SaveStep struct {
	Ledger *ledger.Coordinator
}

func (s *SaveStep) Execute(ctx context.Context, state *PipelineState) error {
	receiptID, err := s.Ledger.Save(ctx, state.UserID, state.Enriched)
	if err != nil {
		return err
	}
	state.ReceiptID = receiptID
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
