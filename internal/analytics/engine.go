package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-ledger/internal/domain"
	"github.com/dvloznov/receipt-ledger/internal/enrich"
	"github.com/dvloznov/receipt-ledger/internal/store"
)

// Engine reads a user's expenses at query time and rolls them up.
type Engine struct {
	store      store.Store
	summarizer enrich.Summarizer
	loc        *time.Location
	log        zerolog.Logger
	now        func() time.Time
}

// NewEngine creates an engine evaluating month windows in loc. summarizer may
// be nil, in which case Summarize is unavailable.
func NewEngine(s store.Store, summarizer enrich.Summarizer, loc *time.Location, log zerolog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{store: s, summarizer: summarizer, loc: loc, log: log, now: time.Now}
}

// WithClock replaces the evaluation clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Aggregate computes category totals, the merchant ranking and the
// month-over-month comparison for userID.
func (e *Engine) Aggregate(ctx context.Context, userID string) (*Result, error) {
	if userID == "" {
		return nil, domain.NewInputValidationError("userId", "is required")
	}

	records, err := e.store.ListExpensesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Aggregate: listing expenses: %w", err)
	}

	result := Compute(records, e.now().In(e.loc))
	e.log.Debug().
		Str("user_id", userID).
		Int("count", len(records)).
		Int("categories", len(result.TotalsByCategory)).
		Msg("Aggregation computed")
	return &result, nil
}

// summaryExpense is the slice of an expense the summarizer sees.
type summaryExpense struct {
	ItemName string  `json:"itemName"`
	Amount   float64 `json:"amount"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category"`
	Merchant string  `json:"merchant"`
	Date     string  `json:"date"`
}

// Summarize asks the summarizer for a prose overview of the current month.
func (e *Engine) Summarize(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", domain.NewInputValidationError("userId", "is required")
	}
	if e.summarizer == nil {
		return "", fmt.Errorf("Summarize: no summarizer configured")
	}

	records, err := e.store.ListExpensesByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("Summarize: listing expenses: %w", err)
	}

	now := e.now().In(e.loc)
	curStart, _ := MonthWindow(now)
	nextStart := curStart.AddDate(0, 1, 0)

	var month []summaryExpense
	for _, r := range records {
		at := r.CreatedAt.In(e.loc)
		if at.Before(curStart) || !at.Before(nextStart) {
			continue
		}
		qty := 1
		if r.Quantity != nil {
			qty = *r.Quantity
		}
		month = append(month, summaryExpense{
			ItemName: r.ItemName,
			Amount:   r.Amount,
			Quantity: qty,
			Category: r.Category,
			Merchant: r.Merchant,
			Date:     r.Date,
		})
	}
	if len(month) == 0 {
		return "", domain.ErrNoData
	}

	payload, err := json.MarshalIndent(month, "", "  ")
	if err != nil {
		return "", fmt.Errorf("Summarize: encoding expenses: %w", err)
	}

	text, err := e.summarizer.Summarize(ctx, enrich.BuildSummaryPrompt(string(payload)))
	if err != nil {
		e.log.Error().Err(err).Str("user_id", userID).Msg("Summary call failed")
		return "", &domain.EnrichmentFailure{Kind: domain.FailureNoResponse, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &domain.EnrichmentFailure{Kind: domain.FailureNoResponse}
	}
	return text, nil
}
