package enrich

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/dvloznov/receipt-ledger/internal/domain"
)

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// oracleReceipt mirrors the declared response shape. Pointers tell a missing
// field apart from a zero value.
type oracleReceipt struct {
	Store *string      `json:"store"`
	Date  *string      `json:"date"`
	Total *float64     `json:"total"`
	Items []oracleItem `json:"items"`
}

type oracleItem struct {
	Name     *string  `json:"name"`
	Price    *float64 `json:"price"`
	Quantity *float64 `json:"quantity"`
	Category *string  `json:"category"`
}

// ValidateResponse turns a raw oracle payload into an EnrichedReceipt.
//
// Structural problems fail with EnrichmentFailure(invalid_response). Category
// values outside the taxonomy are rewritten to Other and never fail.
// Missing store, date or total fall back to the parsed input.
func ValidateResponse(raw string, parsed domain.ParsedReceipt) (*domain.EnrichedReceipt, error) {
	clean := CleanModelJSON(raw)
	if clean == "" {
		return nil, &domain.EnrichmentFailure{Kind: domain.FailureNoResponse}
	}

	var resp oracleReceipt
	if err := json.Unmarshal([]byte(clean), &resp); err != nil {
		return nil, invalid(err)
	}
	if len(resp.Items) == 0 {
		return nil, invalid(errors.New("response has no items"))
	}

	out := &domain.EnrichedReceipt{
		Store: firstNonEmpty(resp.Store, parsed.Store),
		Date:  firstNonEmpty(resp.Date, derefString(parsed.Date)),
		Items: make([]domain.EnrichedLineItem, 0, len(resp.Items)),
	}

	for _, it := range resp.Items {
		if it.Name == nil || strings.TrimSpace(*it.Name) == "" {
			return nil, invalid(errors.New("item without a name"))
		}
		if it.Price == nil || *it.Price < 0 || math.IsNaN(*it.Price) {
			return nil, invalid(errors.New("item " + *it.Name + " has no valid price"))
		}

		category := domain.CategoryOther
		if it.Category != nil {
			category = domain.NormalizeCategory(*it.Category)
		}

		out.Items = append(out.Items, domain.EnrichedLineItem{
			Name:     strings.TrimSpace(*it.Name),
			Price:    *it.Price,
			Quantity: normalizeQuantity(it.Quantity),
			Category: category,
		})
	}

	switch {
	case resp.Total != nil:
		out.Total = *resp.Total
	case parsed.Total != nil:
		out.Total = *parsed.Total
	default:
		for _, it := range out.Items {
			out.Total += it.Price * float64(it.Quantity)
		}
	}

	return out, nil
}

// CleanModelJSON strips Markdown fences, surrounding prose and trailing commas
// from a model reply so that only the JSON object remains.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimPrefix(s, "```json"), "```")
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the outermost object when the model added prose around it.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}

	return trailingComma.ReplaceAllString(s, "$1")
}

// normalizeQuantity defaults a missing or non-positive quantity to 1 and
// rounds fractional quantities to the nearest whole unit.
func normalizeQuantity(q *float64) int {
	if q == nil || math.IsNaN(*q) {
		return 1
	}
	n := int(math.Round(*q))
	if n < 1 {
		return 1
	}
	return n
}

func invalid(err error) error {
	return &domain.EnrichmentFailure{Kind: domain.FailureInvalidResponse, Err: err}
}

func firstNonEmpty(v *string, fallback string) string {
	if v != nil && strings.TrimSpace(*v) != "" {
		return strings.TrimSpace(*v)
	}
	return fallback
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
