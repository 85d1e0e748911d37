package domain

// ParsedLineItem is one priced line recovered from recognized receipt text.
type ParsedLineItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// ParsedReceipt is the best-effort result of heuristic field extraction.
// Total and Date are nil when no pattern matched.
type ParsedReceipt struct {
	Store string           `json:"store"`
	Total *float64         `json:"total"`
	Date  *string          `json:"date"`
	Items []ParsedLineItem `json:"items"`
}

// EnrichedLineItem is a line item completed by the classification oracle
// and validated against the fixed taxonomy.
type EnrichedLineItem struct {
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Quantity int      `json:"quantity"`
	Category Category `json:"category"`
}

// EnrichedReceipt is the validated receipt that may be handed to persistence.
type EnrichedReceipt struct {
	Store string             `json:"store"`
	Date  string             `json:"date"`
	Total float64            `json:"total"`
	Items []EnrichedLineItem `json:"items"`
}
