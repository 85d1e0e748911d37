package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Layouts accepted for receipt dates: the extractor's normalized form first,
// then ISO dates as oracles tend to echo them.
var receiptDateLayouts = []string{
	"01/02/2006",
	"2006-01-02",
	"2006/01/02",
}

// ParseReceiptDate converts a receipt date string into a calendar date.
func ParseReceiptDate(s string) (civil.Date, error) {
	for _, layout := range receiptDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("unrecognized receipt date %q", s)
}

// FormatReceiptDate renders d in the MM/DD/YYYY form used on stored records.
func FormatReceiptDate(d civil.Date) string {
	return fmt.Sprintf("%02d/%02d/%04d", int(d.Month), d.Day, d.Year)
}
