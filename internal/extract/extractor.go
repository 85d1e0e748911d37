// Package extract recovers best-effort receipt fields from raw recognized text.
// Everything here is pure: no I/O, no errors, any string is valid input.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dvloznov/receipt-ledger/internal/domain"
)

// UnknownStore is used when the text has no lines at all.
const UnknownStore = "Unknown"

// amountToken matches a decimal amount, either with comma thousands
// separators or as a plain run of digits.
const amountToken = `(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`

var (
	storeLine = regexp.MustCompile(`^[A-Z\s]{3,}$`)

	// Tried in order; the first pattern that matches anywhere wins.
	totalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)total[ \t]*[:\-]?[ \t]*\$?[ \t]?` + amountToken),
		regexp.MustCompile(`(?i)amount[ \t]*[:\-]?[ \t]*\$?[ \t]?` + amountToken),
		regexp.MustCompile(`(?i)\$?[ \t]?` + amountToken + `[ \t]+TOTAL`),
	}

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})\b`),
		regexp.MustCompile(`\b(\d{4}[/.\-]\d{2}[/.\-]\d{2})\b`),
	}

	itemLine     = regexp.MustCompile(`^(.+?)\s+(\$?\d{1,3}(?:,\d{3})*(?:\.\d{2})?)$`)
	nonPriceChar = regexp.MustCompile(`[^0-9.]`)
	dateSep      = strings.NewReplacer(".", "/", "-", "/")
)

// ParseReceiptText extracts store, total, date and priced line items from text.
func ParseReceiptText(text string) domain.ParsedReceipt {
	lines := splitLines(text)

	return domain.ParsedReceipt{
		Store: findStore(lines),
		Total: findTotal(text),
		Date:  findDate(text),
		Items: findItems(lines),
	}
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// findStore picks the first mostly-uppercase line that is not a total line,
// falling back to the first line.
func findStore(lines []string) string {
	for _, l := range lines {
		if storeLine.MatchString(l) && len(l) > 3 && !strings.Contains(strings.ToLower(l), "total") {
			return l
		}
	}
	if len(lines) > 0 {
		return lines[0]
	}
	return UnknownStore
}

func findTotal(text string) *float64 {
	for _, re := range totalPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return nil
		}
		return &v
	}
	return nil
}

func findDate(text string) *string {
	for _, re := range datePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return NormalizeDate(m[1])
		}
	}
	return nil
}

// NormalizeDate rewrites a matched date as MM/DD/YYYY. A four digit first
// part is read year-first; otherwise month-first with two digit years in
// the 2000s. Any zero or unparsable component yields nil.
func NormalizeDate(raw string) *string {
	parts := strings.Split(dateSep.Replace(raw), "/")
	if len(parts) != 3 {
		return nil
	}

	var ys, ms, ds string
	if len(parts[0]) == 4 {
		ys, ms, ds = parts[0], parts[1], parts[2]
	} else {
		ms, ds, ys = parts[0], parts[1], parts[2]
		if len(ys) == 2 {
			ys = "20" + ys
		}
	}

	month, err1 := strconv.Atoi(ms)
	day, err2 := strconv.Atoi(ds)
	year, err3 := strconv.Atoi(ys)
	if err1 != nil || err2 != nil || err3 != nil || month == 0 || day == 0 || year == 0 {
		return nil
	}

	s := fmt.Sprintf("%02d/%02d/%d", month, day, year)
	return &s
}

// findItems keeps every line shaped like "description  price". Lines that do
// not fit are skipped silently.
func findItems(lines []string) []domain.ParsedLineItem {
	items := make([]domain.ParsedLineItem, 0)
	for _, l := range lines {
		m := itemLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		price, err := strconv.ParseFloat(nonPriceChar.ReplaceAllString(m[2], ""), 64)
		if err != nil {
			continue
		}
		items = append(items, domain.ParsedLineItem{
			Name:  strings.TrimSpace(m[1]),
			Price: price,
		})
	}
	return items
}
