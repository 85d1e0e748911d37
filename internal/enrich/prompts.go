package enrich

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the oracle as a receipt classifier returning raw JSON.
const SystemPrompt = "You are a smart financial assistant that cleans up and categorizes receipt line items. " +
	"Respond only with raw, valid JSON."

// BuildClassifyPrompt renders the user prompt for a classification request.
func BuildClassifyPrompt(req ClassifyRequest) string {
	store := req.Store
	date := "unknown"
	if req.Date != nil {
		date = *req.Date
	}
	total := "unknown"
	if req.Total != nil {
		total = fmt.Sprintf("$%.2f", *req.Total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A user uploaded a receipt from %q dated %q with a total of %s.\n\n", store, date, total)
	b.WriteString("Here are the line items:\n\n")
	for _, item := range req.Items {
		fmt.Fprintf(&b, "- %s: $%.2f\n", item.Name, item.Price)
	}

	b.WriteString("\nFor each item, return:\n")
	b.WriteString("- Cleaned item name\n")
	b.WriteString("- Quantity (if possible to infer, otherwise default to 1)\n")
	b.WriteString("- Price (per unit)\n")
	b.WriteString("- Category\n\n")

	b.WriteString(buildCategoriesPrompt(req.Categories))

	b.WriteString("\nRespond only with raw, valid JSON. Do not include any text, markdown, or explanations.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n\n")
	b.WriteString("Use the following format:\n\n")
	fmt.Fprintf(&b, `{
  "store": %q,
  "date": %q,
  "total": 0.00,
  "items": [
    {
      "name": "...",
      "price": 0.00,
      "quantity": 1,
      "category": "..."
    }
  ]
}
`, store, date)

	return b.String()
}

// buildCategoriesPrompt lists the allowed categories and the assignment rules.
func buildCategoriesPrompt(categories []string) string {
	var b strings.Builder
	b.WriteString("Use ONLY the following categories:\n")
	for _, c := range categories {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\nCATEGORY ASSIGNMENT RULES:\n")
	b.WriteString("1. Category must be EXACTLY one of the category names shown above (case-sensitive).\n")
	b.WriteString("2. If you are unsure, use category \"Other\".\n")
	return b.String()
}

// BuildSummaryPrompt renders the spending insight prompt for a JSON list of expenses.
func BuildSummaryPrompt(expensesJSON string) string {
	return "You are a financial assistant. Summarize the user's spending for this month.\n" +
		"Highlight total spent, top categories, and any anomalies.\n\n" +
		"Expenses:\n" + expensesJSON + "\n"
}
