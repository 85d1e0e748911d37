package domain

import "strings"

// Category is a label from the closed expense taxonomy.
type Category string

// The fixed taxonomy: nine semantic categories plus Other.
const (
	CategoryFood          Category = "Food & Dining"
	CategoryHousing       Category = "Housing & Utilities"
	CategoryTransport     Category = "Transportation"
	CategoryHealth        Category = "Health & Wellness"
	CategoryEntertainment Category = "Entertainment & Leisure"
	CategoryShopping      Category = "Shopping & Retail"
	CategoryTravel        Category = "Travel & Vacations"
	CategoryEducation     Category = "Education & Learning"
	CategoryFinance       Category = "Finance & Insurance"
	CategoryOther         Category = "Other"
)

var taxonomy = []Category{
	CategoryFood,
	CategoryHousing,
	CategoryTransport,
	CategoryHealth,
	CategoryEntertainment,
	CategoryShopping,
	CategoryTravel,
	CategoryEducation,
	CategoryFinance,
	CategoryOther,
}

var taxonomyIndex = func() map[string]Category {
	m := make(map[string]Category, len(taxonomy))
	for _, c := range taxonomy {
		m[normalizeCategory(string(c))] = c
	}
	return m
}()

// Categories returns the fixed taxonomy in its canonical order.
func Categories() []Category {
	out := make([]Category, len(taxonomy))
	copy(out, taxonomy)
	return out
}

// CategoryNames returns the taxonomy as plain strings, for prompts and schemas.
func CategoryNames() []string {
	out := make([]string, len(taxonomy))
	for i, c := range taxonomy {
		out[i] = string(c)
	}
	return out
}

// LookupCategory matches name against the taxonomy ignoring case and
// surrounding whitespace, returning the canonical spelling.
func LookupCategory(name string) (Category, bool) {
	c, ok := taxonomyIndex[normalizeCategory(name)]
	return c, ok
}

// NormalizeCategory returns the canonical category for name, or Other when
// name is not part of the taxonomy.
func NormalizeCategory(name string) Category {
	if c, ok := LookupCategory(name); ok {
		return c
	}
	return CategoryOther
}

// Valid reports whether c is spelled exactly as one of the taxonomy values.
func (c Category) Valid() bool {
	canonical, ok := LookupCategory(string(c))
	return ok && canonical == c
}

// normalizeCategory normalizes a category name for comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
