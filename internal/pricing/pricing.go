// Package pricing maps model identifiers to per-million-token rates and
// computes micro-precision USD costs.
package pricing

import "strings"

// Category is a canonical pricing bucket. Every model string resolves to
// exactly one category after normalization.
type Category string

// Known pricing categories.
const (
	CategoryOpus   Category = "opus"
	CategorySonnet Category = "sonnet"
	CategoryHaiku  Category = "haiku"
)

// SyntheticModel is the sentinel emitted for internally generated turns.
// It costs zero regardless of token counts.
const SyntheticModel = "<synthetic>"

// Rates holds per-million-token prices for one category.
type Rates struct {
	InputPerMTok       float64
	OutputPerMTok      float64
	CacheCreatePerMTok float64
	CacheReadPerMTok   float64
}

// withCacheDefaults fills unset cache rates from the input rate:
// cache creation at 1.25x input, cache read at 0.1x input.
func (r Rates) withCacheDefaults() Rates {
	if r.CacheCreatePerMTok == 0 {
		r.CacheCreatePerMTok = r.InputPerMTok * 1.25
	}
	if r.CacheReadPerMTok == 0 {
		r.CacheReadPerMTok = r.InputPerMTok * 0.1
	}
	return r
}

// categoryRates is the fixed pricing table.
var categoryRates = map[Category]Rates{
	CategoryOpus:   Rates{InputPerMTok: 15.00, OutputPerMTok: 75.00}.withCacheDefaults(),
	CategorySonnet: Rates{InputPerMTok: 3.00, OutputPerMTok: 15.00}.withCacheDefaults(),
	CategoryHaiku:  Rates{InputPerMTok: 0.80, OutputPerMTok: 4.00}.withCacheDefaults(),
}

// knownModels maps normalized full identifiers to categories.
var knownModels = map[string]Category{
	"claude-3-opus":     CategoryOpus,
	"claude-3-sonnet":   CategorySonnet,
	"claude-3-haiku":    CategoryHaiku,
	"claude-3-5-sonnet": CategorySonnet,
	"claude-3-5-haiku":  CategoryHaiku,
	"claude-3-7-sonnet": CategorySonnet,
	"claude-opus":       CategoryOpus,
	"claude-sonnet":     CategorySonnet,
	"claude-haiku":      CategoryHaiku,
}

// RatesFor returns the rates for a category.
func RatesFor(cat Category) Rates {
	return categoryRates[cat]
}

// Normalize canonicalizes a raw model string: lowercase, trim, strip a
// trailing -YYYYMMDD date segment, then strip a trailing -N-M version pair.
// e.g. "Claude-Sonnet-4-5-20250929" -> "claude-sonnet"
func Normalize(raw string) string {
	m := strings.ToLower(strings.TrimSpace(raw))

	parts := strings.Split(m, "-")
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if isAllDigits(last) && len(last) >= 8 {
			parts = parts[:len(parts)-1]
		}
	}
	if len(parts) >= 3 {
		a, b := parts[len(parts)-2], parts[len(parts)-1]
		if isVersionDigits(a) && isVersionDigits(b) {
			parts = parts[:len(parts)-2]
		}
	}
	return strings.Join(parts, "-")
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

func isVersionDigits(s string) bool {
	return isAllDigits(s) && len(s) < 8
}

// Categorize resolves a raw model string to its pricing category.
// known reports whether the model matched the lookup table or an opus/
// sonnet/haiku substring; when false the returned category is the sonnet
// fallback and strict callers should treat the model as unknown.
func Categorize(raw string) (cat Category, known bool) {
	m := Normalize(raw)
	if c, ok := knownModels[m]; ok {
		return c, true
	}
	switch {
	case strings.Contains(m, "opus"):
		return CategoryOpus, true
	case strings.Contains(m, "haiku"):
		return CategoryHaiku, true
	case strings.Contains(m, "sonnet"):
		return CategorySonnet, true
	}
	return CategorySonnet, false
}
