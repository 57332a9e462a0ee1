// Package classify defines the column classifier gateway: an external
// capability that maps a column name plus a handful of sample values to a
// sensitivity classification. Two implementations exist, an LLM-backed
// gateway and an offline rule-based one. Everything the gateway returns is
// coerced into a closed category set at this boundary, so malformed or
// unknown output can never crash the pipeline.
package classify

import (
	"context"
	"strings"
)

// Category is the closed set of column classifications.
type Category string

const (
	CategoryIdentifier      Category = "identifier"
	CategoryQuasiIdentifier Category = "quasi_identifier"
	CategoryFinancial       Category = "financial"
	CategoryDemographic     Category = "demographic"
	CategoryHealth          Category = "health"
	CategoryReligion        Category = "religion"
	CategoryPolitical       Category = "political"
	CategoryText            Category = "text"
)

// ParseCategory normalizes a free-form category string into the closed set.
// Anything unrecognized coerces to CategoryText.
func ParseCategory(s string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryIdentifier:
		return CategoryIdentifier
	case CategoryQuasiIdentifier:
		return CategoryQuasiIdentifier
	case CategoryFinancial:
		return CategoryFinancial
	case CategoryDemographic:
		return CategoryDemographic
	case CategoryHealth:
		return CategoryHealth
	case CategoryReligion:
		return CategoryReligion
	case CategoryPolitical:
		return CategoryPolitical
	default:
		return CategoryText
	}
}

// Record is one column's classification.
// Invariant: Sensitive == false exactly when Category == text.
type Record struct {
	Column    string   `json:"column"`
	Category  Category `json:"category"`
	Sensitive bool     `json:"sensitive"`
	Rationale string   `json:"rationale"`
}

// Normalize enforces the record invariant: a text category is never
// sensitive, and a non-sensitive record is always text.
func (r Record) Normalize() Record {
	if r.Category == CategoryText {
		r.Sensitive = false
	} else if !r.Sensitive {
		r.Category = CategoryText
	}
	return r
}

// FallbackRationale marks records produced when the gateway was unusable.
const FallbackRationale = "unavailable"

// Fallback is the record a failed or malformed classification resolves to:
// the column is treated as plain non-sensitive text (fail-open).
func Fallback(column string) Record {
	return Record{
		Column:    column,
		Category:  CategoryText,
		Sensitive: false,
		Rationale: FallbackRationale,
	}
}

// Gateway classifies a column given its name and up to MaxSamples example
// values. Implementations return an error on transport or parse failures;
// resolution of that error (fallback vs fail-closed drop) is the caller's
// policy, not the gateway's.
type Gateway interface {
	Classify(ctx context.Context, column string, samples []string) (Record, error)
}
