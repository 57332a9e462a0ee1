// Package policy maps a column's classification to exactly one sanitization
// action. Decide is pure and total: every (category, sensitive, dtype)
// combination resolves deterministically, and any sensitive category without
// an explicit rule falls back to removal.
package policy

import (
	"github.com/dativo-io/veil/internal/classify"
	"github.com/dativo-io/veil/internal/table"
)

// Action is the sanitization decision for one column.
type Action string

const (
	// Drop removes the column entirely.
	Drop Action = "drop"
	// Mask rewrites values in place; numeric columns come back textual.
	Mask Action = "mask"
	// DeferNoise leaves values untouched in phase 1 and marks the column
	// for Laplace noise in phase 2. Only meaningful on numeric scales.
	DeferNoise Action = "defer_noise"
	// Keep leaves the column untouched.
	Keep Action = "keep"
)

// Decide returns the action for a classified column. Non-sensitive columns
// are always kept. Identifiers are always dropped. Special-category data
// (financial, demographic, health, religion, political) defers to noise when
// numeric and is dropped otherwise. Quasi-identifiers are masked. Any other
// sensitive classification is dropped: default-safe removal.
func Decide(category classify.Category, sensitive bool, dtype table.DType) Action {
	if !sensitive {
		return Keep
	}

	switch category {
	case classify.CategoryIdentifier:
		return Drop
	case classify.CategoryFinancial,
		classify.CategoryDemographic,
		classify.CategoryHealth,
		classify.CategoryReligion,
		classify.CategoryPolitical:
		if dtype == table.Numeric {
			return DeferNoise
		}
		return Drop
	case classify.CategoryQuasiIdentifier:
		return Mask
	default:
		return Drop
	}
}
