package classify

import (
	"math/rand"

	"github.com/dativo-io/veil/internal/table"
)

const (
	// MaxSamples is the cap on example values sent to the classifier.
	MaxSamples = 10

	// sampleSeed fixes the sampling RNG so identical inputs always produce
	// identical sample sets. Classification runs are reproducible; only the
	// noise phase is randomized.
	sampleSeed = 42
)

// Sample draws up to n distinct non-null values from the column, rendered as
// strings. Distinct values are collected in first-appearance order, then a
// fixed-seed shuffle picks the subset, so the same column always yields the
// same samples across runs.
func Sample(col table.Column, n int) []string {
	if n <= 0 || n > MaxSamples {
		n = MaxSamples
	}

	seen := make(map[string]struct{})
	var distinct []string
	for _, cell := range col.Cells {
		if cell.IsNull() {
			continue
		}
		v := col.Render(cell)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
	}

	if len(distinct) <= n {
		return distinct
	}

	rng := rand.New(rand.NewSource(sampleSeed))
	picked := make([]string, 0, n)
	for _, idx := range rng.Perm(len(distinct))[:n] {
		picked = append(picked, distinct[idx])
	}
	return picked
}
