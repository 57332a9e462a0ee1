// Package noise implements the Laplace mechanism that perturbs deferred
// numeric columns in phase 2. Sensitivity is fixed at 1, so the noise scale
// is 1/epsilon: smaller epsilon means stronger privacy and more noise.
//
// The default randomness source is seeded from crypto/rand entropy and is
// intentionally different on every run. Seeding it deterministically would
// make released values reproducible, defeating the privacy purpose; tests
// inject a seeded source via WithSource instead.
package noise

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/dativo-io/veil/internal/table"
)

const (
	// Sensitivity is the fixed Δ of the mechanism.
	Sensitivity = 1.0
	// DefaultEpsilon is used when the caller supplies no valid budget.
	DefaultEpsilon = 1.0
)

// Epsilon sanitizes a privacy budget: non-positive, NaN, or infinite values
// fall back to DefaultEpsilon.
func Epsilon(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return DefaultEpsilon
	}
	return v
}

// Mechanism draws Laplace noise at scale Sensitivity/epsilon.
type Mechanism struct {
	scale float64
	rng   *rand.Rand
}

// Option configures a Mechanism.
type Option func(*Mechanism)

// WithSource substitutes the randomness source, making the mechanism
// deterministic for testing.
func WithSource(src rand.Source) Option {
	return func(m *Mechanism) {
		m.rng = rand.New(src)
	}
}

// New creates a Mechanism for the given epsilon (sanitized via Epsilon).
func New(epsilon float64, opts ...Option) *Mechanism {
	m := &Mechanism{
		scale: Sensitivity / Epsilon(epsilon),
		rng:   rand.New(rand.NewSource(entropySeed())),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Scale returns the Laplace scale parameter b.
func (m *Mechanism) Scale() float64 { return m.scale }

// Laplace draws one sample from Laplace(0, b) via inverse transform:
// u ~ Uniform(-1/2, 1/2), x = -b * sgn(u) * ln(1 - 2|u|).
func (m *Mechanism) Laplace() float64 {
	u := m.rng.Float64() - 0.5
	if u < 0 {
		return m.scale * math.Log(1+2*u)
	}
	return -m.scale * math.Log(1-2*u)
}

// Apply perturbs a numeric column, returning a new column. Nulls and cells
// that are exactly zero pass through byte-identical: structural zeros and
// missing markers are not meaningful measurements and perturbing them would
// only distort the release. Every other cell becomes round(v + X, 2) with X
// drawn independently per cell.
func (m *Mechanism) Apply(col table.Column) table.Column {
	out := col.Clone()
	if col.DType != table.Numeric {
		return out
	}
	for i, c := range out.Cells {
		if c.IsNull() || c.Number() == 0 {
			continue
		}
		out.Cells[i] = table.Number(round2(c.Number() + m.Laplace()))
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// entropySeed derives a one-off seed from the OS entropy pool.
func entropySeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively unheard of; fall back to the
		// default math/rand behavior rather than aborting a release.
		return 1
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
