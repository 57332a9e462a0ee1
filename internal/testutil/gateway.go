// Package testutil provides deterministic test doubles for the classifier
// gateway and an httptest-backed OpenAI-compatible mock server.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/dativo-io/veil/internal/classify"
)

// ErrScriptedFailure is returned by ScriptedGateway for columns scripted to fail.
var ErrScriptedFailure = errors.New("scripted classification failure")

// ScriptedGateway returns pre-scripted records keyed by column name. Columns
// without a script resolve to non-sensitive text. Columns listed in Fail
// return an error, exercising the fallback/fail-closed paths. Safe for
// concurrent use; it also records which columns were classified.
type ScriptedGateway struct {
	Records map[string]classify.Record
	Fail    map[string]bool

	mu    sync.Mutex
	calls []string
}

// NewScriptedGateway builds a gateway from (column → record) scripts.
func NewScriptedGateway(records map[string]classify.Record) *ScriptedGateway {
	return &ScriptedGateway{Records: records, Fail: map[string]bool{}}
}

// Classify implements classify.Gateway.
func (g *ScriptedGateway) Classify(ctx context.Context, column string, samples []string) (classify.Record, error) {
	g.mu.Lock()
	g.calls = append(g.calls, column)
	g.mu.Unlock()

	if g.Fail[column] {
		return classify.Record{}, ErrScriptedFailure
	}
	if rec, ok := g.Records[column]; ok {
		rec.Column = column
		return rec.Normalize(), nil
	}
	return classify.Record{
		Column:    column,
		Category:  classify.CategoryText,
		Sensitive: false,
		Rationale: "unscripted column",
	}, nil
}

// Calls returns the column names classified so far, in completion order.
func (g *ScriptedGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

// Sensitive is a shorthand for a sensitive record of the given category.
func Sensitive(category classify.Category, rationale string) classify.Record {
	return classify.Record{Category: category, Sensitive: true, Rationale: rationale}
}
