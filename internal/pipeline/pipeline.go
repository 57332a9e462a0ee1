// Package pipeline drives the two-phase sanitization protocol.
//
// Phase 1 (Anonymize) classifies every column with at least one non-null
// value, maps each classification to a policy action, and applies the
// actions to a working copy of the table: drop, mask, defer-for-noise, or
// keep. Phase 2 (ApplyNoise) takes the intermediate table plus the deferred
// column list and injects Laplace noise under a privacy budget.
//
// Classification is fanned out over a bounded worker pool; results are keyed
// by column name so completion order is irrelevant. Table mutation happens
// strictly after all classifications are collected, sequentially and in
// original column order, on a copy the orchestrator exclusively owns.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/veil/internal/classify"
	"github.com/dativo-io/veil/internal/mask"
	"github.com/dativo-io/veil/internal/noise"
	veilotel "github.com/dativo-io/veil/internal/otel"
	"github.com/dativo-io/veil/internal/policy"
	"github.com/dativo-io/veil/internal/table"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/pipeline")

// DefaultWorkers bounds the classification fan-out.
const DefaultWorkers = 4

// ColumnReport is the audit record for one classified column: what the
// gateway said and what the policy engine did about it.
type ColumnReport struct {
	Record classify.Record `json:"record"`
	Action policy.Action   `json:"action"`
}

// Result is the phase-1 output: the intermediate table, the deferred column
// list handed to phase 2, and the per-column audit trail.
type Result struct {
	Table    *table.Table
	Deferred []string
	Reports  []ColumnReport
}

// Orchestrator owns the table during each phase and coordinates gateway,
// policy engine, masking transformer, and noise mechanism.
type Orchestrator struct {
	gw         classify.Gateway
	workers    int
	sampleSize int
	failClosed bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the classification worker pool size.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithSampleSize caps how many sample values are sent per column.
func WithSampleSize(n int) Option {
	return func(o *Orchestrator) { o.sampleSize = n }
}

// WithFailClosed switches classification-failure handling from the fail-open
// default (treat the column as non-sensitive text and keep it) to dropping
// the column. Fail-open matches the historical behavior but risks keeping
// truly sensitive data when the gateway is unreliable.
func WithFailClosed(on bool) Option {
	return func(o *Orchestrator) { o.failClosed = on }
}

// New creates an Orchestrator around a classifier gateway.
func New(gw classify.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gw:         gw,
		workers:    DefaultWorkers,
		sampleSize: classify.MaxSamples,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// classification is one worker's output, keyed by column name.
type classification struct {
	column string
	record classify.Record
	failed bool
}

// Anonymize runs phase 1 on a working copy of t. The input table is never
// mutated. Columns with zero non-null values are skipped entirely: they are
// left as-is and never reach the classifier.
func (o *Orchestrator) Anonymize(ctx context.Context, t *table.Table) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.anonymize")
	defer span.End()

	if t == nil {
		return nil, fmt.Errorf("anonymize: %w", table.ErrSourceMissing)
	}

	work := t.Clone()
	results := o.classifyAll(ctx, work)

	res := &Result{Table: work}
	for _, name := range t.Names() {
		cls, ok := results[name]
		if !ok {
			log.Debug().Str("column", name).Msg("column empty, skipping classification")
			continue
		}

		rec := cls.record
		action := policy.Decide(rec.Category, rec.Sensitive, columnDType(work, name))
		if cls.failed && o.failClosed {
			action = policy.Drop
		}

		if err := o.apply(work, name, action); err != nil {
			return nil, err
		}
		if action == policy.DeferNoise {
			res.Deferred = append(res.Deferred, name)
		}
		res.Reports = append(res.Reports, ColumnReport{Record: rec, Action: action})

		log.Info().
			Str("column", name).
			Str("category", string(rec.Category)).
			Bool("sensitive", rec.Sensitive).
			Str("action", string(action)).
			Func(veilotel.LogTraceFields(ctx)).
			Msg("column classified")
	}

	span.SetAttributes(
		attribute.Int("pipeline.columns_in", len(t.Names())),
		attribute.Int("pipeline.columns_out", len(work.Names())),
		attribute.Int("pipeline.deferred", len(res.Deferred)),
	)
	return res, nil
}

// classifyAll fans classification out over the worker pool. Workers share no
// mutable state; each sends its result over a channel and the consumer keys
// them by column name. Every classification failure resolves to the fallback
// record here; fail-closed handling happens at action time.
func (o *Orchestrator) classifyAll(ctx context.Context, t *table.Table) map[string]classification {
	type job struct {
		name    string
		samples []string
	}

	var jobs []job
	for _, col := range t.Columns() {
		if col.NonNull() == 0 {
			continue
		}
		jobs = append(jobs, job{name: col.Name, samples: classify.Sample(col, o.sampleSize)})
	}

	jobCh := make(chan job)
	resCh := make(chan classification, len(jobs))

	var wg sync.WaitGroup
	workers := o.workers
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				rec, err := o.gw.Classify(ctx, j.name, j.samples)
				if err != nil {
					log.Warn().
						Str("column", j.name).
						Err(err).
						Msg("classification failed, using fallback record")
					resCh <- classification{column: j.name, record: classify.Fallback(j.name), failed: true}
					continue
				}
				resCh <- classification{column: j.name, record: rec.Normalize()}
			}
		}()
	}

	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()
	close(resCh)

	results := make(map[string]classification, len(jobs))
	for c := range resCh {
		results[c.column] = c
	}
	return results
}

// apply executes one action on the working table. Mutation is sequential:
// this runs only after the classification fan-in completed.
func (o *Orchestrator) apply(work *table.Table, name string, action policy.Action) error {
	switch action {
	case policy.Drop:
		work.Drop(name)
	case policy.Mask:
		col, ok := work.Column(name)
		if !ok {
			return fmt.Errorf("masking %q: column vanished from working table", name)
		}
		if err := work.SetColumn(mask.Column(col)); err != nil {
			return fmt.Errorf("masking %q: %w", name, err)
		}
	case policy.DeferNoise, policy.Keep:
		// Values stay untouched in phase 1.
	}
	return nil
}

// ApplyNoise runs phase 2: Laplace noise over each deferred column still
// present in t, at the given epsilon (invalid budgets fall back to the
// default). A listed column absent from the table is skipped with a warning,
// never a fatal error. The input table is not mutated.
func (o *Orchestrator) ApplyNoise(ctx context.Context, t *table.Table, deferred []string, epsilon float64, opts ...noise.Option) (*table.Table, error) {
	ctx, span := tracer.Start(ctx, "pipeline.apply_noise")
	defer span.End()

	if t == nil {
		return nil, fmt.Errorf("apply noise: intermediate table missing")
	}

	mech := noise.New(epsilon, opts...)
	out := t.Clone()
	noised := 0

	for _, name := range deferred {
		col, ok := out.Column(name)
		if !ok {
			log.Warn().
				Str("column", name).
				Func(veilotel.LogTraceFields(ctx)).
				Msg("deferred column not present in table, skipping")
			continue
		}
		if col.DType != table.Numeric {
			log.Warn().
				Str("column", name).
				Str("dtype", string(col.DType)).
				Msg("deferred column is not numeric, skipping")
			continue
		}
		if err := out.SetColumn(mech.Apply(col)); err != nil {
			return nil, fmt.Errorf("noising %q: %w", name, err)
		}
		noised++
		log.Info().
			Str("column", name).
			Float64("epsilon", noise.Epsilon(epsilon)).
			Msg("laplace noise applied")
	}

	span.SetAttributes(
		attribute.Int("pipeline.deferred", len(deferred)),
		attribute.Int("pipeline.noised", noised),
	)
	return out, nil
}

func columnDType(t *table.Table, name string) table.DType {
	if col, ok := t.Column(name); ok {
		return col.DType
	}
	return ""
}
