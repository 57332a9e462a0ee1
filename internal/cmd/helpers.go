package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/artifact"
	"github.com/dativo-io/veil/internal/classify"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/noise"
	"github.com/dativo-io/veil/internal/pipeline"
	"github.com/dativo-io/veil/internal/table"
)

// buildGateway selects the classifier backend from config.
func buildGateway(cfg *config.Config) (classify.Gateway, error) {
	switch cfg.Classifier {
	case config.ClassifierRules:
		return classify.NewRuleGateway(cfg.RulesFile)
	default:
		opts := []classify.LLMOption{classify.WithRateLimit(cfg.RPM)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, classify.WithBaseURL(cfg.OpenAIKey, cfg.OpenAIBaseURL))
		}
		return classify.NewLLMGateway(cfg.OpenAIKey, cfg.Model, opts...), nil
	}
}

// buildOrchestrator wires the pipeline from config.
func buildOrchestrator(cfg *config.Config) (*pipeline.Orchestrator, error) {
	gw, err := buildGateway(cfg)
	if err != nil {
		return nil, fmt.Errorf("building classifier gateway: %w", err)
	}
	return pipeline.New(gw,
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithSampleSize(cfg.SampleSize),
		pipeline.WithFailClosed(cfg.FailMode == config.FailClosed),
	), nil
}

// openRunStore opens the artifact store under the data directory.
func openRunStore(cfg *config.Config) (*artifact.Store, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return artifact.NewStore(cfg.RunsDBPath())
}

// parseEpsilon resolves the --epsilon flag: empty or non-numeric input falls
// back to the configured default, never an error.
func parseEpsilon(raw string, fallback float64) float64 {
	if raw == "" {
		return noise.Epsilon(fallback)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Warn().Str("epsilon", raw).Float64("default", noise.Epsilon(fallback)).
			Msg("non-numeric epsilon, using default")
		return noise.Epsilon(fallback)
	}
	if v <= 0 {
		log.Warn().Float64("epsilon", v).Float64("default", noise.Epsilon(fallback)).
			Msg("epsilon must be positive, using default")
		return noise.Epsilon(fallback)
	}
	return v
}

// derivedPath appends a suffix to a file path, keeping the extension:
// data.csv + "_anonymized" → data_anonymized.csv.
func derivedPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

// loadIntermediate reads a phase-1 intermediate table. For store-backed runs
// (non-empty runID) a missing or unreadable file means the phase-1 artifact
// is gone, so the failure is reported as ErrIntermediateMissing rather than
// a bad user input.
func loadIntermediate(path, runID string) (*table.Table, error) {
	t, err := table.ReadCSVFile(path)
	if err != nil && runID != "" {
		return nil, fmt.Errorf("%w: run %s intermediate %s: %v",
			artifact.ErrIntermediateMissing, runID, path, err)
	}
	return t, err
}

// noisedLabel renders a run's phase-2 status for the listing. Records written
// by older builds may carry NoisedAt without an epsilon.
func noisedLabel(r *artifact.Run) string {
	if r.NoisedAt == nil {
		return "-"
	}
	if r.Epsilon == nil {
		return "noised"
	}
	return fmt.Sprintf("ε=%.2f", *r.Epsilon)
}
