// Package doctor provides health checks for a veil installation. Used by
// `veil doctor` to verify the environment before a sanitization run: config
// loads, the data directory is writable, the run database opens, and the
// selected classifier backend is usable.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dativo-io/veil/internal/artifact"
	"github.com/dativo-io/veil/internal/classify"
	"github.com/dativo-io/veil/internal/config"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: "fail",
			Message: fmt.Sprintf("cannot load config: %v", err),
			Fix:     "check VEIL_ env vars and veil.config.yaml",
		})
	} else {
		report.Checks = append(report.Checks, checkDataDir(cfg))
		report.Checks = append(report.Checks, checkRunsDB(ctx, cfg))
		report.Checks = append(report.Checks, checkClassifier(cfg))
	}

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "ensure the directory exists and is writable, or set VEIL_DATA_DIR",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkRunsDB(ctx context.Context, cfg *config.Config) CheckResult {
	store, err := artifact.NewStore(cfg.RunsDBPath())
	if err != nil {
		return CheckResult{
			Name: "runs_db", Category: "storage", Status: "fail",
			Message: fmt.Sprintf("%s: %v", cfg.RunsDBPath(), err),
			Fix:     "remove a corrupted runs.db or fix directory permissions",
		}
	}
	defer store.Close()

	runs, err := store.List(ctx, 1)
	if err != nil {
		return CheckResult{
			Name: "runs_db", Category: "storage", Status: "fail",
			Message: fmt.Sprintf("query failed: %v", err),
		}
	}
	msg := "empty"
	if len(runs) > 0 {
		msg = fmt.Sprintf("latest run %s", runs[0].ID)
	}
	return CheckResult{
		Name: "runs_db", Category: "storage", Status: "pass",
		Message: fmt.Sprintf("%s (%s)", cfg.RunsDBPath(), msg),
	}
}

// checkClassifier verifies the selected backend without spending API calls:
// the LLM path needs a key, the rules path needs a parseable overlay.
func checkClassifier(cfg *config.Config) CheckResult {
	switch cfg.Classifier {
	case config.ClassifierRules:
		if _, err := classify.NewRuleGateway(cfg.RulesFile); err != nil {
			return CheckResult{
				Name: "rules_file", Category: "classifier", Status: "fail",
				Message: fmt.Sprintf("%s: %v", cfg.RulesFile, err),
				Fix:     "fix the YAML in the rules file or unset VEIL_RULES_FILE",
			}
		}
		msg := "built-in rules"
		if cfg.RulesFile != "" {
			msg = fmt.Sprintf("built-in rules + %s", cfg.RulesFile)
		}
		return CheckResult{
			Name: "rules_file", Category: "classifier", Status: "pass",
			Message: msg,
		}
	default:
		if cfg.OpenAIKey == "" {
			return CheckResult{
				Name: "openai_key", Category: "classifier", Status: "fail",
				Message: "no API key configured for the llm classifier",
				Fix:     "set VEIL_OPENAI_API_KEY (or OPENAI_API_KEY), or switch to classifier: rules",
			}
		}
		msg := fmt.Sprintf("model %s", cfg.Model)
		if cfg.OpenAIBaseURL != "" {
			msg += fmt.Sprintf(" via %s", cfg.OpenAIBaseURL)
		}
		return CheckResult{
			Name: "openai_key", Category: "classifier", Status: "pass",
			Message: msg,
		}
	}
}
