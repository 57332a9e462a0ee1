// Package config holds operator-level configuration for a veil installation:
// where state lives, which classifier backend to use, and how the pipeline
// is tuned. Values come from env vars (VEIL_ prefix), an optional
// veil.config.yaml, and defaults — merged by viper. A .env file is loaded as
// a quickstart fallback for the OpenAI key; production deployments should
// set real env vars.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the VEIL_ prefix (e.g.
// "sample_size" → VEIL_SAMPLE_SIZE) and a YAML field in veil.config.yaml.
const (
	KeyDataDir       = "data_dir"
	KeyOpenAIKey     = "openai_api_key"
	KeyOpenAIBaseURL = "openai_base_url"
	KeyModel         = "model"
	KeyClassifier    = "classifier"
	KeyRulesFile     = "rules_file"
	KeyFailMode      = "fail_mode"
	KeySampleSize    = "sample_size"
	KeyWorkers       = "workers"
	KeyRPM           = "rpm"
	KeyEpsilon       = "epsilon"
)

// Classifier backends.
const (
	ClassifierLLM   = "llm"
	ClassifierRules = "rules"
)

// Fail modes for unclassifiable columns.
const (
	FailOpen   = "open"   // keep the column as non-sensitive text
	FailClosed = "closed" // drop the column
)

const (
	DefaultModel      = "gpt-4o-mini"
	DefaultClassifier = ClassifierLLM
	DefaultFailMode   = FailOpen
	DefaultSampleSize = 10
	DefaultWorkers    = 4
	DefaultRPM        = 60
	DefaultEpsilon    = 1.0
)

// Config is the resolved configuration for a veil process.
type Config struct {
	DataDir       string  // base directory for run artifacts (~/.veil)
	OpenAIKey     string  // API key for the LLM classifier
	OpenAIBaseURL string  // override endpoint (empty = api.openai.com)
	Model         string  // chat model used for classification
	Classifier    string  // "llm" or "rules"
	RulesFile     string  // optional extra rules for the rule gateway
	FailMode      string  // "open" or "closed"
	SampleSize    int     // distinct values sent per column (≤10)
	Workers       int     // classification worker pool size
	RPM           int     // gateway requests per minute (0 = unlimited)
	Epsilon       float64 // default privacy budget for phase 2
}

// RunsDBPath returns the full path to the run artifact SQLite database.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("VEIL")
	viper.AutomaticEnv()
	viper.SetDefault(KeyModel, DefaultModel)
	viper.SetDefault(KeyClassifier, DefaultClassifier)
	viper.SetDefault(KeyFailMode, DefaultFailMode)
	viper.SetDefault(KeySampleSize, DefaultSampleSize)
	viper.SetDefault(KeyWorkers, DefaultWorkers)
	viper.SetDefault(KeyRPM, DefaultRPM)
	viper.SetDefault(KeyEpsilon, DefaultEpsilon)
}

// Load reads configuration from viper (env vars, config file, defaults) and
// returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:       resolveDataDir(),
		OpenAIKey:     resolveAPIKey(),
		OpenAIBaseURL: viper.GetString(KeyOpenAIBaseURL),
		Model:         viper.GetString(KeyModel),
		Classifier:    viper.GetString(KeyClassifier),
		RulesFile:     viper.GetString(KeyRulesFile),
		FailMode:      viper.GetString(KeyFailMode),
		SampleSize:    viper.GetInt(KeySampleSize),
		Workers:       viper.GetInt(KeyWorkers),
		RPM:           viper.GetInt(KeyRPM),
		Epsilon:       viper.GetFloat64(KeyEpsilon),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Classifier != ClassifierLLM && c.Classifier != ClassifierRules {
		return fmt.Errorf("classifier must be %q or %q, got %q", ClassifierLLM, ClassifierRules, c.Classifier)
	}
	if c.FailMode != FailOpen && c.FailMode != FailClosed {
		return fmt.Errorf("fail_mode must be %q or %q, got %q", FailOpen, FailClosed, c.FailMode)
	}
	if c.Classifier == ClassifierLLM && c.OpenAIKey == "" {
		return fmt.Errorf("openai_api_key is required for the llm classifier (set VEIL_OPENAI_API_KEY or OPENAI_API_KEY, or use classifier: rules)")
	}
	if c.SampleSize < 1 || c.SampleSize > 10 {
		return fmt.Errorf("sample_size must be between 1 and 10, got %d", c.SampleSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veil"
	}
	return filepath.Join(home, ".veil")
}

// resolveAPIKey prefers VEIL_OPENAI_API_KEY but falls back to the bare
// OPENAI_API_KEY that .env-based setups conventionally export.
func resolveAPIKey() string {
	if key := viper.GetString(KeyOpenAIKey); key != "" {
		return key
	}
	return os.Getenv("OPENAI_API_KEY")
}
