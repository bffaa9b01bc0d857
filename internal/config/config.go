// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.replymate/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, temperature, max tokens, embedder model
//   - Retrieval: top-k, score floor, context budget
//   - Retry: attempt ceiling and backoff intervals for external services
//   - Knowledge base: category allow-list, SQLite path, optional Postgres URL
//   - Triage: support/urgency keyword lists
//
// Validation uses sentinel errors so callers can branch with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidMinScore indicates the retrieval score floor is out of range.
	ErrInvalidMinScore = errors.New("invalid retrieval min score")

	// ErrInvalidContextBudget indicates the context budget is out of range.
	ErrInvalidContextBudget = errors.New("invalid context budget")

	// ErrInvalidRetry indicates the retry policy is inconsistent.
	ErrInvalidRetry = errors.New("invalid retry policy")

	// ErrInvalidCategories indicates the category allow-list is unusable.
	ErrInvalidCategories = errors.New("invalid category allow-list")

	// ErrInvalidDatabasePath indicates the SQLite database path is invalid.
	ErrInvalidDatabasePath = errors.New("invalid database path")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderMock   = "mock" // offline development and tests
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the default generation model.
	DefaultModelName = "gemini-2.5-flash"

	// MaxTopK bounds retrieval fan-out; the knowledge base is small and
	// anything past this is noise for the context assembler.
	MaxTopK = 20
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider"`
	ModelName   string  `mapstructure:"model_name"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// Embedding configuration. All vectors in one index must come from
	// the same embedder model; changing this requires reindexing.
	EmbedderModel string `mapstructure:"embedder_model"`

	// Retrieval configuration
	RetrievalTopK int     `mapstructure:"retrieval_top_k"`
	MinScore      float64 `mapstructure:"min_score"`
	ContextBudget int     `mapstructure:"context_budget"` // characters

	// Retry policy for embedding and generation calls
	RetryMaxAttempts     int           `mapstructure:"retry_max_attempts"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`

	// Knowledge base configuration
	Categories   []string `mapstructure:"categories"` // allow-list, lower-case
	DatabasePath string   `mapstructure:"database_path"`
	PostgresURL  string   `mapstructure:"postgres_url"` // optional pgvector index

	// Triage keyword lists (matched case-insensitively)
	SupportKeywords []string `mapstructure:"support_keywords"`
	UrgentKeywords  []string `mapstructure:"urgent_keywords"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".replymate")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, without
// touching the filesystem. Used by tests and by embedded callers that
// construct their own collaborators.
func Default() *Config {
	return &Config{
		Provider:             ProviderGemini,
		ModelName:            DefaultModelName,
		Temperature:          0.7,
		MaxTokens:            1024,
		EmbedderModel:        DefaultEmbedderModel,
		RetrievalTopK:        3,
		MinScore:             0.3,
		ContextBudget:        2000,
		RetryMaxAttempts:     3,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		Categories:           defaultCategories(),
		DatabasePath:         "replymate.db",
		SupportKeywords:      defaultSupportKeywords(),
		UrgentKeywords:       defaultUrgentKeywords(),
		LogLevel:             "info",
	}
}

func setDefaults(configDir string) {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 1024)

	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	viper.SetDefault("retrieval_top_k", 3)
	viper.SetDefault("min_score", 0.3)
	viper.SetDefault("context_budget", 2000)

	viper.SetDefault("retry_max_attempts", 3)
	viper.SetDefault("retry_initial_interval", "500ms")
	viper.SetDefault("retry_max_interval", "10s")

	viper.SetDefault("categories", defaultCategories())
	viper.SetDefault("database_path", filepath.Join(configDir, "replymate.db"))

	viper.SetDefault("support_keywords", defaultSupportKeywords())
	viper.SetDefault("urgent_keywords", defaultUrgentKeywords())

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly.
// Only secrets and deployment-specific overrides come from the environment;
// everything else belongs in config.yaml.
func bindEnvVariables() {
	// GEMINI_API_KEY is read directly by the genai provider; it is
	// validated here but never stored in the Config struct.
	_ = viper.BindEnv("postgres_url", "REPLYMATE_POSTGRES_URL")
	_ = viper.BindEnv("database_path", "REPLYMATE_DB_PATH")
	_ = viper.BindEnv("log_level", "REPLYMATE_LOG_LEVEL")
}

// defaultCategories mirrors the categories of the seed knowledge corpus.
func defaultCategories() []string {
	return []string{"account", "billing", "technical", "product", "general"}
}

func defaultSupportKeywords() []string {
	return []string{
		"support", "help", "query", "request", "issue",
		"problem", "urgent", "asap", "immediately", "critical",
	}
}

func defaultUrgentKeywords() []string {
	return []string{
		"urgent", "critical", "asap", "immediately", "emergency",
		"cannot access", "not working", "down", "broken", "error",
	}
}

// SlogLevel translates the configured log level string to a slog.Level.
// Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
