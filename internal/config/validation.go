package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderMock:
		// Offline provider, no credentials.
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderMock)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range per the Gemini API: 0.0 (deterministic) to 2.0.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 65536 {
		return fmt.Errorf("%w: must be between 1 and 65,536, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > MaxTopK {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidTopK, MaxTopK, c.RetrievalTopK)
	}

	// Cosine similarity lives in [-1, 1]; a floor below -1 or at/above 1
	// either filters nothing or everything.
	if c.MinScore < -1.0 || c.MinScore >= 1.0 {
		return fmt.Errorf("%w: must be in [-1.0, 1.0), got %.2f", ErrInvalidMinScore, c.MinScore)
	}

	if c.ContextBudget < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidContextBudget, c.ContextBudget)
	}

	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > 10 {
		return fmt.Errorf("%w: retry_max_attempts must be between 1 and 10, got %d",
			ErrInvalidRetry, c.RetryMaxAttempts)
	}
	if c.RetryInitialInterval <= 0 {
		return fmt.Errorf("%w: retry_initial_interval must be positive, got %v",
			ErrInvalidRetry, c.RetryInitialInterval)
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		return fmt.Errorf("%w: retry_max_interval %v is below retry_initial_interval %v",
			ErrInvalidRetry, c.RetryMaxInterval, c.RetryInitialInterval)
	}

	if len(c.Categories) == 0 {
		return fmt.Errorf("%w: at least one category is required", ErrInvalidCategories)
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		normalized := strings.ToLower(strings.TrimSpace(cat))
		if normalized == "" {
			return fmt.Errorf("%w: empty category entry", ErrInvalidCategories)
		}
		if _, dup := seen[normalized]; dup {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidCategories, normalized)
		}
		seen[normalized] = struct{}{}
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path cannot be empty", ErrInvalidDatabasePath)
	}

	return nil
}
