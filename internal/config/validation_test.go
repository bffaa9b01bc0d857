package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	// Avoid requiring credentials in unit tests.
	cfg.Provider = ProviderMock
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() on defaults: %v", err)
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "claude" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Config) { c.Temperature = 2.5 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "negative temperature",
			mutate:  func(c *Config) { c.Temperature = -0.1 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "zero max tokens",
			mutate:  func(c *Config) { c.MaxTokens = 0 },
			wantErr: ErrInvalidMaxTokens,
		},
		{
			name:    "empty embedder model",
			mutate:  func(c *Config) { c.EmbedderModel = "" },
			wantErr: ErrInvalidEmbedderModel,
		},
		{
			name:    "top-k zero",
			mutate:  func(c *Config) { c.RetrievalTopK = 0 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "top-k above cap",
			mutate:  func(c *Config) { c.RetrievalTopK = MaxTopK + 1 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "min score below cosine range",
			mutate:  func(c *Config) { c.MinScore = -1.5 },
			wantErr: ErrInvalidMinScore,
		},
		{
			name:    "min score filters everything",
			mutate:  func(c *Config) { c.MinScore = 1.0 },
			wantErr: ErrInvalidMinScore,
		},
		{
			name:    "zero context budget",
			mutate:  func(c *Config) { c.ContextBudget = 0 },
			wantErr: ErrInvalidContextBudget,
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.RetryMaxAttempts = 0 },
			wantErr: ErrInvalidRetry,
		},
		{
			name:    "max interval below initial",
			mutate:  func(c *Config) { c.RetryMaxInterval = 100 * time.Millisecond },
			wantErr: ErrInvalidRetry,
		},
		{
			name:    "no categories",
			mutate:  func(c *Config) { c.Categories = nil },
			wantErr: ErrInvalidCategories,
		},
		{
			name:    "duplicate category",
			mutate:  func(c *Config) { c.Categories = []string{"billing", "Billing"} },
			wantErr: ErrInvalidCategories,
		},
		{
			name:    "blank category",
			mutate:  func(c *Config) { c.Categories = []string{"billing", "  "} },
			wantErr: ErrInvalidCategories,
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.DatabasePath = "" },
			wantErr: ErrInvalidDatabasePath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_GeminiRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg := Default()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}

	t.Setenv("GEMINI_API_KEY", "test-key")
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with API key set: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		if got := cfg.SlogLevel().String(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
