// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Model providers.
const (
	ProviderWorkersAI = "workersai"
	ProviderOpenAI    = "openai"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	MaxRequestBody int64
	MetricsEnabled bool
	Model          ModelConfig
	RateLimit      RateLimitConfig
}

// ModelConfig selects and configures the model gateway.
type ModelConfig struct {
	Provider      string
	Name          string
	Timeout       time.Duration
	CFAccountID   string
	CFAPIToken    string
	CFBaseURL     string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// RateLimitConfig bounds requests per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/studyplan.db"),
		MaxRequestBody: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		Model: ModelConfig{
			Provider:      strings.ToLower(getEnv("MODEL_PROVIDER", ProviderWorkersAI)),
			Name:          getEnv("MODEL_NAME", ""),
			Timeout:       getEnvDuration("MODEL_TIMEOUT", 2*time.Minute),
			CFAccountID:   getEnv("CF_ACCOUNT_ID", ""),
			CFAPIToken:    getEnv("CF_API_TOKEN", ""),
			CFBaseURL:     getEnv("CF_API_BASE_URL", ""),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaxRequestBody <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be > 0")
	}

	switch c.Model.Provider {
	case ProviderWorkersAI:
		if c.Model.CFAccountID == "" {
			return fmt.Errorf("CF_ACCOUNT_ID is required for provider %q", c.Model.Provider)
		}
		if c.Model.CFAPIToken == "" {
			return fmt.Errorf("CF_API_TOKEN is required for provider %q", c.Model.Provider)
		}
	case ProviderOpenAI:
		if c.Model.OpenAIAPIKey == "" && c.Model.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY or OPENAI_BASE_URL is required for provider %q", c.Model.Provider)
		}
		if c.Model.Name == "" {
			return fmt.Errorf("MODEL_NAME is required for provider %q", c.Model.Provider)
		}
	default:
		return fmt.Errorf("MODEL_PROVIDER must be %q or %q, got %q", ProviderWorkersAI, ProviderOpenAI, c.Model.Provider)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured front end.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
