package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CF_ACCOUNT_ID", "acct")
	t.Setenv("CF_API_TOKEN", "token")
	t.Setenv("MODEL_PROVIDER", "workersai")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.RateLimit.RequestsPerWindow != 20 || cfg.RateLimit.WindowDuration != time.Minute {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Model.Timeout != 2*time.Minute {
		t.Errorf("Model.Timeout = %v", cfg.Model.Timeout)
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled should default to true")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "OpenAI")
	t.Setenv("MODEL_NAME", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MODEL_TIMEOUT", "45s")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")
	t.Setenv("METRICS_ENABLED", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q", cfg.Model.Provider)
	}
	if cfg.Model.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v", cfg.Model.Timeout)
	}
	if cfg.RateLimit.RequestsPerWindow != 5 || cfg.RateLimit.WindowDuration != 10*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.MetricsEnabled {
		t.Error("MetricsEnabled should be false")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			Port:           "8080",
			DBPath:         "db",
			MaxRequestBody: 1024,
			Model: ModelConfig{
				Provider:    ProviderWorkersAI,
				Timeout:     time.Second,
				CFAccountID: "a",
				CFAPIToken:  "t",
			},
			RateLimit: RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"missing account", func(c *Config) { c.Model.CFAccountID = "" }, true},
		{"unknown provider", func(c *Config) { c.Model.Provider = "bedrock" }, true},
		{"openai without model", func(c *Config) {
			c.Model.Provider = ProviderOpenAI
			c.Model.OpenAIAPIKey = "k"
		}, true},
		{"openai local", func(c *Config) {
			c.Model.Provider = ProviderOpenAI
			c.Model.OpenAIBaseURL = "http://localhost:11434/v1"
			c.Model.Name = "llama3"
		}, false},
		{"zero window", func(c *Config) { c.RateLimit.WindowDuration = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Parallel()
	c := &Config{}
	if got := c.AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Errorf("AllowedOrigins() = %v", got)
	}
	c.FrontendURL = "https://plan.example.com/"
	if got := c.AllowedOrigins(); got[0] != "https://plan.example.com" {
		t.Errorf("AllowedOrigins() = %v", got)
	}
	if c.IsDevelopment() {
		t.Error("IsDevelopment() should be false for a public URL")
	}
}
