package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	LLM      LLMConfig      `toml:"llm"`
	Insights InsightsConfig `toml:"insights"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	Path        string `toml:"path"`
	MetricsPath string `toml:"metrics_path"`
}

type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	TokenExpiryMin int    `toml:"token_expiry_min"`
}

type LLMConfig struct {
	GeminiAPIKey    string `toml:"gemini_api_key"`
	MistralAPIKey   string `toml:"mistral_api_key"`
	OpenRouterKey   string `toml:"openrouter_api_key"`
	GroqAPIKey      string `toml:"groq_api_key"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`
	HuggingFaceKey  string `toml:"huggingface_api_key"`
}

// InsightsConfig carries the tuning knobs of the insight/scoring pipeline.
// The trend deadbands are tuning choices rather than domain laws, so they
// live in config instead of being hard-coded.
type InsightsConfig struct {
	GlucoseTrendDeadband  float64 `toml:"glucose_trend_deadband"` // mg/dL between 7d and 30d averages
	MoodTrendDeadband     float64 `toml:"mood_trend_deadband"`    // mood points between window halves
	OnDemandFreshnessHrs  int     `toml:"on_demand_freshness_hours"`
	ScheduledFreshnessHrs int     `toml:"scheduled_freshness_hours"`
	CachedDedupMs         int     `toml:"cached_dedup_ms"`
	FreshDedupMs          int     `toml:"fresh_dedup_ms"`
	CacheTTLMin           int     `toml:"cache_ttl_min"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path:        "data/wellness.db",
			MetricsPath: "data/metrics.db",
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			TokenExpiryMin: 1440, // 24h
		},
		Insights: InsightsConfig{
			GlucoseTrendDeadband:  10,
			MoodTrendDeadband:     0.5,
			OnDemandFreshnessHrs:  6,
			ScheduledFreshnessHrs: 24,
			CachedDedupMs:         1000,
			FreshDedupMs:          3000,
			CacheTTLMin:           15,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		applyEnv(cfg)
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides secrets and provider API keys from the environment so
// they can be kept out of config files. Env always wins over TOML.
func applyEnv(cfg *Config) {
	for env, dst := range map[string]*string{
		"WELLNESSGRID_JWT_SECRET": &cfg.Auth.JWTSecret,
		"GEMINI_API_KEY":          &cfg.LLM.GeminiAPIKey,
		"MISTRAL_API_KEY":         &cfg.LLM.MistralAPIKey,
		"OPENROUTER_API_KEY":      &cfg.LLM.OpenRouterKey,
		"GROQ_API_KEY":            &cfg.LLM.GroqAPIKey,
		"ANTHROPIC_API_KEY":       &cfg.LLM.AnthropicAPIKey,
		"HUGGINGFACE_API_KEY":     &cfg.LLM.HuggingFaceKey,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}
