package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultAnalysts is the analyst team used when a request does not select one.
var DefaultAnalysts = []string{"market", "social", "news", "fundamentals"}

// Config holds application configuration
type Config struct {
	DatabasePath          string
	Port                  int
	LogLevel              string
	DevMode               bool
	MaxConcurrentAnalyses int
	SessionRetentionDays  int
	DeepThinkingModel     string
	QuickThinkingModel    string
	MaxDebateRounds       int
	MarketCacheTTLMinutes int
	DefaultAnalysts       []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnvAsInt("PORT", 8002),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		DatabasePath:          getEnv("DATABASE_PATH", "./data/tradescope.db"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		MaxConcurrentAnalyses: getEnvAsInt("MAX_CONCURRENT_ANALYSES", 3),
		SessionRetentionDays:  getEnvAsInt("SESSION_RETENTION_DAYS", 90),
		DeepThinkingModel:     getEnv("DEEP_THINKING_MODEL", "o4-mini"),
		QuickThinkingModel:    getEnv("QUICK_THINKING_MODEL", "gpt-4o-mini"),
		MaxDebateRounds:       getEnvAsInt("MAX_DEBATE_ROUNDS", 1),
		MarketCacheTTLMinutes: getEnvAsInt("MARKET_CACHE_TTL_MINUTES", 15),
		DefaultAnalysts:       getEnvAsList("DEFAULT_ANALYSTS", DefaultAnalysts),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.MaxConcurrentAnalyses < 1 {
		return fmt.Errorf("MAX_CONCURRENT_ANALYSES must be at least 1, got %d", c.MaxConcurrentAnalyses)
	}
	if c.SessionRetentionDays < 1 {
		return fmt.Errorf("SESSION_RETENTION_DAYS must be at least 1, got %d", c.SessionRetentionDays)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
