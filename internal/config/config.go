// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EngineConfig holds the tunable parameters of the belief-update engine
type EngineConfig struct {
	BaseLearningRate      float64 // Starting learning rate before overlap scaling
	MinLearningRate       float64 // Floor for the applied learning rate
	MaxLearningRate       float64 // Ceiling for the applied learning rate
	BeliefDecayRate       float64 // Decay toward neutral baseline per update
	MaxBeliefChange       float64 // Maximum per-field step per cycle
	MaxInsightsPerEpisode int     // Cap on insights extracted per cycle
	MinInsightConfidence  float64 // Insights below this confidence are discarded
	MaxPriors             int     // Cap on accumulated prior concepts

	CVaRConfidenceLevel float64 // Tail confidence for the risk controller
	RiskControlEnabled  bool    // Master switch for within-episode risk checks
}

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for all databases (always absolute)
	MLEngineURL  string // External ML prediction service base URL
	LogLevel     string
	Port         int
	DevMode      bool
	Engine       EngineConfig
	KafkaBrokers []string // Optional: risk-alert Kafka brokers (empty = disabled)
	KafkaTopic   string
	EpisodeCron  string // Cron spec for scheduled episode rollover (empty = disabled)
	DefaultScope string // Belief scope used by scheduled jobs
	RiskFreeRate float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CONVICTION_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("GO_PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		MLEngineURL:  getEnv("ML_ENGINE_URL", "http://localhost:8000"), // Python ML sidecar
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_ALERT_TOPIC", "conviction-alerts"),
		EpisodeCron:  getEnv("EPISODE_ROLLOVER_CRON", ""),
		DefaultScope: getEnv("DEFAULT_SCOPE", "default"),
		RiskFreeRate: getEnvAsFloat("RISK_FREE_RATE", 0.05),
		Engine:       loadEngineConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is internally consistent
func (c *Config) Validate() error {
	e := c.Engine

	if e.MinLearningRate > e.MaxLearningRate {
		return fmt.Errorf("min learning rate %.4f exceeds max %.4f", e.MinLearningRate, e.MaxLearningRate)
	}
	if e.CVaRConfidenceLevel <= 0 || e.CVaRConfidenceLevel >= 1 {
		return fmt.Errorf("cvar confidence level must be in (0,1), got %.4f", e.CVaRConfidenceLevel)
	}
	if e.MaxInsightsPerEpisode < 1 {
		return fmt.Errorf("max insights per episode must be positive, got %d", e.MaxInsightsPerEpisode)
	}

	return nil
}

// loadEngineConfig loads engine parameters with documented defaults
func loadEngineConfig() EngineConfig {
	return EngineConfig{
		BaseLearningRate:      getEnvAsFloat("CVRF_BASE_LEARNING_RATE", 0.10),
		MinLearningRate:       getEnvAsFloat("CVRF_MIN_LEARNING_RATE", 0.01),
		MaxLearningRate:       getEnvAsFloat("CVRF_MAX_LEARNING_RATE", 0.30),
		BeliefDecayRate:       getEnvAsFloat("CVRF_BELIEF_DECAY_RATE", 0.05),
		MaxBeliefChange:       getEnvAsFloat("CVRF_MAX_BELIEF_CHANGE", 0.15),
		MaxInsightsPerEpisode: getEnvAsInt("CVRF_MAX_INSIGHTS", 10),
		MinInsightConfidence:  getEnvAsFloat("CVRF_MIN_INSIGHT_CONFIDENCE", 0.30),
		MaxPriors:             getEnvAsInt("CVRF_MAX_PRIORS", 50),
		CVaRConfidenceLevel:   getEnvAsFloat("CVRF_CVAR_CONFIDENCE", 0.95),
		RiskControlEnabled:    getEnvAsBool("CVRF_RISK_CONTROL_ENABLED", true),
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
