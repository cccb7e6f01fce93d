package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Retention
	MaxMessagesPerSession int
	MaxAgeDays            int

	// Similarity thresholds
	EntityMergeThreshold float64
	NoteDupThreshold     float64
	NoteMinOverlap       int

	// Maintenance scheduler
	MaintenanceEnabled  bool
	MaintenanceInterval time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Env:                   getEnv("ENV", "development"),
		Neo4jURI:              getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:             getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:         getEnv("NEO4J_PASSWORD", "password"),
		MaxMessagesPerSession: getEnvInt("RETENTION_MAX_MESSAGES", 200),
		MaxAgeDays:            getEnvInt("RETENTION_MAX_AGE_DAYS", 90),
		EntityMergeThreshold:  getEnvFloat("ENTITY_MERGE_THRESHOLD", 0.85),
		NoteDupThreshold:      getEnvFloat("NOTE_DUP_THRESHOLD", 0.85),
		NoteMinOverlap:        getEnvInt("NOTE_MIN_OVERLAP", 2),
		MaintenanceEnabled:    getEnvBool("MAINTENANCE_ENABLED", false),
		MaintenanceInterval:   getEnvDuration("MAINTENANCE_INTERVAL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.MaxMessagesPerSession < 0 {
		return fmt.Errorf("RETENTION_MAX_MESSAGES must not be negative")
	}
	if c.MaxAgeDays < 0 {
		return fmt.Errorf("RETENTION_MAX_AGE_DAYS must not be negative")
	}
	if c.EntityMergeThreshold < 0 || c.EntityMergeThreshold > 1 {
		return fmt.Errorf("ENTITY_MERGE_THRESHOLD must be in [0,1]")
	}
	if c.NoteDupThreshold < 0 || c.NoteDupThreshold > 1 {
		return fmt.Errorf("NOTE_DUP_THRESHOLD must be in [0,1]")
	}
	if c.NoteMinOverlap < 1 {
		return fmt.Errorf("NOTE_MIN_OVERLAP must be at least 1")
	}
	if c.MaintenanceInterval < time.Minute {
		return fmt.Errorf("MAINTENANCE_INTERVAL must be at least 1m")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes":
		return true
	case "0", "false", "FALSE", "no":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
