package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Port:                  "8080",
		Env:                   "development",
		Neo4jURI:              "bolt://localhost:7687",
		Neo4jUser:             "neo4j",
		Neo4jPassword:         "password",
		MaxMessagesPerSession: 200,
		MaxAgeDays:            90,
		EntityMergeThreshold:  0.85,
		NoteDupThreshold:      0.85,
		NoteMinOverlap:        2,
		MaintenanceInterval:   time.Hour,
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Neo4jURI = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.EntityMergeThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.MaxAgeDays = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.NoteMinOverlap = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.MaintenanceInterval = time.Second
	assert.Error(t, cfg.Validate())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	assert.Equal(t, "value", getEnv("TEST_STR", "fallback"))
	assert.Equal(t, "fallback", getEnv("TEST_STR_MISSING", "fallback"))

	t.Setenv("TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 7))
	t.Setenv("TEST_INT_BAD", "forty-two")
	assert.Equal(t, 7, getEnvInt("TEST_INT_BAD", 7))

	t.Setenv("TEST_FLOAT", "0.5")
	assert.Equal(t, 0.5, getEnvFloat("TEST_FLOAT", 0.9))

	t.Setenv("TEST_BOOL", "true")
	assert.True(t, getEnvBool("TEST_BOOL", false))
	t.Setenv("TEST_BOOL_OFF", "no")
	assert.False(t, getEnvBool("TEST_BOOL_OFF", true))

	t.Setenv("TEST_DUR", "30m")
	assert.Equal(t, 30*time.Minute, getEnvDuration("TEST_DUR", time.Hour))
	t.Setenv("TEST_DUR_BAD", "soon")
	assert.Equal(t, time.Hour, getEnvDuration("TEST_DUR_BAD", time.Hour))
}

func TestEnvModes(t *testing.T) {
	cfg := validConfig()
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.True(t, cfg.IsProduction())
}
