package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/windi-project/windi-core/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	// Ensure clean env
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("WINDI_DATABASE_URL", "")
	t.Setenv("WINDI_ISSUER_ID", "")
	t.Setenv("WINDI_OTLP_ENDPOINT", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "windi.db", cfg.DatabaseURL)
	assert.Equal(t, "windi-guard", cfg.IssuerID)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("WINDI_DATABASE_URL", "postgres://windi@db:5432/windi?sslmode=disable")
	t.Setenv("WINDI_ISSUER_ID", "windi-issuer-eu")
	t.Setenv("WINDI_OTLP_ENDPOINT", "otel-collector:4317")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://windi@db:5432/windi?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "windi-issuer-eu", cfg.IssuerID)
	assert.Equal(t, "otel-collector:4317", cfg.OTLPEndpoint)
}
