package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "vendorvet.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.HaikuModel)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.SonnetModel)
	assert.Equal(t, "claude-opus-4-6", cfg.Anthropic.OpusModel)
	assert.Equal(t, 8192, cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Perplexity.BaseURL)
	assert.Equal(t, "sonar", cfg.Perplexity.LiteModel)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.DeepModel)
	assert.InDelta(t, 2.0, cfg.Perplexity.RPS, 0.001)
	assert.Equal(t, 8, cfg.Vetting.Concurrency)
	assert.Equal(t, 3*time.Minute, cfg.Vetting.TaskTimeout())
	assert.Equal(t, 10, cfg.Discovery.VerifyConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.Discovery.TaskTimeout())
	assert.False(t, cfg.Babel.Enabled())
	// The babel defaults must point at the endpoints the client targets.
	assert.Equal(t, "https://authentication.babelstreet.com/v1/identity/token", cfg.Babel.AuthURL)
	assert.Equal(t, "https://documents.babelstreet.com/v1/search", cfg.Babel.SearchURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/vendorvet
log:
  level: debug
  format: console
server:
  port: 9090
vetting:
  concurrency: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/vendorvet", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Vetting.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Discovery.VerifyConcurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("VENDORVET_STORE_DRIVER", "postgres")
	t.Setenv("VENDORVET_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("VENDORVET_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestBabelEnabled(t *testing.T) {
	cfg := BabelConfig{APIKey: "k", Username: "u", Password: "p"}
	assert.True(t, cfg.Enabled())

	cfg.Password = ""
	assert.False(t, cfg.Enabled())
}

// validConfig returns a Config that passes validation in every mode.
func validConfig() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "sqlite", DatabaseURL: "vendorvet.db"},
		Anthropic:  AnthropicConfig{Key: "sk-ant-key"},
		Perplexity: PerplexityConfig{Key: "pplx-key"},
		Vetting:    VettingConfig{Concurrency: 8},
		Discovery:  DiscoveryConfig{VerifyConcurrency: 10},
		Server:     ServerConfig{Port: 8080},
	}
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate("vet"))
	assert.NoError(t, cfg.Validate("discover"))
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_MissingKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Anthropic.Key = ""
	cfg.Perplexity.Key = ""
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("vet")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "perplexity.key is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_BadDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("vet")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidate_ConcurrencyBounds(t *testing.T) {
	cfg := validConfig()

	cfg.Vetting.Concurrency = 0
	err := cfg.Validate("vet")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "vetting.concurrency must be between 1 and 50")

	cfg.Vetting.Concurrency = 51
	err = cfg.Validate("vet")
	assert.Error(t, err)

	cfg.Vetting.Concurrency = 50
	assert.NoError(t, cfg.Validate("vet"))
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0

	// Port only matters in serve mode
	assert.NoError(t, cfg.Validate("vet"))

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validConfig()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
