package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Babel      BabelConfig      `yaml:"babel" mapstructure:"babel"`
	Vetting    VettingConfig    `yaml:"vetting" mapstructure:"vetting"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	OpusModel   string `yaml:"opus_model" mapstructure:"opus_model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	LiteModel string  `yaml:"lite_model" mapstructure:"lite_model"`
	DeepModel string  `yaml:"deep_model" mapstructure:"deep_model"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
}

// BabelConfig holds Babel Street document search credentials. All three
// credential fields must be set for the document searcher to be enabled.
type BabelConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Username  string `yaml:"username" mapstructure:"username"`
	Password  string `yaml:"password" mapstructure:"password"`
	AuthURL   string `yaml:"auth_url" mapstructure:"auth_url"`
	SearchURL string `yaml:"search_url" mapstructure:"search_url"`
}

// Enabled reports whether the Babel credentials are complete.
func (c BabelConfig) Enabled() bool {
	return c.APIKey != "" && c.Username != "" && c.Password != ""
}

// VettingConfig configures the vetting pipeline.
type VettingConfig struct {
	Concurrency     int `yaml:"concurrency" mapstructure:"concurrency"`
	TaskTimeoutSecs int `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
}

// TaskTimeout returns the per-task timeout as a duration.
func (c VettingConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSecs) * time.Second
}

// DiscoveryConfig configures the discovery pipeline.
type DiscoveryConfig struct {
	VerifyConcurrency int `yaml:"verify_concurrency" mapstructure:"verify_concurrency"`
	TaskTimeoutSecs   int `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
}

// TaskTimeout returns the per-task timeout as a duration.
func (c DiscoveryConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration is usable for the given mode.
// Mode is one of "vet", "discover", or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "vet", "discover", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Anthropic.Key == "" {
		problems = append(problems, "anthropic.key is required")
	}
	if c.Perplexity.Key == "" {
		problems = append(problems, "perplexity.key is required")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Vetting.Concurrency < 1 || c.Vetting.Concurrency > 50 {
		problems = append(problems, "vetting.concurrency must be between 1 and 50")
	}
	if c.Discovery.VerifyConcurrency < 1 || c.Discovery.VerifyConcurrency > 50 {
		problems = append(problems, "discovery.verify_concurrency must be between 1 and 50")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VENDORVET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "vendorvet.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.opus_model", "claude-opus-4-6")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.lite_model", "sonar")
	v.SetDefault("perplexity.deep_model", "sonar-pro")
	v.SetDefault("perplexity.rps", 2.0)
	v.SetDefault("babel.auth_url", "https://authentication.babelstreet.com/v1/identity/token")
	v.SetDefault("babel.search_url", "https://documents.babelstreet.com/v1/search")
	v.SetDefault("vetting.concurrency", 8)
	v.SetDefault("vetting.task_timeout_secs", 180)
	v.SetDefault("discovery.verify_concurrency", 10)
	v.SetDefault("discovery.task_timeout_secs", 120)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
