// Package config reads application configuration from config.yaml and the
// environment, and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// defaultMission is the nonprofit mission candidates are scored against
// when no override is configured.
const defaultMission = "The Connecticut RISE Network empowers public high schools with " +
	"data-driven strategies and personalized support to improve student outcomes " +
	"and promote postsecondary success, especially for Black, Latinx, " +
	"and low-income youth."

// Config holds the full application configuration.
type Config struct {
	Mission    MissionConfig    `yaml:"mission" mapstructure:"mission"`
	Source     SourceConfig     `yaml:"source" mapstructure:"source"`
	Table      TableConfig      `yaml:"table" mapstructure:"table"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	GrantsGov  GrantsGovConfig  `yaml:"grantsgov" mapstructure:"grantsgov"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// MissionConfig holds the mission text and the focus phrase used in
// discovery prompts.
type MissionConfig struct {
	Text  string `yaml:"text" mapstructure:"text"`
	Focus string `yaml:"focus" mapstructure:"focus"`
}

// SourceConfig selects the discovery strategy and sizes a refresh.
type SourceConfig struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
	Keyword  string `yaml:"keyword" mapstructure:"keyword"`
	MinCount int    `yaml:"min_count" mapstructure:"min_count"`
}

// TableConfig locates the persisted grant table.
type TableConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig locates the embedding cache database. An empty path
// disables caching.
type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	Model   string  `yaml:"model" mapstructure:"model"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GrantsGovConfig holds Grants.gov search settings.
type GrantsGovConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GRANTMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("mission.text", defaultMission)
	v.SetDefault("mission.focus", "high-school education, college readiness, or youth equity")
	v.SetDefault("source.strategy", "search")
	v.SetDefault("source.keyword", "education")
	v.SetDefault("source.min_count", 5)
	v.SetDefault("table.path", "grants.csv")
	v.SetDefault("cache.path", "embeddings.db")
	// Secrets have no meaningful default, but registering the keys lets
	// AutomaticEnv surface them through Unmarshal.
	v.SetDefault("jina.key", "")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("jina.rps", 2.0)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("grantsgov.base_url", "https://api.grants.gov")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Strategies lists the valid source.strategy values.
var Strategies = []string{"search", "generative", "registry"}

// Validate checks that everything a given mode needs is present.
// Modes: "refresh", "analyze", "report", "serve".
func (c *Config) Validate(mode string) error {
	var missing []string

	requireKey := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name+" is required")
		}
	}

	checkStrategy := func() {
		ok := false
		for _, s := range Strategies {
			if c.Source.Strategy == s {
				ok = true
			}
		}
		if !ok {
			missing = append(missing, "source.strategy must be one of search, generative, registry")
		}
		switch c.Source.Strategy {
		case "search":
			requireKey("perplexity.key", c.Perplexity.Key)
		case "generative":
			requireKey("anthropic.key", c.Anthropic.Key)
		}
	}

	switch mode {
	case "refresh":
		requireKey("jina.key", c.Jina.Key)
		checkStrategy()
		if c.Source.MinCount < 1 || c.Source.MinCount > 50 {
			missing = append(missing, "source.min_count must be between 1 and 50")
		}
	case "analyze":
		requireKey("jina.key", c.Jina.Key)
		requireKey("perplexity.key", c.Perplexity.Key)
	case "report":
		requireKey("anthropic.key", c.Anthropic.Key)
	case "serve":
		requireKey("jina.key", c.Jina.Key)
		requireKey("perplexity.key", c.Perplexity.Key)
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
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
