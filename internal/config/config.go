package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/listing-resolver/internal/llm"
	"github.com/sells-group/listing-resolver/internal/orchestrator"
	"github.com/sells-group/listing-resolver/internal/research"
	"github.com/sells-group/listing-resolver/internal/resilience"
	"github.com/sells-group/listing-resolver/internal/resolve"
	"github.com/sells-group/listing-resolver/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Agent      AgentConfig      `yaml:"agent" mapstructure:"agent"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Similar    SimilarConfig    `yaml:"similar" mapstructure:"similar"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AgentConfig configures the resolution pipeline.
type AgentConfig struct {
	MaxRetries             int  `yaml:"max_retries" mapstructure:"max_retries"`
	MinConfidenceThreshold int  `yaml:"min_confidence_threshold" mapstructure:"min_confidence_threshold"`
	RelaxedEnumThreshold   int  `yaml:"relaxed_enum_threshold" mapstructure:"relaxed_enum_threshold"`
	EnableResearch         bool `yaml:"enable_research" mapstructure:"enable_research"`
	LLMAnalysis            bool `yaml:"llm_analysis" mapstructure:"llm_analysis"`
	Debug                  bool `yaml:"debug" mapstructure:"debug"`
	SynthesisTimeoutSecs   int  `yaml:"synthesis_timeout_secs" mapstructure:"synthesis_timeout_secs"`
	ResearchTimeoutSecs    int  `yaml:"research_timeout_secs" mapstructure:"research_timeout_secs"`
}

// ToAgent converts to the pipeline configuration. Non-positive timeouts
// keep the pipeline defaults.
func (c AgentConfig) ToAgent() resolve.Config {
	out := resolve.DefaultConfig()
	out.MaxRetries = c.MaxRetries
	out.MinConfidenceThreshold = c.MinConfidenceThreshold
	out.RelaxedEnumThreshold = c.RelaxedEnumThreshold
	out.EnableResearch = c.EnableResearch
	out.LLMAnalysis = c.LLMAnalysis
	out.Debug = c.Debug
	if c.SynthesisTimeoutSecs > 0 {
		out.SynthesisTimeout = time.Duration(c.SynthesisTimeoutSecs) * time.Second
	}
	if c.ResearchTimeoutSecs > 0 {
		out.ResearchTimeout = time.Duration(c.ResearchTimeoutSecs) * time.Second
	}
	return out
}

// LLMConfig selects the synthesis provider.
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds settings for OpenAI-compatible APIs.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// Completer returns the llm configuration for the selected provider. The
// llm.model setting wins over the provider's own model setting.
func (c *Config) Completer() llm.Config {
	out := llm.Config{
		Provider:  strings.ToLower(c.LLM.Provider),
		Model:     c.LLM.Model,
		MaxTokens: c.LLM.MaxTokens,
	}
	var model string
	switch out.Provider {
	case llm.ProviderAnthropic:
		out.APIKey, model = c.Anthropic.Key, c.Anthropic.Model
	case llm.ProviderGemini:
		out.APIKey, model = c.Gemini.Key, c.Gemini.Model
	case llm.ProviderOpenAI:
		out.APIKey, model, out.BaseURL = c.OpenAI.Key, c.OpenAI.Model, c.OpenAI.BaseURL
	}
	if out.Model == "" {
		out.Model = model
	}
	return out
}

// PerplexityConfig holds Perplexity API settings and research tuning.
type PerplexityConfig struct {
	Key                   string  `yaml:"key" mapstructure:"key"`
	BaseURL               string  `yaml:"base_url" mapstructure:"base_url"`
	Model                 string  `yaml:"model" mapstructure:"model"`
	RatePerSec            float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CacheSize             int     `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLMins          int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	RetryAttempts         int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryInitialBackoffMs int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
}

// ToResearch converts to the researcher configuration.
func (c PerplexityConfig) ToResearch(timeout time.Duration) research.Config {
	out := research.DefaultConfig()
	if timeout > 0 {
		out.Timeout = timeout
	}
	if c.RatePerSec > 0 {
		out.RatePerSec = c.RatePerSec
	}
	if c.CacheSize > 0 {
		out.CacheSize = c.CacheSize
	}
	if c.CacheTTLMins > 0 {
		out.CacheTTL = time.Duration(c.CacheTTLMins) * time.Minute
	}
	if c.RetryAttempts > 0 {
		backoff := c.RetryInitialBackoffMs
		if backoff <= 0 {
			backoff = 1000
		}
		out.Retry = resilience.NewPolicy(c.RetryAttempts, backoff, backoff*8, 2)
	}
	return out
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ToStore converts to the store configuration.
func (c StoreConfig) ToStore() store.Config {
	out := store.Config{Driver: c.Driver, DatabaseURL: c.DatabaseURL}
	if c.MaxConns > 0 || c.MinConns > 0 {
		out.Pool = &store.PoolConfig{MaxConns: c.MaxConns, MinConns: c.MinConns}
	}
	return out
}

// BatchConfig configures category runs.
type BatchConfig struct {
	Concurrency       int `yaml:"concurrency" mapstructure:"concurrency"`
	InterFieldDelayMs int `yaml:"inter_field_delay_ms" mapstructure:"inter_field_delay_ms"`
	StreamBuffer      int `yaml:"stream_buffer" mapstructure:"stream_buffer"`
}

// ToOrchestrator converts to the orchestrator configuration.
func (c BatchConfig) ToOrchestrator() orchestrator.Config {
	return orchestrator.Config{
		Concurrency:     c.Concurrency,
		InterFieldDelay: time.Duration(c.InterFieldDelayMs) * time.Millisecond,
		StreamBuffer:    c.StreamBuffer,
	}
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeout int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// SimilarConfig configures the similar-vehicle adapter.
type SimilarConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Limit   int  `yaml:"limit" mapstructure:"limit"`
}

// CatalogConfig points at an optional field catalog file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from an optional .env file, config.yaml and the
// environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a real default are registered so env values reach Unmarshal.
	for _, key := range []string{
		"llm.model", "anthropic.key", "gemini.key", "openai.key", "openai.base_url",
		"perplexity.key", "catalog.path",
	} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("agent.max_retries", resolve.DefaultMaxRetries)
	v.SetDefault("agent.min_confidence_threshold", resolve.DefaultMinConfidenceThreshold)
	v.SetDefault("agent.relaxed_enum_threshold", resolve.DefaultRelaxedEnumThreshold)
	v.SetDefault("agent.enable_research", true)
	v.SetDefault("agent.llm_analysis", true)
	v.SetDefault("agent.debug", false)
	v.SetDefault("agent.synthesis_timeout_secs", 30)
	v.SetDefault("agent.research_timeout_secs", 60)
	v.SetDefault("llm.provider", llm.ProviderAnthropic)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.rate_per_sec", 1.0)
	v.SetDefault("perplexity.cache_size", 512)
	v.SetDefault("perplexity.cache_ttl_mins", 360)
	v.SetDefault("perplexity.retry_attempts", 3)
	v.SetDefault("perplexity.retry_initial_backoff_ms", 1000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "listing-resolver.db")
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.inter_field_delay_ms", 500)
	v.SetDefault("batch.stream_buffer", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 300)
	v.SetDefault("similar.enabled", true)
	v.SetDefault("similar.limit", 10)
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
