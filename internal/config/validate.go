package config

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-resolver/internal/llm"
	"github.com/sells-group/listing-resolver/internal/store"
)

// Validate checks that the settings a command mode needs are present and
// in range. Modes: "resolve", "serve", "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "resolve":
		errs = append(errs, c.validateResolve()...)
	case "serve":
		errs = append(errs, c.validateResolve()...)
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "migrate":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateResolve() []string {
	var errs []string

	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderAnthropic, llm.ProviderGemini, llm.ProviderOpenAI:
		if c.Completer().APIKey == "" {
			errs = append(errs, c.LLM.Provider+".key is required")
		}
	default:
		errs = append(errs, "llm.provider must be anthropic, gemini or openai")
	}
	if c.Agent.EnableResearch && c.Perplexity.Key == "" {
		errs = append(errs, "perplexity.key is required when agent.enable_research is set")
	}

	a := c.Agent
	if a.MaxRetries < 0 || a.MaxRetries > 10 {
		errs = append(errs, "agent.max_retries must be between 0 and 10")
	}
	if a.MinConfidenceThreshold < 0 || a.MinConfidenceThreshold > 100 {
		errs = append(errs, "agent.min_confidence_threshold must be between 0 and 100")
	}
	if a.RelaxedEnumThreshold < 0 || a.RelaxedEnumThreshold > 100 {
		errs = append(errs, "agent.relaxed_enum_threshold must be between 0 and 100")
	}
	if c.Batch.Concurrency < 0 || c.Batch.Concurrency > 32 {
		errs = append(errs, "batch.concurrency must be between 0 and 32")
	}
	if c.Batch.InterFieldDelayMs < 0 {
		errs = append(errs, "batch.inter_field_delay_ms must be >= 0")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch strings.ToLower(c.Store.Driver) {
	case store.DriverPostgres, "pgx":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
	case store.DriverSQLite, "":
	default:
		return []string{"store.driver must be postgres or sqlite"}
	}
	return nil
}
