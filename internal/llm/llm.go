// Package llm provides the language-model completers used for the analysis
// and synthesis steps.
package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// Completion is a provider-neutral completion result.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Supported providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
)

// Config selects and configures a provider.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	System    string
}

const defaultMaxTokens = 512

// Default models per provider.
var defaultModels = map[string]string{
	ProviderAnthropic: "claude-haiku-4-5-20251001",
	ProviderGemini:    "gemini-2.5-flash",
	ProviderOpenAI:    "gpt-4o-mini",
}

func (c Config) withDefaults() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderAnthropic
	}
	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

// NewCompleter builds the completer for cfg.Provider.
func NewCompleter(ctx context.Context, cfg Config) (Completer, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, eris.Errorf("llm: %s api key is not set", cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return nil, eris.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}

// Func adapts a function to Completer.
type Func func(ctx context.Context, prompt string) (*Completion, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, prompt string) (*Completion, error) {
	return f(ctx, prompt)
}
