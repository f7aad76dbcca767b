package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-resolver/pkg/anthropic"
)

// Anthropic completes prompts with Claude.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    string
}

// NewAnthropic creates an Anthropic completer.
func NewAnthropic(cfg Config) *Anthropic {
	cfg = cfg.withDefaults()
	var opts []option.RequestOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return NewAnthropicWithClient(anthropic.NewClient(cfg.APIKey, opts...), cfg)
}

// NewAnthropicWithClient wraps an existing client.
func NewAnthropicWithClient(client anthropic.Client, cfg Config) *Anthropic {
	cfg = cfg.withDefaults()
	return &Anthropic{
		client:    client,
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		system:    cfg.System,
	}
}

// Complete sends prompt as a single user message.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (*Completion, error) {
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}
	if a.system != "" {
		req.System = anthropic.CachedSystem(a.system)
	}

	resp, err := a.client.CreateMessage(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "llm: anthropic complete")
	}
	resp.Usage.LogCost(a.model, "completion")

	return &Completion{
		Text:         resp.Text(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Model:        resp.Model,
	}, nil
}
