package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Gemini completes prompts with Google Gemini.
type Gemini struct {
	cli       *genai.Client
	model     string
	maxTokens int32
	system    string
}

// NewGemini creates a Gemini completer.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cfg = cfg.withDefaults()
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "llm: gemini client")
	}
	return &Gemini{cli: cli, model: cfg.Model, maxTokens: int32(cfg.MaxTokens), system: cfg.System}, nil
}

// Complete sends prompt as a single user turn.
func (g *Gemini) Complete(ctx context.Context, prompt string) (*Completion, error) {
	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: g.maxTokens,
	}
	if g.system != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: g.system}}}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: prompt}}}},
		gc,
	)
	if err != nil {
		return nil, eris.Wrap(err, "llm: gemini complete")
	}
	if len(resp.Candidates) == 0 {
		return nil, eris.New("llm: gemini returned no candidates")
	}

	out := &Completion{Text: resp.Text(), Model: g.model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
