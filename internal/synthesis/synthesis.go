// Package synthesis asks the language model for a final field value from
// the evidence gathered by the resolver.
package synthesis

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-resolver/internal/llm"
	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/research"
)

// DefaultTimeout bounds one synthesis call.
const DefaultTimeout = 30 * time.Second

// Input is everything the resolver has gathered for one field.
type Input struct {
	Request  model.FieldRequest
	Vehicle  string
	Thoughts []model.AgentThought
	Attempts []model.ScoredValue
	Research []research.Result

	// PreviousValue and PreviousFailure describe a rejected attempt on retry.
	PreviousValue   any
	PreviousFailure string
}

// Outcome is a parsed synthesis reply.
type Outcome struct {
	Reply
	Raw          string
	InputTokens  int
	OutputTokens int
}

// Synthesizer runs analysis and synthesis prompts against a Completer.
type Synthesizer struct {
	completer llm.Completer
	timeout   time.Duration
}

// New creates a Synthesizer. timeout <= 0 uses DefaultTimeout.
func New(completer llm.Completer, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Synthesizer{completer: completer, timeout: timeout}
}

// Synthesize proposes a value. Completer errors and timeouts are returned;
// the caller treats them as fatal.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.completer.Complete(ctx, BuildPrompt(in))
	if err != nil {
		return Outcome{}, eris.Wrapf(err, "synthesis: complete %s", in.Request.FieldName)
	}
	return Outcome{
		Reply:        Parse(c.Text, in.Request),
		Raw:          c.Text,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
	}, nil
}

// Analyze asks the model what is being searched for and which evidence is
// relevant.
func (s *Synthesizer) Analyze(ctx context.Context, req model.FieldRequest, fc model.FieldContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.completer.Complete(ctx, BuildAnalysisPrompt(req, fc))
	if err != nil {
		return "", eris.Wrapf(err, "synthesis: analyze %s", req.FieldName)
	}
	note := strings.TrimSpace(c.Text)
	if note == "" {
		return "", eris.Errorf("synthesis: analyze %s: empty reply", req.FieldName)
	}
	return note, nil
}

// Complete exposes the underlying completer for other constrained prompts.
func (s *Synthesizer) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return "", eris.Wrap(err, "synthesis: complete")
	}
	return c.Text, nil
}
