package cost

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/listing-resolver/internal/llm"
	"github.com/sells-group/listing-resolver/pkg/perplexity"
)

// Totals is a snapshot of metered usage.
type Totals struct {
	Completions     int     `json:"completions"`
	InputTokens     int     `json:"inputTokens"`
	OutputTokens    int     `json:"outputTokens"`
	ResearchQueries int     `json:"researchQueries"`
	ResearchTokens  int     `json:"researchTokens"`
	USD             float64 `json:"usd"`
}

// Tracker accumulates usage. It is safe for concurrent use.
type Tracker struct {
	calc *Calculator

	mu     sync.Mutex
	totals Totals
}

// NewTracker creates a Tracker pricing usage with calc.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc}
}

// AddCompletion records one completion.
func (t *Tracker) AddCompletion(model string, input, output int) {
	usd := t.calc.Completion(model, input, output)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.Completions++
	t.totals.InputTokens += input
	t.totals.OutputTokens += output
	t.totals.USD += usd
}

// AddResearch records one research query.
func (t *Tracker) AddResearch(tokens int) {
	usd := t.calc.PerplexityQuery(tokens)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.ResearchQueries++
	t.totals.ResearchTokens += tokens
	t.totals.USD += usd
}

// Totals returns the usage recorded so far.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// Log writes the totals at info level.
func (t *Tracker) Log(msg string) {
	tot := t.Totals()
	zap.L().Info(msg,
		zap.Int("completions", tot.Completions),
		zap.Int("input_tokens", tot.InputTokens),
		zap.Int("output_tokens", tot.OutputTokens),
		zap.Int("research_queries", tot.ResearchQueries),
		zap.Int("research_tokens", tot.ResearchTokens),
		zap.Float64("usd", tot.USD),
	)
}

// MeterCompleter records the usage of every successful completion.
func (t *Tracker) MeterCompleter(next llm.Completer) llm.Completer {
	return llm.Func(func(ctx context.Context, prompt string) (*llm.Completion, error) {
		c, err := next.Complete(ctx, prompt)
		if err != nil {
			return c, err
		}
		t.AddCompletion(c.Model, c.InputTokens, c.OutputTokens)
		return c, nil
	})
}

// MeterPerplexity records the usage of every successful research call.
func (t *Tracker) MeterPerplexity(next perplexity.Client) perplexity.Client {
	return &meteredPerplexity{next: next, tracker: t}
}

type meteredPerplexity struct {
	next    perplexity.Client
	tracker *Tracker
}

func (m *meteredPerplexity) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	resp, err := m.next.ChatCompletion(ctx, req)
	if err != nil {
		return resp, err
	}
	m.tracker.AddResearch(resp.Usage.TotalTokens)
	return resp, nil
}
