// Package research asks a web-search-backed model about a vehicle field.
// Failures never escape: the caller always gets a Result, zero-confidence
// when the collaborator could not answer.
package research

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/resilience"
	"github.com/sells-group/listing-resolver/pkg/perplexity"
)

// Result is the outcome of one research call.
type Result struct {
	Query      string   `json:"query"`
	Vehicle    string   `json:"vehicle"`
	Text       string   `json:"resultText"`
	Confidence int      `json:"confidence"`
	Sources    []string `json:"sources"`
	TokensUsed int      `json:"tokensUsed,omitempty"`
	Cached     bool     `json:"cached,omitempty"`
	Err        error    `json:"-"`
}

// Failed reports whether the result is a degraded stand-in for a failed call.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Config tunes the researcher.
type Config struct {
	Timeout          time.Duration
	RatePerSec       float64
	Burst            int
	CacheSize        int
	CacheTTL         time.Duration
	Retry            resilience.Policy
	BreakerThreshold int
	BreakerCoolDown  time.Duration
}

// DefaultConfig returns three attempts with doubling backoff from 1s, a 60s
// timeout and one request per second.
func DefaultConfig() Config {
	return Config{
		Timeout:          60 * time.Second,
		RatePerSec:       1,
		Burst:            2,
		CacheSize:        512,
		CacheTTL:         6 * time.Hour,
		Retry:            resilience.NewPolicy(3, 1000, 8000, 2),
		BreakerThreshold: 5,
		BreakerCoolDown:  time.Minute,
	}
}

// Researcher implements the research step over Perplexity.
type Researcher struct {
	client    perplexity.Client
	templates TemplateSource
	cfg       Config
	limiter   *rate.Limiter
	cache     *expirable.LRU[string, Result]
	breaker   *resilience.Breaker
}

// New creates a Researcher. templates may be nil.
func New(client perplexity.Client, templates TemplateSource, cfg Config) *Researcher {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	cfg.Retry.ShouldRetry = resilience.IsTransient
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("perplexity", "chat_completion")
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	r := &Researcher{
		client:    client,
		templates: templates,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		breaker: resilience.NewBreaker("perplexity", cfg.BreakerThreshold, cfg.BreakerCoolDown,
			resilience.WithStateChange(func(name string, from, to resilience.BreakerState) {
				zap.L().Warn("research breaker state change",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			}),
		),
	}
	if cfg.CacheSize > 0 {
		r.cache = expirable.NewLRU[string, Result](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return r
}

// Research answers the research question for req. It never returns an
// error; see Result.Err.
func (r *Researcher) Research(ctx context.Context, req model.FieldRequest, fc model.FieldContext) Result {
	vehicle := VehicleFromContext(fc)
	query := BuildQuery(r.templates, req, vehicle)
	res := Result{Query: query, Vehicle: vehicle.String(), Sources: []string{}}

	key := res.Vehicle + "|" + query
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			cached.Cached = true
			return cached
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	resp, err := resilience.Call(ctx, r.breaker, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return resilience.DoVal(ctx, r.cfg.Retry, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "research: rate limit wait")
			}
			return r.call(ctx, query)
		})
	})
	if err != nil {
		zap.L().Warn("research failed, continuing without result",
			zap.String("field", req.FieldName),
			zap.String("vehicle", res.Vehicle),
			zap.Bool("rate_limited", resilience.IsRateLimited(err)),
			zap.Error(err),
		)
		res.Err = err
		return res
	}

	res.Text = resp.Text()
	if src := resp.Sources(); len(src) > 0 {
		res.Sources = src
	}
	res.TokensUsed = resp.Usage.TotalTokens
	res.Confidence = DeriveConfidence(res.Text, res.Sources)

	if r.cache != nil && res.Text != "" {
		r.cache.Add(key, res)
	}
	return res
}

func (r *Researcher) call(ctx context.Context, query string) (*perplexity.ChatCompletionResponse, error) {
	temp := 0.1
	resp, err := r.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *perplexity.APIError
		if errors.As(err, &apiErr) {
			return nil, resilience.StatusError(err, apiErr.StatusCode)
		}
		return nil, err
	}
	return resp, nil
}

// BreakerState exposes the research breaker state for health reporting.
func (r *Researcher) BreakerState() resilience.BreakerState {
	return r.breaker.State()
}
