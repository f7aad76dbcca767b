// Package resolve runs the field resolution pipeline: analyze, extract from
// context, research, synthesize and validate with bounded retries.
package resolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/research"
	"github.com/sells-group/listing-resolver/internal/synthesis"
	"github.com/sells-group/listing-resolver/internal/validate"
)

// Extractor collects candidate values in adapter order.
type Extractor interface {
	Collect(ctx context.Context, field string, fc model.FieldContext) []model.ScoredValue
}

// Researcher answers a research question. It must not fail; degraded
// results carry Err.
type Researcher interface {
	Research(ctx context.Context, req model.FieldRequest, fc model.FieldContext) research.Result
}

// Synthesizer is the language-model collaborator.
type Synthesizer interface {
	Analyze(ctx context.Context, req model.FieldRequest, fc model.FieldContext) (string, error)
	Synthesize(ctx context.Context, in synthesis.Input) (synthesis.Outcome, error)
}

// Agent resolves single fields. It holds no per-request state and is safe
// for concurrent use.
type Agent struct {
	extractor  Extractor
	researcher Researcher
	synth      Synthesizer
	cfg        Config
	now        func() time.Time
}

// Option configures an Agent.
type Option func(*Agent)

// WithClock injects the time source used for thought timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates an Agent. researcher may be nil, which disables research.
func New(extractor Extractor, researcher Researcher, synth Synthesizer, cfg Config, opts ...Option) *Agent {
	a := &Agent{
		extractor:  extractor,
		researcher: researcher,
		synth:      synth,
		cfg:        cfg.normalized(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Config returns the agent's configuration.
func (a *Agent) Config() Config {
	return a.cfg
}

// Result is the full record of one resolution.
type Result struct {
	Resolution      model.FieldResolution `json:"resolution"`
	Thoughts        []model.AgentThought  `json:"thoughts"`
	Attempts        []model.ScoredValue   `json:"attempts"`
	Research        []research.Result     `json:"research,omitempty"`
	RetryCount      int                   `json:"retryCount"`
	ResearchInvoked bool                  `json:"researchInvoked"`
	Fallback        bool                  `json:"fallback,omitempty"`
	Path            []State               `json:"-"`
}

// run is the working state of one resolution.
type run struct {
	id      string
	req     model.FieldRequest
	fc      model.FieldContext
	cfg     Config
	log     *zap.Logger
	res     *Result
	failure validate.Result
}

// Resolve runs the pipeline with the agent's configuration.
func (a *Agent) Resolve(ctx context.Context, req model.FieldRequest, fc model.FieldContext) (*Result, error) {
	return a.ResolveWith(ctx, req, fc, a.cfg)
}

// ResolveWith runs the pipeline with cfg instead of the agent's
// configuration. The returned Result is non-nil even on error and holds the
// thoughts recorded up to the failure.
func (a *Agent) ResolveWith(ctx context.Context, req model.FieldRequest, fc model.FieldContext, cfg Config) (*Result, error) {
	r := &run{
		id:  uuid.NewString(),
		req: req,
		fc:  fc,
		cfg: cfg.normalized(),
		res: &Result{Attempts: []model.ScoredValue{}},
	}
	r.log = zap.L().With(zap.String("field", req.FieldName), zap.String("run_id", r.id))
	r.res.Resolution.FieldName = req.FieldName

	state := StateAnalyze
	for state != StateEnd {
		r.res.Path = append(r.res.Path, state)
		r.log.Debug("pipeline step", zap.Stringer("state", state), zap.Int("retry", r.res.RetryCount))

		var err error
		switch state {
		case StateAnalyze:
			state, err = a.analyze(ctx, r)
		case StateExtract:
			state = a.extract(ctx, r)
		case StateResearch:
			state = a.performResearch(ctx, r)
		case StateSynthesize:
			state, err = a.synthesize(ctx, r)
		case StateValidate:
			state, err = a.validate(r)
		default:
			err = &ResolutionError{Kind: ErrInvalidRequest, Field: req.FieldName, Reason: fmt.Sprintf("unknown state %d", state)}
		}
		if err != nil {
			r.res.Path = append(r.res.Path, StateEnd)
			r.log.Debug("pipeline failed", zap.Error(err))
			return r.res, err
		}
	}
	r.res.Path = append(r.res.Path, StateEnd)
	return r.res, nil
}

func (a *Agent) think(r *run, step, reasoning string, confidence *int) {
	t := model.AgentThought{Step: step, Reasoning: reasoning, Timestamp: a.now(), Confidence: confidence}
	r.res.Thoughts = append(r.res.Thoughts, t)
	if r.cfg.Debug {
		r.log.Info("agent thought", zap.String("step", step), zap.String("reasoning", reasoning))
	}
}

func (a *Agent) analyze(ctx context.Context, r *run) (State, error) {
	if err := r.req.Validate(); err != nil {
		return StateEnd, &ResolutionError{Kind: ErrInvalidRequest, Field: r.req.FieldName, Err: err}
	}

	if r.cfg.LLMAnalysis && a.synth != nil {
		note, err := a.synth.Analyze(ctx, r.req, r.fc)
		if err != nil {
			a.think(r, StateAnalyze.String(), "Analysis failed: "+err.Error(), nil)
			return StateEnd, &ResolutionError{Kind: ErrAnalysis, Field: r.req.FieldName, Err: err}
		}
		a.think(r, StateAnalyze.String(), note, nil)
		return StateExtract, nil
	}

	a.think(r, StateAnalyze.String(), analysisNote(r.req, r.fc), nil)
	return StateExtract, nil
}

// analysisNote is the deterministic analysis used without a language model.
func analysisNote(req model.FieldRequest, fc model.FieldContext) string {
	var sources []string
	if fc.ExtractedData.Len() > 0 {
		sources = append(sources, "extracted data")
	}
	if fc.EnrichedData.Vehicle != nil {
		sources = append(sources, "enriched data")
	}
	if len(fc.CurrentFormData) > 0 {
		sources = append(sources, "form data")
	}
	if fc.PDFText != "" {
		sources = append(sources, "document text")
	}
	target := req.FieldName
	if req.Label != "" {
		target = fmt.Sprintf("%s (%s)", req.Label, req.FieldName)
	}
	if len(sources) == 0 {
		return fmt.Sprintf("Searching for %s of type %s; no context available", target, req.FieldType)
	}
	return fmt.Sprintf("Searching for %s of type %s in %s", target, req.FieldType, strings.Join(sources, ", "))
}

func (a *Agent) extract(ctx context.Context, r *run) State {
	var candidates []model.ScoredValue
	if a.extractor != nil {
		candidates = a.extractor.Collect(ctx, r.req.FieldName, r.fc)
	}
	kept := candidates[:0]
	for _, c := range candidates {
		c.Value = synthesis.Coerce(c.Value, r.req)
		if model.IsEmpty(c.Value) {
			continue
		}
		c.Confidence = model.ClampConfidence(c.Confidence)
		kept = append(kept, c)
	}
	ranked := model.RankScored(kept)
	r.res.Attempts = ranked

	threshold := r.cfg.threshold(r.req.IsRequiredEnum())
	best, ok := model.BestScored(ranked)
	if ok && !model.IsEmpty(best.Value) && best.Confidence >= threshold {
		conf := best.Confidence
		a.think(r, StateExtract.String(),
			fmt.Sprintf("Accepted %v from %s (confidence %d >= %d)", model.ToString(best.Value), best.Source, conf, threshold), &conf)
		r.res.Resolution = model.FieldResolution{
			FieldName:  r.req.FieldName,
			Value:      best.Value,
			Confidence: conf,
			Reasoning:  best.Reasoning,
			Sources:    []string{string(best.Source)},
		}
		return StateValidate
	}

	if ok {
		conf := best.Confidence
		a.think(r, StateExtract.String(),
			fmt.Sprintf("Best candidate %v from %s below threshold %d", model.ToString(best.Value), best.Source, threshold), &conf)
	} else {
		a.think(r, StateExtract.String(), "No candidates found in context", nil)
	}

	if r.cfg.EnableResearch && a.researcher != nil {
		return StateResearch
	}
	return StateSynthesize
}

func (a *Agent) performResearch(ctx context.Context, r *run) State {
	if r.cfg.ResearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ResearchTimeout)
		defer cancel()
	}

	r.res.ResearchInvoked = true
	res := a.researcher.Research(ctx, r.req, r.fc)
	r.res.Research = append(r.res.Research, res)

	if res.Failed() {
		r.log.Warn("research failed", zap.Error(res.Err))
		zero := 0
		a.think(r, StateResearch.String(), "Research failed, continuing with available evidence", &zero)
		return StateSynthesize
	}
	conf := res.Confidence
	a.think(r, StateResearch.String(), fmt.Sprintf("Research for %q returned %d sources", res.Query, len(res.Sources)), &conf)
	return StateSynthesize
}

func (a *Agent) synthesize(ctx context.Context, r *run) (State, error) {
	if a.synth == nil {
		return StateEnd, &ResolutionError{Kind: ErrSynthesis, Field: r.req.FieldName, Reason: "no synthesizer configured"}
	}
	if r.cfg.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SynthesisTimeout)
		defer cancel()
	}

	in := synthesis.Input{
		Request:  r.req,
		Vehicle:  research.VehicleFromContext(r.fc).String(),
		Thoughts: r.res.Thoughts,
		Attempts: r.res.Attempts,
		Research: r.res.Research,
	}
	if !r.failure.Valid && r.failure.Reason != "" {
		in.PreviousValue = r.res.Resolution.Value
		in.PreviousFailure = r.failure.Reason
	}

	out, err := a.synth.Synthesize(ctx, in)
	if err != nil {
		a.think(r, StateSynthesize.String(), "Synthesis failed: "+err.Error(), nil)
		return StateEnd, &ResolutionError{Kind: ErrSynthesis, Field: r.req.FieldName, Err: err}
	}

	conf := out.Confidence
	r.res.Fallback = out.Fallback
	r.res.Resolution = model.FieldResolution{
		FieldName:  r.req.FieldName,
		Value:      out.Value,
		Confidence: conf,
		Reasoning:  out.Reasoning,
		Sources:    synthesisSources(r.res),
	}
	a.think(r, StateSynthesize.String(), fmt.Sprintf("Proposed %v: %s", model.ToString(out.Value), out.Reasoning), &conf)
	return StateValidate, nil
}

// synthesisSources lists the evidence a synthesized value drew on: source
// tags of candidates in rank order, then research with its citations.
func synthesisSources(res *Result) []string {
	seen := make(map[string]bool)
	out := []string{}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, a := range res.Attempts {
		add(string(a.Source))
	}
	for _, rr := range res.Research {
		if rr.Failed() || rr.Text == "" {
			continue
		}
		add(string(model.SourcePerplexityResearch))
		for _, s := range rr.Sources {
			add(s)
		}
	}
	return out
}

func (a *Agent) validate(r *run) (State, error) {
	v := validate.Value(r.req, r.res.Resolution.Value)
	if v.Valid {
		res := &r.res.Resolution
		res.Confidence = model.ClampConfidence(res.Confidence)
		res.NeedsReview = r.res.Fallback || res.Confidence < r.cfg.MinConfidenceThreshold
		conf := res.Confidence
		a.think(r, StateValidate.String(), "Value passed validation", &conf)
		return StateEnd, nil
	}

	if v.Reason == validate.ReasonRequiredEnumEmpty {
		r.log.Error("required enum reached validation empty")
	}
	r.failure = v
	if r.res.RetryCount < r.cfg.MaxRetries {
		r.res.RetryCount++
		a.think(r, StateValidate.String(),
			fmt.Sprintf("Validation failed (%s), retry %d of %d", v.Reason, r.res.RetryCount, r.cfg.MaxRetries), nil)
		return StateSynthesize, nil
	}

	a.think(r, StateValidate.String(), "Validation failed, retries exhausted: "+v.Reason, nil)
	return StateEnd, &ResolutionError{Kind: ErrRetriesExhausted, Field: r.req.FieldName, Reason: v.Reason}
}
