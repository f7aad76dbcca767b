package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-resolver/internal/llm"
	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/research"
	"github.com/sells-group/listing-resolver/internal/synthesis"
)

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Collect(ctx context.Context, field string, fc model.FieldContext) []model.ScoredValue {
	args := m.Called(ctx, field, fc)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.ScoredValue)
}

type mockResearcher struct {
	mock.Mock
}

func (m *mockResearcher) Research(ctx context.Context, req model.FieldRequest, fc model.FieldContext) research.Result {
	args := m.Called(ctx, req, fc)
	return args.Get(0).(research.Result)
}

// scriptedLLM answers analysis prompts with a fixed note and synthesis
// prompts with the next scripted reply, repeating the last one.
type scriptedLLM struct {
	mu          sync.Mutex
	replies     []string
	analyzeErr  error
	synthErr    error
	prompts     []string
	synthCalls  int
	analyzeHits int
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string) (*llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.Contains(prompt, "Do not answer with a value") {
		s.analyzeHits++
		if s.analyzeErr != nil {
			return nil, s.analyzeErr
		}
		return &llm.Completion{Text: "Looking for the value in extracted data."}, nil
	}
	s.prompts = append(s.prompts, prompt)
	s.synthCalls++
	if s.synthErr != nil {
		return nil, s.synthErr
	}
	i := s.synthCalls - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return &llm.Completion{Text: s.replies[i]}, nil
}

func ptr[T any](v T) *T { return &v }

var (
	powerReq = model.FieldRequest{
		FieldName:   "power_ps",
		FieldType:   model.FieldTypeNumber,
		Constraints: model.Constraints{Min: ptr(1.0), Max: ptr(2000.0)},
	}
	vehicleTypeReq = model.FieldRequest{
		FieldName: "vehicle_type",
		FieldType: model.FieldTypeEnum,
		Constraints: model.Constraints{
			EnumOptions: []string{"SUV", "Limousine", "Kombi"},
			Required:    true,
		},
	}
)

func noAnalysis() Config {
	cfg := DefaultConfig()
	cfg.LLMAnalysis = false
	return cfg
}

func newAgent(ex Extractor, r Researcher, l *scriptedLLM, cfg Config) *Agent {
	var synth Synthesizer
	if l != nil {
		synth = synthesis.New(l, time.Second)
	}
	return New(ex, r, synth, cfg)
}

func TestResolve_DirectHitSkipsResearch(t *testing.T) {
	fc := model.FieldContext{ExtractedData: model.NewExtractedData(map[string]any{"power_ps": 150})}
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, "power_ps", fc).Return([]model.ScoredValue{
		{Value: 150, Confidence: 85, Source: model.SourceAIExtraction, Reasoning: "Found power_ps in extracted document data"},
	})
	rs := &mockResearcher{}
	l := &scriptedLLM{replies: []string{"VALUE: 1"}}

	res, err := newAgent(ex, rs, l, noAnalysis()).Resolve(context.Background(), powerReq, fc)
	require.NoError(t, err)

	assert.Equal(t, 150.0, res.Resolution.Value)
	assert.Equal(t, 85, res.Resolution.Confidence)
	assert.Equal(t, []string{"ai_extraction"}, res.Resolution.Sources)
	assert.False(t, res.Resolution.NeedsReview)
	assert.False(t, res.ResearchInvoked)
	assert.Equal(t, 0, res.RetryCount)
	assert.Equal(t, []State{StateAnalyze, StateExtract, StateValidate, StateEnd}, res.Path)
	rs.AssertNotCalled(t, "Research", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, l.synthCalls)
}

func TestResolve_BlankCandidateDoesNotHideDirectHit(t *testing.T) {
	for _, blank := range []any{"-", "none", " n/a "} {
		t.Run(fmt.Sprint(blank), func(t *testing.T) {
			fc := model.FieldContext{ExtractedData: model.NewExtractedData(map[string]any{"power_ps": 150})}
			ex := &mockExtractor{}
			ex.On("Collect", mock.Anything, "power_ps", fc).Return([]model.ScoredValue{
				{Value: blank, Confidence: 100, Source: model.SourceUserInput},
				{Value: 150, Confidence: 85, Source: model.SourceAIExtraction},
			})
			rs := &mockResearcher{}
			l := &scriptedLLM{replies: []string{"VALUE: 140\nCONFIDENCE: 40"}}

			res, err := newAgent(ex, rs, l, noAnalysis()).Resolve(context.Background(), powerReq, fc)
			require.NoError(t, err)

			assert.Equal(t, 150.0, res.Resolution.Value)
			assert.Equal(t, 85, res.Resolution.Confidence)
			assert.False(t, res.ResearchInvoked)
			require.Len(t, res.Attempts, 1)
			assert.Equal(t, model.SourceAIExtraction, res.Attempts[0].Source)
			rs.AssertNotCalled(t, "Research", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, 0, l.synthCalls)
		})
	}
}

func TestResolve_RequiredEnumFallback(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, "vehicle_type", mock.Anything).Return(nil)
	rs := &mockResearcher{}
	rs.On("Research", mock.Anything, mock.Anything, mock.Anything).Return(research.Result{Query: "q", Text: "keine Angaben", Confidence: 20})
	l := &scriptedLLM{replies: []string{"VALUE: null\nCONFIDENCE: 0\nREASONING: nothing found"}}

	res, err := newAgent(ex, rs, l, noAnalysis()).Resolve(context.Background(), vehicleTypeReq, model.FieldContext{})
	require.NoError(t, err)

	assert.Equal(t, "SUV", res.Resolution.Value)
	assert.Equal(t, EnumFallbackConfidence, res.Resolution.Confidence)
	assert.Equal(t, "Fallback to first available option", res.Resolution.Reasoning)
	assert.True(t, res.Resolution.NeedsReview)
	assert.True(t, res.Fallback)
	assert.True(t, res.ResearchInvoked)
	assert.Equal(t, []State{StateAnalyze, StateExtract, StateResearch, StateSynthesize, StateValidate, StateEnd}, res.Path)
}

func TestResolve_ValidationRetryThenSuccess(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	l := &scriptedLLM{replies: []string{
		"VALUE: 5000\nCONFIDENCE: 80\nREASONING: misread",
		"VALUE: 190\nCONFIDENCE: 85\nREASONING: datasheet",
	}}
	cfg := noAnalysis()
	cfg.EnableResearch = false

	res, err := newAgent(ex, nil, l, cfg).Resolve(context.Background(), powerReq, model.FieldContext{})
	require.NoError(t, err)

	assert.Equal(t, 190.0, res.Resolution.Value)
	assert.Equal(t, 85, res.Resolution.Confidence)
	assert.Equal(t, 1, res.RetryCount)
	assert.False(t, res.ResearchInvoked)
	require.Len(t, l.prompts, 2)
	assert.NotContains(t, l.prompts[0], "rejected")
	assert.Contains(t, l.prompts[1], `previous answer "5000" was rejected: 5000 is above the maximum of 2000`)
}

func TestResolve_RetriesExhausted(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 2, 4} {
		t.Run(fmt.Sprintf("max_%d", maxRetries), func(t *testing.T) {
			ex := &mockExtractor{}
			ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return(nil)
			l := &scriptedLLM{replies: []string{"VALUE: 0\nCONFIDENCE: 90"}}
			cfg := noAnalysis()
			cfg.EnableResearch = false
			cfg.MaxRetries = maxRetries

			res, err := newAgent(ex, nil, l, cfg).Resolve(context.Background(), powerReq, model.FieldContext{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRetriesExhausted)
			assert.Equal(t, ErrRetriesExhausted, KindOf(err))
			assert.Contains(t, err.Error(), "below the minimum")
			assert.Equal(t, maxRetries, res.RetryCount)
			assert.Equal(t, maxRetries+1, l.synthCalls)
		})
	}
}

func TestResolve_ResearchFailureIsNonFatal(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rs := &mockResearcher{}
	rs.On("Research", mock.Anything, mock.Anything, mock.Anything).Return(research.Result{Query: "q", Err: errors.New("perplexity down")})
	l := &scriptedLLM{replies: []string{"VALUE: 150\nCONFIDENCE: 40\nREASONING: typical for this model"}}

	res, err := newAgent(ex, rs, l, noAnalysis()).Resolve(context.Background(), powerReq, model.FieldContext{})
	require.NoError(t, err)

	assert.Equal(t, 150.0, res.Resolution.Value)
	assert.Equal(t, 40, res.Resolution.Confidence)
	assert.True(t, res.Resolution.NeedsReview)
	assert.True(t, res.ResearchInvoked)
	assert.Contains(t, l.prompts[0], "research returned nothing")
	assert.Empty(t, res.Resolution.Sources)
}

func TestResolve_ResearchSkipThresholds(t *testing.T) {
	tests := []struct {
		name         string
		req          model.FieldRequest
		candidate    model.ScoredValue
		wantResearch bool
	}{
		{"at threshold", powerReq, model.ScoredValue{Value: 150.0, Confidence: 70, Source: model.SourcePatternMatching}, false},
		{"below threshold", powerReq, model.ScoredValue{Value: 150.0, Confidence: 60, Source: model.SourceDatabaseLookup}, true},
		{"required enum relaxed floor", vehicleTypeReq, model.ScoredValue{Value: "Kombi", Confidence: 20, Source: model.SourceDatabaseLookup}, false},
		{"required enum below floor", vehicleTypeReq, model.ScoredValue{Value: "Kombi", Confidence: 19, Source: model.SourceDatabaseLookup}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &mockExtractor{}
			ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return([]model.ScoredValue{tt.candidate})
			rs := &mockResearcher{}
			rs.On("Research", mock.Anything, mock.Anything, mock.Anything).Return(research.Result{Text: "x", Confidence: 50})
			l := &scriptedLLM{replies: []string{"VALUE: Kombi\nCONFIDENCE: 75", "VALUE: 150\nCONFIDENCE: 75"}}
			if tt.req.FieldType == model.FieldTypeNumber {
				l.replies = l.replies[1:]
			}

			res, err := newAgent(ex, rs, l, noAnalysis()).Resolve(context.Background(), tt.req, model.FieldContext{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantResearch, res.ResearchInvoked)
			if tt.wantResearch {
				rs.AssertNumberOfCalls(t, "Research", 1)
			} else {
				rs.AssertNotCalled(t, "Research", mock.Anything, mock.Anything, mock.Anything)
				assert.Equal(t, 0, l.synthCalls)
			}
		})
	}
}

func TestResolve_ResearchNotRepeatedOnRetry(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rs := &mockResearcher{}
	rs.On("Research", mock.Anything, mock.Anything, mock.Anything).Return(research.Result{Text: "190 PS", Confidence: 70, Sources: []string{"https://bmw.de"}})
	l := &scriptedLLM{replies: []string{"VALUE: abc", "VALUE: xyz", "VALUE: 190\nCONFIDENCE: 80"}}

	res, err := newAgent(ex, rs, l, noAnalysis()).Resolve(context.Background(), powerReq, model.FieldContext{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RetryCount)
	rs.AssertNumberOfCalls(t, "Research", 1)
	assert.Equal(t, []string{"perplexity_research", "https://bmw.de"}, res.Resolution.Sources)
}

func TestResolve_TieBreakBySourcePriority(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return([]model.ScoredValue{
		{Value: 180.0, Confidence: 85, Source: model.SourceDatabaseLookup},
		{Value: 170.0, Confidence: 85, Source: model.SourcePatternMatching},
		{Value: 160.0, Confidence: 85, Source: model.SourceEnrichment},
		{Value: 150.0, Confidence: 85, Source: model.SourceAIExtraction},
	})

	for i := 0; i < 20; i++ {
		res, err := newAgent(ex, nil, nil, noAnalysis()).Resolve(context.Background(), powerReq, model.FieldContext{})
		require.NoError(t, err)
		assert.Equal(t, 150.0, res.Resolution.Value)
		assert.Equal(t, model.SourceAIExtraction, res.Attempts[0].Source)
	}
}

func TestResolve_HighestConfidenceWins(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return([]model.ScoredValue{
		{Value: 150.0, Confidence: 75, Source: model.SourceAIExtraction},
		{Value: 190.0, Confidence: 95, Source: model.SourceEnrichment},
		{Value: 140.0, Confidence: 70, Source: model.SourcePatternMatching},
	})

	res, err := newAgent(ex, nil, nil, noAnalysis()).Resolve(context.Background(), powerReq, model.FieldContext{})
	require.NoError(t, err)
	assert.Equal(t, 190.0, res.Resolution.Value)
	assert.Equal(t, 95, res.Resolution.Confidence)
	assert.Equal(t, []string{"enrichment"}, res.Resolution.Sources)
}

func TestResolve_ExtractedValueFailingValidationIsResynthesized(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return([]model.ScoredValue{
		{Value: "Truck", Confidence: 85, Source: model.SourceAIExtraction},
	})
	l := &scriptedLLM{replies: []string{"VALUE: SUV\nCONFIDENCE: 72\nREASONING: pickups are listed as SUV"}}

	res, err := newAgent(ex, &mockResearcher{}, l, noAnalysis()).Resolve(context.Background(), vehicleTypeReq, model.FieldContext{})
	require.NoError(t, err)
	assert.Equal(t, "SUV", res.Resolution.Value)
	assert.Equal(t, 1, res.RetryCount)
	assert.False(t, res.ResearchInvoked)
	assert.Contains(t, l.prompts[0], `previous answer "Truck" was rejected`)
}

func TestResolve_AnalysisFailureIsFatal(t *testing.T) {
	ex := &mockExtractor{}
	l := &scriptedLLM{analyzeErr: errors.New("anthropic unavailable")}

	res, err := newAgent(ex, nil, l, DefaultConfig()).Resolve(context.Background(), powerReq, model.FieldContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysis)
	assert.Equal(t, []State{StateAnalyze, StateEnd}, res.Path)
	ex.AssertNotCalled(t, "Collect", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, l.synthCalls)
}

func TestResolve_LLMAnalysisNote(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return([]model.ScoredValue{
		{Value: 150.0, Confidence: 85, Source: model.SourceAIExtraction},
	})
	l := &scriptedLLM{}

	res, err := newAgent(ex, nil, l, DefaultConfig()).Resolve(context.Background(), powerReq, model.FieldContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, l.analyzeHits)
	assert.Equal(t, "Looking for the value in extracted data.", res.Thoughts[0].Reasoning)
}

func TestResolve_SynthesisFailureIsFatal(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	l := &scriptedLLM{synthErr: errors.New("timeout")}
	cfg := noAnalysis()
	cfg.EnableResearch = false

	_, err := newAgent(ex, nil, l, cfg).Resolve(context.Background(), powerReq, model.FieldContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSynthesis)
	assert.Equal(t, 1, l.synthCalls)
}

func TestResolve_NoSynthesizer(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := newAgent(ex, nil, nil, noAnalysis()).Resolve(context.Background(), powerReq, model.FieldContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSynthesis)
}

func TestResolve_InvalidRequest(t *testing.T) {
	req := model.FieldRequest{FieldName: "vehicle_type", FieldType: model.FieldTypeEnum, Constraints: model.Constraints{Required: true}}

	_, err := newAgent(&mockExtractor{}, nil, nil, noAnalysis()).Resolve(context.Background(), req, model.FieldContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Contains(t, err.Error(), "required enum needs enum options")
}

func TestResolve_ResearchDisabledGoesToSynthesis(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rs := &mockResearcher{}
	l := &scriptedLLM{replies: []string{"VALUE: 150\nCONFIDENCE: 80"}}
	cfg := noAnalysis()
	cfg.EnableResearch = false

	res, err := newAgent(ex, rs, l, cfg).Resolve(context.Background(), powerReq, model.FieldContext{})
	require.NoError(t, err)
	assert.Equal(t, []State{StateAnalyze, StateExtract, StateSynthesize, StateValidate, StateEnd}, res.Path)
	rs.AssertNotCalled(t, "Research", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_ThoughtsAreTimestamped(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return([]model.ScoredValue{
		{Value: 150.0, Confidence: 85, Source: model.SourceAIExtraction},
	})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := New(ex, nil, nil, noAnalysis(), WithClock(func() time.Time { return fixed }))

	res, err := a.Resolve(context.Background(), powerReq, model.FieldContext{})
	require.NoError(t, err)
	require.Len(t, res.Thoughts, 3)
	steps := []string{res.Thoughts[0].Step, res.Thoughts[1].Step, res.Thoughts[2].Step}
	assert.Equal(t, []string{"analyze", "extractFromContext", "validate"}, steps)
	for _, th := range res.Thoughts {
		assert.Equal(t, fixed, th.Timestamp)
	}
	require.NotNil(t, res.Thoughts[1].Confidence)
	assert.Equal(t, 85, *res.Thoughts[1].Confidence)
}

func TestResolveWith_OverridesConfig(t *testing.T) {
	ex := &mockExtractor{}
	ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return([]model.ScoredValue{
		{Value: 150.0, Confidence: 85, Source: model.SourceAIExtraction},
	})
	l := &scriptedLLM{replies: []string{"VALUE: 151\nCONFIDENCE: 95"}}
	a := newAgent(ex, nil, l, noAnalysis())

	cfg := a.Config()
	cfg.MinConfidenceThreshold = 90
	cfg.EnableResearch = false
	res, err := a.ResolveWith(context.Background(), powerReq, model.FieldContext{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 151.0, res.Resolution.Value)
	assert.Equal(t, 1, l.synthCalls)
}

func TestResolve_RequiredEnumNeverEmpty(t *testing.T) {
	replies := []string{
		"",
		"VALUE: null",
		"VALUE: unknown\nCONFIDENCE: 80",
		"VALUE:\nCONFIDENCE: 0\nREASONING: nothing",
		"I am not sure.",
		"VALUE: limousine\nCONFIDENCE: 55",
		"VALUE: Truck",
	}
	contexts := []model.FieldContext{
		{},
		{ExtractedData: model.NewExtractedData(map[string]any{"body_style": "Truck"})},
	}
	for _, reply := range replies {
		for _, withResearch := range []bool{true, false} {
			for ci, fc := range contexts {
				name := fmt.Sprintf("%q/research=%v/ctx=%d", reply, withResearch, ci)
				t.Run(name, func(t *testing.T) {
					ex := &mockExtractor{}
					var candidates []model.ScoredValue
					if v, ok := fc.ExtractedData.Lookup("body_style"); ok {
						candidates = []model.ScoredValue{{Value: v, Confidence: 75, Source: model.SourceAIExtraction}}
					}
					ex.On("Collect", mock.Anything, mock.Anything, mock.Anything).Return(candidates)
					rs := &mockResearcher{}
					rs.On("Research", mock.Anything, mock.Anything, mock.Anything).Return(research.Result{})
					l := &scriptedLLM{replies: []string{reply}}
					cfg := noAnalysis()
					cfg.EnableResearch = withResearch

					res, err := newAgent(ex, rs, l, cfg).Resolve(context.Background(), vehicleTypeReq, fc)
					if err != nil {
						// Only an invalid non-empty option may exhaust retries.
						assert.ErrorIs(t, err, ErrRetriesExhausted)
						return
					}
					assert.Contains(t, vehicleTypeReq.Constraints.EnumOptions, res.Resolution.Value)
				})
			}
		}
	}
}

func TestResolutionError(t *testing.T) {
	cause := errors.New("boom")
	err := &ResolutionError{Kind: ErrSynthesis, Field: "power_ps", Reason: "call failed", Err: cause}
	assert.True(t, strings.HasPrefix(err.Error(), "resolve power_ps: synthesis failed"))
	assert.True(t, strings.HasSuffix(err.Error(), ": call failed: boom"))
	assert.ErrorIs(t, err, ErrSynthesis)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrAnalysis)
	assert.Nil(t, KindOf(cause))
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 70, cfg.MinConfidenceThreshold)
	assert.Equal(t, 20, cfg.RelaxedEnumThreshold)
	assert.True(t, cfg.EnableResearch)
	assert.Equal(t, 70, cfg.threshold(false))
	assert.Equal(t, 20, cfg.threshold(true))

	cfg.MinConfidenceThreshold = 10
	assert.Equal(t, 10, cfg.threshold(true))

	n := Config{MaxRetries: -1, MinConfidenceThreshold: 150, RelaxedEnumThreshold: -5}.normalized()
	assert.Equal(t, 0, n.MaxRetries)
	assert.Equal(t, 100, n.MinConfidenceThreshold)
	assert.Equal(t, 0, n.RelaxedEnumThreshold)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "performResearch", StateResearch.String())
	assert.Equal(t, "unknown", State(99).String())
}
