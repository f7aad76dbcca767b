package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/listing-resolver/internal/catalog"
	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/resolve"
)

type fakeResolver struct {
	mu       sync.Mutex
	results  map[string]*resolve.Result
	errs     map[string]error
	delay    time.Duration
	order    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	cfgs     []resolve.Config
}

func (f *fakeResolver) Config() resolve.Config { return resolve.DefaultConfig() }

func (f *fakeResolver) ResolveWith(ctx context.Context, req model.FieldRequest, _ model.FieldContext, cfg resolve.Config) (*resolve.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.order = append(f.order, req.FieldName)
	f.cfgs = append(f.cfgs, cfg)
	res, err := f.results[req.FieldName], f.errs[req.FieldName]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return &resolve.Result{}, err
	}
	if res == nil {
		return &resolve.Result{}, &resolve.ResolutionError{Kind: resolve.ErrSynthesis, Field: req.FieldName, Reason: "no fixture"}
	}
	return res, nil
}

func resolved(field string, value any, conf int, research bool, sources ...string) *resolve.Result {
	return &resolve.Result{
		Resolution: model.FieldResolution{
			FieldName:  field,
			Value:      value,
			Confidence: conf,
			Sources:    sources,
		},
		ResearchInvoked: research,
	}
}

func technicalFixture() *fakeResolver {
	return &fakeResolver{
		results: map[string]*resolve.Result{
			"power_ps":         resolved("power_ps", 150.0, 85, false, "ai_extraction"),
			"power_kw":         resolved("power_kw", 110.0, 70, false, "pattern_matching"),
			"fuel_type":        resolved("fuel_type", "Diesel", 90, false, "enrichment", "ai_extraction"),
			"transmission":     resolved("transmission", "Automatik", 64, true, "perplexity_research", "https://example.com/spec"),
			"displacement_ccm": resolved("displacement_ccm", 1995.0, 90, false, "enrichment"),
		},
		errs: map[string]error{
			"drive_type": &resolve.ResolutionError{Kind: resolve.ErrRetriesExhausted, Field: "drive_type", Reason: "\"Kette\" is not one of the allowed options"},
		},
	}
}

var technicalFields = []string{"power_ps", "power_kw", "fuel_type", "transmission", "drive_type", "displacement_ccm"}

func TestResolveCategory_Sequential(t *testing.T) {
	f := technicalFixture()
	o := New(f, catalog.Default(), DefaultConfig())

	report, err := o.ResolveCategory(context.Background(), "technical", technicalFields, model.FieldContext{})
	require.NoError(t, err)

	assert.Equal(t, technicalFields, f.order)
	assert.Equal(t, "technical", report.Category)
	assert.Len(t, report.MappedValues, 5)
	assert.Equal(t, 6, report.Metadata.TotalFields)
	assert.Equal(t, 5, report.Metadata.ResolvedCount)
	assert.True(t, report.Metadata.ResearchInvoked)
	// (85+70+90+64+90)/5 = 79.8
	assert.Equal(t, 80, report.OverallConfidence)
	assert.Contains(t, report.Errors["drive_type"], "validation retries exhausted")
	assert.NotContains(t, report.PerFieldConfidence, "drive_type")

	want := []string{"ai_extraction", "pattern_matching", "enrichment", "perplexity_research", "https://example.com/spec"}
	if diff := cmp.Diff(want, report.Metadata.SourcesUsed); diff != "" {
		t.Errorf("sourcesUsed mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveCategory_ConcurrentMatchesSequential(t *testing.T) {
	seq, err := New(technicalFixture(), catalog.Default(), DefaultConfig()).
		ResolveCategory(context.Background(), "technical", technicalFields, model.FieldContext{})
	require.NoError(t, err)

	f := technicalFixture()
	f.delay = 20 * time.Millisecond
	par, err := New(f, catalog.Default(), Config{Concurrency: 3}).
		ResolveCategory(context.Background(), "technical", technicalFields, model.FieldContext{})
	require.NoError(t, err)

	if diff := cmp.Diff(seq, par); diff != "" {
		t.Errorf("concurrent report differs (-seq +par):\n%s", diff)
	}
	assert.LessOrEqual(t, f.peak.Load(), int32(3))
	assert.Greater(t, f.peak.Load(), int32(1))
}

func TestResolveCategory_NothingResolved(t *testing.T) {
	f := &fakeResolver{errs: map[string]error{"vin": errors.New("boom")}}
	report, err := New(f, catalog.Default(), DefaultConfig()).
		ResolveCategory(context.Background(), "basic", []string{"vin"}, model.FieldContext{})
	require.NoError(t, err)

	assert.Equal(t, 0, report.OverallConfidence)
	assert.Empty(t, report.MappedValues)
	assert.Empty(t, report.Metadata.SourcesUsed)
	assert.Equal(t, map[string]string{"vin": "boom"}, report.Errors)
}

func TestResolveCategory_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(technicalFixture(), catalog.Default(), DefaultConfig()).
		ResolveCategory(ctx, "technical", technicalFields, model.FieldContext{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveCategoryWith_PassesConfig(t *testing.T) {
	f := technicalFixture()
	cfg := resolve.DefaultConfig()
	cfg.EnableResearch = false
	_, err := New(f, catalog.Default(), DefaultConfig()).
		ResolveCategoryWith(context.Background(), "technical", []string{"power_ps"}, model.FieldContext{}, cfg)
	require.NoError(t, err)
	require.Len(t, f.cfgs, 1)
	assert.False(t, f.cfgs[0].EnableResearch)
}

func TestBuildReport_Empty(t *testing.T) {
	report := BuildReport("body", nil)
	assert.Equal(t, 0, report.OverallConfidence)
	assert.Equal(t, 0, report.Metadata.TotalFields)
	assert.NotNil(t, report.MappedValues)
	assert.Nil(t, report.Errors)
}

func TestResolveCategoryStream_OrderAndCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := technicalFixture()
	o := New(f, catalog.Default(), Config{InterFieldDelay: 10 * time.Millisecond})

	start := time.Now()
	var events []Event
	for ev := range o.ResolveCategoryStream(context.Background(), technicalFields, model.FieldContext{}) {
		events = append(events, ev)
	}
	elapsed := time.Since(start)

	require.Len(t, events, len(technicalFields)+1)
	for i, field := range technicalFields {
		assert.Equal(t, field, events[i].Field)
		assert.Equal(t, i, events[i].Index)
		assert.Equal(t, len(technicalFields), events[i].Total)
	}
	assert.Equal(t, 150.0, events[0].Value)
	assert.Equal(t, 85, events[0].Confidence)
	assert.Contains(t, events[4].Error, "validation retries exhausted")

	last := events[len(events)-1]
	assert.True(t, last.Complete)
	assert.Equal(t, 6, last.TotalProcessed)
	assert.Equal(t, 5, last.SuccessCount)

	// five gaps between six field starts
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestResolveCategoryStream_Cancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := technicalFixture()
	o := New(f, catalog.Default(), Config{InterFieldDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	events := o.ResolveCategoryStream(ctx, technicalFields, model.FieldContext{})

	first := <-events
	assert.Equal(t, "power_ps", first.Field)
	cancel()

	for ev := range events {
		assert.False(t, ev.Complete)
	}
	assert.Equal(t, []string{"power_ps"}, f.order)
}

func TestResolveCategoryStream_AbandonedConsumer(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	events := New(technicalFixture(), catalog.Default(), Config{}).
		ResolveCategoryStream(ctx, technicalFields, model.FieldContext{})
	<-events
	cancel()
	// drain until the producer sees the cancellation
	for range events {
	}
}

func TestResolveCategoryStream_Empty(t *testing.T) {
	defer goleak.VerifyNone(t)

	var events []Event
	for ev := range New(&fakeResolver{}, catalog.Default(), DefaultConfig()).
		ResolveCategoryStream(context.Background(), nil, model.FieldContext{}) {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, Event{Complete: true}, events[0])

	b, err := json.Marshal(events[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"complete":true,"total":0,"totalProcessed":0,"successCount":0}`, string(b))
}

func TestResolveCategoryStream_AllFailedCompletionJSON(t *testing.T) {
	defer goleak.VerifyNone(t)

	var events []Event
	for ev := range New(&fakeResolver{}, catalog.Default(), DefaultConfig()).
		ResolveCategoryStream(context.Background(), technicalFields[:1], model.FieldContext{}) {
		events = append(events, ev)
	}
	require.Len(t, events, 2)

	field, err := json.Marshal(events[0])
	require.NoError(t, err)
	assert.Contains(t, string(field), `"error":`)
	assert.NotContains(t, string(field), "successCount")

	done, err := json.Marshal(events[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"complete":true,"total":1,"totalProcessed":1,"successCount":0}`, string(done))
}
