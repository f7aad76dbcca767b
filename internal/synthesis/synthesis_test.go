package synthesis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-resolver/internal/llm"
	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/research"
)

func ptr[T any](v T) *T { return &v }

var (
	vehicleType = model.FieldRequest{
		FieldName: "vehicle_type",
		FieldType: model.FieldTypeEnum,
		Constraints: model.Constraints{
			EnumOptions: []string{"SUV", "Limousine", "Kombi"},
			Required:    true,
		},
	}
	power = model.FieldRequest{
		FieldName:   "power_ps",
		FieldType:   model.FieldTypeNumber,
		Label:       "Leistung (PS)",
		Constraints: model.Constraints{Min: ptr(1.0), Max: ptr(2000.0)},
	}
	accident = model.FieldRequest{FieldName: "accident_free", FieldType: model.FieldTypeBoolean}
	color    = model.FieldRequest{FieldName: "color", FieldType: model.FieldTypeString}
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		req       model.FieldRequest
		value     any
		conf      int
		reasoning string
		fallback  bool
	}{
		{
			name:      "number",
			text:      "VALUE: 190\nCONFIDENCE: 88\nREASONING: Datasheet lists 190 PS.",
			req:       power,
			value:     190.0,
			conf:      88,
			reasoning: "Datasheet lists 190 PS.",
		},
		{
			name:  "number with unit and markdown",
			text:  "**VALUE:** 150 PS\n**CONFIDENCE:** 75%\n**REASONING:** from research",
			req:   power,
			value: 150.0,
			conf:  75,

			reasoning: "from research",
		},
		{
			name:  "enum canonicalized",
			text:  "VALUE: kombi.\nCONFIDENCE: 70\nREASONING: Touring body",
			req:   vehicleType,
			value: "Kombi",
			conf:  70,

			reasoning: "Touring body",
		},
		{
			name:      "required enum null falls back to first option",
			text:      "VALUE: null\nCONFIDENCE: 0\nREASONING: no idea",
			req:       vehicleType,
			value:     "SUV",
			conf:      FallbackConfidence,
			reasoning: FallbackReasoning,
			fallback:  true,
		},
		{
			name:      "required enum garbage reply falls back",
			text:      "I cannot tell.",
			req:       vehicleType,
			value:     "SUV",
			conf:      FallbackConfidence,
			reasoning: FallbackReasoning,
			fallback:  true,
		},
		{
			name:  "enum outside options kept for validation",
			text:  "VALUE: Truck\nCONFIDENCE: 60\nREASONING: guess",
			req:   vehicleType,
			value: "Truck",
			conf:  60,

			reasoning: "guess",
		},
		{
			name:  "boolean german",
			text:  "WERT: ja\nKONFIDENZ: 65\nBEGRÜNDUNG: laut Inserat",
			req:   accident,
			value: true,
			conf:  65,

			reasoning: "laut Inserat",
		},
		{
			name:      "optional unknown stays empty",
			text:      "VALUE: unknown\nCONFIDENCE: 40\nREASONING: not mentioned",
			req:       color,
			value:     nil,
			conf:      0,
			reasoning: "not mentioned",
		},
		{
			name:  "missing confidence defaults",
			text:  "VALUE: \"Schwarz\"\nREASONING: first line\ncontinues here",
			req:   color,
			value: "Schwarz",
			conf:  defaultConfidence,

			reasoning: "first line continues here",
		},
		{
			name:  "confidence clamped",
			text:  "VALUE: 5\nCONFIDENCE: 250",
			req:   power,
			value: 5.0,
			conf:  100,
		},
		{
			name:  "number not parseable kept as string",
			text:  "VALUE: viel\nCONFIDENCE: 30",
			req:   power,
			value: "viel",
			conf:  30,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse(tt.text, tt.req)
			assert.Equal(t, tt.value, r.Value)
			assert.Equal(t, tt.conf, r.Confidence)
			assert.Equal(t, tt.reasoning, r.Reasoning)
			assert.Equal(t, tt.fallback, r.Fallback)
		})
	}
}

func TestParse_RequiredEnumNeverEmpty(t *testing.T) {
	replies := []string{"", "VALUE:", "VALUE: n/a", "VALUE: -", "VALUE: none", "VALUE: NULL\nCONFIDENCE: 90", "garbage"}
	for _, text := range replies {
		r := Parse(text, vehicleType)
		assert.Contains(t, vehicleType.Constraints.EnumOptions, r.Value, "reply %q", text)
	}
}

func TestBuildPrompt(t *testing.T) {
	conf := 85
	p := BuildPrompt(Input{
		Request: vehicleType,
		Vehicle: "BMW X3",
		Thoughts: []model.AgentThought{
			{Step: "analyze", Reasoning: "Looking for the body style", Confidence: &conf},
		},
		Attempts: []model.ScoredValue{
			{Value: "SUV", Confidence: 60, Source: model.SourceDatabaseLookup, Reasoning: "similar vehicles"},
		},
		Research: []research.Result{
			{Text: "Der X3 ist ein SUV.", Confidence: 80, Sources: []string{"https://bmw.de"}},
			{Err: errors.New("timeout")},
		},
		PreviousValue:   "Truck",
		PreviousFailure: `"Truck" is not one of the allowed options`,
	})

	assert.Contains(t, p, "Field: vehicle_type")
	assert.Contains(t, p, "Allowed options (choose exactly one):\n- SUV\n- Limousine\n- Kombi\n")
	assert.Contains(t, p, "must never be empty")
	assert.Contains(t, p, "Vehicle: BMW X3")
	assert.Contains(t, p, "[analyze] Looking for the body style")
	assert.Contains(t, p, "database_lookup: SUV (confidence 60) - similar vehicles")
	assert.Contains(t, p, "(confidence 80) Der X3 ist ein SUV.")
	assert.Contains(t, p, "Sources: https://bmw.de")
	assert.Contains(t, p, "research returned nothing")
	assert.Contains(t, p, `previous answer "Truck" was rejected`)
}

func TestBuildPrompt_Empty(t *testing.T) {
	p := BuildPrompt(Input{Request: power})
	assert.Contains(t, p, "Field: power_ps (Leistung (PS))")
	assert.Contains(t, p, "Minimum: 1")
	assert.Contains(t, p, "Maximum: 2000")
	assert.Contains(t, p, "Extraction attempts:\n- none")
	assert.Contains(t, p, "Research results:\n- none")
	assert.NotContains(t, p, "Allowed options")
	assert.NotContains(t, p, "rejected")
}

func TestBuildPrompt_ReplyFormat(t *testing.T) {
	p := BuildPrompt(Input{Request: power})
	assert.Contains(t, p, "VALUE: <")
	assert.Contains(t, p, "CONFIDENCE: <integer 0-100>")
	assert.Contains(t, p, "REASONING: <")

	// A reply following the rendered format parses back.
	r := Parse("VALUE: 150\nCONFIDENCE: 80\nREASONING: Datenblatt", power)
	assert.Equal(t, 150.0, r.Value)
	assert.Equal(t, 80, r.Confidence)
}

func TestBuildAnalysisPrompt(t *testing.T) {
	fc := model.FieldContext{
		PDFText:         "Fahrzeugdaten ...",
		ExtractedData:   model.NewExtractedData(map[string]any{"make": "BMW"}),
		CurrentFormData: map[string]any{"model": "X3"},
	}
	p := BuildAnalysisPrompt(power, fc)
	assert.Contains(t, p, "document text (17 characters), 1 extracted fields, 1 form values")
	assert.Contains(t, BuildAnalysisPrompt(power, model.FieldContext{}), "Available evidence: none.")
}

func TestSynthesize(t *testing.T) {
	var got string
	s := New(llm.Func(func(_ context.Context, prompt string) (*llm.Completion, error) {
		got = prompt
		return &llm.Completion{Text: "VALUE: 190\nCONFIDENCE: 90\nREASONING: research", InputTokens: 100, OutputTokens: 10}, nil
	}), 0)

	out, err := s.Synthesize(context.Background(), Input{Request: power})
	require.NoError(t, err)
	assert.Equal(t, 190.0, out.Value)
	assert.Equal(t, 90, out.Confidence)
	assert.Equal(t, 100, out.InputTokens)
	assert.Contains(t, got, "power_ps")
	assert.Contains(t, got, "VALUE:")
}

func TestSynthesize_Error(t *testing.T) {
	s := New(llm.Func(func(context.Context, string) (*llm.Completion, error) {
		return nil, errors.New("503")
	}), time.Second)

	_, err := s.Synthesize(context.Background(), Input{Request: power})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis: complete power_ps")
}

func TestSynthesize_Timeout(t *testing.T) {
	s := New(llm.Func(func(ctx context.Context, _ string) (*llm.Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), 10*time.Millisecond)

	_, err := s.Synthesize(context.Background(), Input{Request: power})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyze(t *testing.T) {
	s := New(llm.Func(func(context.Context, string) (*llm.Completion, error) {
		return &llm.Completion{Text: "  Looking for engine power; extracted data is relevant. "}, nil
	}), 0)
	note, err := s.Analyze(context.Background(), power, model.FieldContext{})
	require.NoError(t, err)
	assert.Equal(t, "Looking for engine power; extracted data is relevant.", note)

	empty := New(llm.Func(func(context.Context, string) (*llm.Completion, error) {
		return &llm.Completion{Text: " "}, nil
	}), 0)
	_, err = empty.Analyze(context.Background(), power, model.FieldContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty reply")
}

func TestCoerce(t *testing.T) {
	assert.Equal(t, 150.0, Coerce(150, power))
	assert.Equal(t, 150.0, Coerce("150 PS", power))
	assert.Equal(t, "Kombi", Coerce("KOMBI", vehicleType))
	assert.Equal(t, true, Coerce("ja", accident))
	assert.Equal(t, true, Coerce(true, accident))
	assert.Nil(t, Coerce("unknown", color))
}
