// Package adapter turns the evidence bundle of a resolution into scored
// candidate values. Adapters are read-only and report "not found" as ok=false.
package adapter

import (
	"context"

	"github.com/sells-group/listing-resolver/internal/model"
)

// Fixed adapter confidences.
const (
	UserInputConfidence   = 100
	DirectConfidence      = 85
	AliasConfidence       = 75
	PatternConfidence     = 70
	SimilarConfidence     = 60
	DefaultSimilarLimit   = 10
	psToKW                = 0.735499
	kwToPS                = 1.35962
	electricFuelType      = "Elektro"
	zeroEmissionTolerance = 0.5
)

// Adapter produces at most one candidate for a field.
type Adapter interface {
	Name() string
	Source() model.Source
	Extract(ctx context.Context, field string, fc model.FieldContext) (model.ScoredValue, bool)
}

// Set runs adapters in a fixed order.
type Set struct {
	adapters []Adapter
}

// NewSet returns a set that evaluates adapters in the given order.
func NewSet(adapters ...Adapter) *Set {
	return &Set{adapters: adapters}
}

// Default returns the standard adapter order: user input, direct extraction,
// enrichment, pattern inference, then similar vehicles when lookup is non-nil.
func Default(lookup SimilarLookup, limit int) *Set {
	adapters := []Adapter{UserInput{}, Direct{}, Enrichment{}, Pattern{}}
	if lookup != nil {
		adapters = append(adapters, NewSimilar(lookup, limit))
	}
	return NewSet(adapters...)
}

// Collect runs every adapter and returns the candidates in adapter order.
func (s *Set) Collect(ctx context.Context, field string, fc model.FieldContext) []model.ScoredValue {
	var out []model.ScoredValue
	for _, a := range s.adapters {
		if ctx.Err() != nil {
			break
		}
		if v, ok := a.Extract(ctx, field, fc); ok {
			out = append(out, v)
		}
	}
	return out
}

// Names lists the adapters in evaluation order.
func (s *Set) Names() []string {
	out := make([]string, len(s.adapters))
	for i, a := range s.adapters {
		out[i] = a.Name()
	}
	return out
}
