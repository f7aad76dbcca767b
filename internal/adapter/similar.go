package adapter

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/listing-resolver/internal/model"
)

// SimilarLookup reads persisted vehicles of the same make and model.
type SimilarLookup interface {
	LookupSimilar(ctx context.Context, vehicleMake, vehicleModel string, limit int) ([]model.VehicleRecord, error)
}

// Similar aggregates a field across stored vehicles of the same make and
// model: the median for numbers, the most common value otherwise.
type Similar struct {
	lookup SimilarLookup
	limit  int
}

// NewSimilar creates a similar-vehicle adapter. limit <= 0 uses
// DefaultSimilarLimit.
func NewSimilar(lookup SimilarLookup, limit int) *Similar {
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}
	return &Similar{lookup: lookup, limit: limit}
}

// Name implements Adapter.
func (s *Similar) Name() string { return "similar" }

// Source implements Adapter.
func (s *Similar) Source() model.Source { return model.SourceDatabaseLookup }

// Extract implements Adapter. Lookup errors are logged and treated as no
// match.
func (s *Similar) Extract(ctx context.Context, field string, fc model.FieldContext) (model.ScoredValue, bool) {
	mk := fc.KnownString(model.FieldMake)
	md := fc.KnownString(model.FieldModel)
	if mk == "" || md == "" {
		return model.ScoredValue{}, false
	}

	records, err := s.lookup.LookupSimilar(ctx, mk, md, s.limit)
	if err != nil {
		zap.L().Warn("similar vehicle lookup failed",
			zap.String("field", field),
			zap.String("make", mk),
			zap.String("model", md),
			zap.Error(err),
		)
		return model.ScoredValue{}, false
	}
	if len(records) > s.limit {
		records = records[:s.limit]
	}

	var nums []float64
	var strs []string
	for _, r := range records {
		v, ok := r.Fields[field]
		if !ok || model.IsEmpty(v) {
			continue
		}
		if f, ok := model.ToFloat(v); ok {
			if _, isStr := v.(string); !isStr {
				nums = append(nums, f)
				continue
			}
		}
		strs = append(strs, model.ToString(v))
	}

	var (
		v any
		n int
	)
	switch {
	case len(nums) > 0:
		v, n = Median(nums), len(nums)
	case len(strs) > 0:
		v, n = mode(strs), len(strs)
	default:
		return model.ScoredValue{}, false
	}
	return model.ScoredValue{
		Value:      v,
		Confidence: SimilarConfidence,
		Source:     model.SourceDatabaseLookup,
		Reasoning:  fmt.Sprintf("Derived from %d similar %s %s vehicles", n, mk, md),
	}, true
}

// Median returns the median of vals. vals must be non-empty.
func Median(vals []float64) float64 {
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// mode returns the most frequent value; ties go to the value that reached
// the count first.
func mode(vals []string) string {
	counts := make(map[string]int, len(vals))
	best, bestN := "", 0
	for _, v := range vals {
		counts[v]++
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best
}
