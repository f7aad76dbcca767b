package model

import (
	"sort"
	"time"
)

// Source tags where a candidate value came from.
type Source string

// Known value sources.
const (
	SourceUserInput          Source = "user_input"
	SourceAIExtraction       Source = "ai_extraction"
	SourceEnrichment         Source = "enrichment"
	SourcePatternMatching    Source = "pattern_matching"
	SourceDatabaseLookup     Source = "database_lookup"
	SourcePerplexityResearch Source = "perplexity_research"
)

// Priority orders sources for confidence tie-breaks. Lower wins.
func (s Source) Priority() int {
	switch s {
	case SourceUserInput:
		return 0
	case SourceAIExtraction:
		return 1
	case SourceEnrichment:
		return 2
	case SourcePatternMatching:
		return 3
	case SourceDatabaseLookup:
		return 4
	case SourcePerplexityResearch:
		return 5
	default:
		return 6
	}
}

// ScoredValue is a candidate value for a field with its confidence (0-100)
// and provenance.
type ScoredValue struct {
	Value      any    `json:"value"`
	Confidence int    `json:"confidence"`
	Source     Source `json:"source"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// ClampConfidence bounds c to [0, 100].
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// RankScored returns a copy of vals ordered by confidence descending. Equal
// confidences are ordered by source priority, then by input order.
func RankScored(vals []ScoredValue) []ScoredValue {
	out := make([]ScoredValue, len(vals))
	copy(out, vals)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Source.Priority() < out[j].Source.Priority()
	})
	return out
}

// BestScored returns the highest-ranked candidate.
func BestScored(vals []ScoredValue) (ScoredValue, bool) {
	if len(vals) == 0 {
		return ScoredValue{}, false
	}
	return RankScored(vals)[0], true
}

// AgentThought is one append-only log entry recording a pipeline transition.
type AgentThought struct {
	Step       string    `json:"step"`
	Reasoning  string    `json:"reasoning"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence *int      `json:"confidence,omitempty"`
}

// FieldResolution is the terminal output of resolving one field.
type FieldResolution struct {
	FieldName   string   `json:"fieldName"`
	Value       any      `json:"value"`
	Confidence  int      `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	Sources     []string `json:"sources"`
	NeedsReview bool     `json:"needsReview,omitempty"`
}
