package orchestrator

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/resolve"
)

// Event is one message of a category stream. Field events carry the field
// and its index; the final event has Complete set and the aggregate counts.
type Event struct {
	Field       string   `json:"field,omitempty"`
	Value       any      `json:"value,omitempty"`
	Confidence  int      `json:"confidence"`
	NeedsReview bool     `json:"needsReview,omitempty"`
	Sources     []string `json:"sources,omitempty"`
	Reasoning   string   `json:"reasoning,omitempty"`
	Error       string   `json:"error,omitempty"`
	Index       int      `json:"index"`
	Total       int      `json:"total"`

	Complete       bool `json:"complete,omitempty"`
	TotalProcessed int  `json:"totalProcessed,omitempty"`
	SuccessCount   int  `json:"successCount,omitempty"`
}

type completion struct {
	Complete       bool `json:"complete"`
	Total          int  `json:"total"`
	TotalProcessed int  `json:"totalProcessed"`
	SuccessCount   int  `json:"successCount"`
}

// MarshalJSON writes the completion event with its counts even when they are
// zero; field events keep their own shape.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Complete {
		return json.Marshal(completion{
			Complete:       true,
			Total:          e.Total,
			TotalProcessed: e.TotalProcessed,
			SuccessCount:   e.SuccessCount,
		})
	}
	type fieldEvent Event
	return json.Marshal(fieldEvent(e))
}

// ResolveCategoryStream resolves fields one at a time in the given order and
// emits an event per field followed by a completion event. Field starts are
// spaced by InterFieldDelay. The channel is closed when the stream ends; if
// ctx is cancelled the stream stops without a completion event.
func (o *Orchestrator) ResolveCategoryStream(ctx context.Context, fields []string, fc model.FieldContext) <-chan Event {
	return o.ResolveCategoryStreamWith(ctx, fields, fc, o.resolver.Config())
}

// ResolveCategoryStreamWith is ResolveCategoryStream with an explicit agent
// config.
func (o *Orchestrator) ResolveCategoryStreamWith(ctx context.Context, fields []string, fc model.FieldContext, cfg resolve.Config) <-chan Event {
	events := make(chan Event, o.cfg.StreamBuffer)
	limit := rate.Inf
	if o.cfg.InterFieldDelay > 0 {
		limit = rate.Every(o.cfg.InterFieldDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	go func() {
		defer close(events)
		send := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		total := len(fields)
		success := 0
		for i, field := range fields {
			if err := limiter.Wait(ctx); err != nil {
				zap.L().Debug("category stream cancelled", zap.Int("processed", i), zap.Error(err))
				return
			}
			out := o.resolveOne(ctx, field, fc, cfg)
			ev := fieldEvent(out, i, total)
			if ev.Error == "" {
				success++
			}
			if !send(ev) {
				return
			}
		}
		send(Event{Complete: true, Total: total, TotalProcessed: total, SuccessCount: success})
	}()
	return events
}

func fieldEvent(out FieldOutcome, index, total int) Event {
	ev := Event{Field: out.Field, Index: index, Total: total}
	if out.Err != nil || out.Result == nil {
		ev.Error = "no result"
		if out.Err != nil {
			ev.Error = out.Err.Error()
		}
		return ev
	}
	res := out.Result.Resolution
	ev.Value = res.Value
	ev.Confidence = res.Confidence
	ev.NeedsReview = res.NeedsReview
	ev.Sources = res.Sources
	ev.Reasoning = res.Reasoning
	return ev
}
