// Package orchestrator runs the resolution pipeline over the fields of one
// category, either as a batch that returns one report or as an ordered
// stream of per-field events.
package orchestrator

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/resolve"
)

// Resolver resolves one field. *resolve.Agent implements it.
type Resolver interface {
	Config() resolve.Config
	ResolveWith(ctx context.Context, req model.FieldRequest, fc model.FieldContext, cfg resolve.Config) (*resolve.Result, error)
}

// RequestSource builds field requests by name. *catalog.Catalog implements it.
type RequestSource interface {
	Request(name string) (model.FieldRequest, bool)
}

// Config controls batch fan-out and stream pacing.
type Config struct {
	// Concurrency is the number of fields resolved in parallel by
	// ResolveCategory. Values below 2 resolve sequentially.
	Concurrency int
	// InterFieldDelay is the minimum spacing between field starts in
	// ResolveCategoryStream.
	InterFieldDelay time.Duration
	// StreamBuffer is the event channel capacity.
	StreamBuffer int
}

// DefaultConfig returns sequential batches and a 500ms stream delay.
func DefaultConfig() Config {
	return Config{Concurrency: 1, InterFieldDelay: 500 * time.Millisecond, StreamBuffer: 1}
}

// Orchestrator fans field requests out to a Resolver.
type Orchestrator struct {
	resolver Resolver
	requests RequestSource
	cfg      Config
}

// New creates an Orchestrator.
func New(resolver Resolver, requests RequestSource, cfg Config) *Orchestrator {
	if cfg.StreamBuffer < 0 {
		cfg.StreamBuffer = 0
	}
	return &Orchestrator{resolver: resolver, requests: requests, cfg: cfg}
}

// FieldOutcome is the result of resolving one field of a batch.
type FieldOutcome struct {
	Field  string
	Result *resolve.Result
	Err    error
}

func (o *Orchestrator) resolveOne(ctx context.Context, field string, fc model.FieldContext, cfg resolve.Config) FieldOutcome {
	req, known := o.requests.Request(field)
	if !known {
		zap.L().Debug("field not in catalog, resolving as free text", zap.String("field", field))
	}
	res, err := o.resolver.ResolveWith(ctx, req, fc, cfg)
	if err != nil {
		zap.L().Warn("field resolution failed", zap.String("field", field), zap.Error(err))
	}
	return FieldOutcome{Field: field, Result: res, Err: err}
}

// ResolveCategory resolves every field and aggregates the outcomes into one
// report. A failing field is recorded in Errors and does not affect the
// others. The returned error is non-nil only when ctx ends the batch.
func (o *Orchestrator) ResolveCategory(ctx context.Context, category string, fields []string, fc model.FieldContext) (*model.CategoryReport, error) {
	return o.ResolveCategoryWith(ctx, category, fields, fc, o.resolver.Config())
}

// ResolveCategoryWith is ResolveCategory with an explicit agent config.
func (o *Orchestrator) ResolveCategoryWith(ctx context.Context, category string, fields []string, fc model.FieldContext, cfg resolve.Config) (*model.CategoryReport, error) {
	log := zap.L().With(zap.String("category", category), zap.Int("fields", len(fields)))
	start := time.Now()
	outcomes := make([]FieldOutcome, len(fields))

	if o.cfg.Concurrency > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Concurrency)
		for i, field := range fields {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				outcomes[i] = o.resolveOne(gctx, field, fc, cfg)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, field := range fields {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i] = o.resolveOne(ctx, field, fc, cfg)
		}
	}

	report := BuildReport(category, outcomes)
	log.Info("category resolved",
		zap.Int("resolved", report.Metadata.ResolvedCount),
		zap.Int("overall_confidence", report.OverallConfidence),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// BuildReport aggregates outcomes in order. Overall confidence is the
// rounded mean over resolved fields, 0 when none resolved.
func BuildReport(category string, outcomes []FieldOutcome) *model.CategoryReport {
	report := &model.CategoryReport{
		Category:           category,
		MappedValues:       []model.FieldResolution{},
		PerFieldConfidence: make(map[string]int),
		Metadata: model.ReportMetadata{
			TotalFields: len(outcomes),
			SourcesUsed: []string{},
		},
	}

	seen := make(map[string]bool)
	sum := 0
	for _, out := range outcomes {
		if out.Result != nil && out.Result.ResearchInvoked {
			report.Metadata.ResearchInvoked = true
		}
		if out.Err != nil || out.Result == nil {
			if report.Errors == nil {
				report.Errors = make(map[string]string)
			}
			msg := "no result"
			if out.Err != nil {
				msg = out.Err.Error()
			}
			report.Errors[out.Field] = msg
			continue
		}

		res := out.Result.Resolution
		report.MappedValues = append(report.MappedValues, res)
		report.PerFieldConfidence[res.FieldName] = res.Confidence
		sum += res.Confidence
		for _, s := range res.Sources {
			if !seen[s] {
				seen[s] = true
				report.Metadata.SourcesUsed = append(report.Metadata.SourcesUsed, s)
			}
		}
	}

	report.Metadata.ResolvedCount = len(report.MappedValues)
	if n := report.Metadata.ResolvedCount; n > 0 {
		report.OverallConfidence = int(math.Round(float64(sum) / float64(n)))
	}
	return report
}
