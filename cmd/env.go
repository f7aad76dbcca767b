package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-resolver/internal/adapter"
	"github.com/sells-group/listing-resolver/internal/catalog"
	"github.com/sells-group/listing-resolver/internal/cost"
	"github.com/sells-group/listing-resolver/internal/equipment"
	"github.com/sells-group/listing-resolver/internal/llm"
	"github.com/sells-group/listing-resolver/internal/model"
	"github.com/sells-group/listing-resolver/internal/orchestrator"
	"github.com/sells-group/listing-resolver/internal/research"
	"github.com/sells-group/listing-resolver/internal/resolve"
	"github.com/sells-group/listing-resolver/internal/store"
	"github.com/sells-group/listing-resolver/internal/synthesis"
	"github.com/sells-group/listing-resolver/pkg/perplexity"
)

// resolverEnv holds the wired pipeline used by the resolve, category,
// equipment and serve commands.
type resolverEnv struct {
	Store        store.Store // may be nil
	Catalog      *catalog.Catalog
	Agent        *resolve.Agent
	Orchestrator *orchestrator.Orchestrator
	Equipment    *equipment.Categorizer
	Researcher   *research.Researcher // nil when research is disabled
	Cost         *cost.Tracker
}

// Close releases resources held by the environment.
func (e *resolverEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initResolver validates the config for mode, opens the store when
// withStore is set and builds the pipeline. Callers should defer env.Close().
func initResolver(ctx context.Context, mode string, withStore bool) (*resolverEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}

	completer, err := llm.NewCompleter(ctx, cfg.Completer())
	if err != nil {
		return nil, eris.Wrap(err, "init llm")
	}

	var pplx perplexity.Client
	if cfg.Agent.EnableResearch {
		pplx = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
	}

	var st store.Store
	if withStore {
		if err := cfg.Validate("migrate"); err != nil {
			return nil, err
		}
		st, err = openStore(ctx)
		if err != nil {
			return nil, err
		}
	}

	return newResolverEnv(cat, st, completer, pplx), nil
}

// newResolverEnv wires the pipeline from already constructed clients. st
// and pplx may be nil.
func newResolverEnv(cat *catalog.Catalog, st store.Store, completer llm.Completer, pplx perplexity.Client) *resolverEnv {
	tracker := cost.NewTracker(cost.NewCalculator(cost.DefaultRates()))
	agentCfg := cfg.Agent.ToAgent()
	synth := synthesis.New(tracker.MeterCompleter(completer), agentCfg.SynthesisTimeout)

	var lookup adapter.SimilarLookup
	if st != nil && cfg.Similar.Enabled {
		lookup = st
	}

	env := &resolverEnv{Store: st, Catalog: cat, Cost: tracker}

	// A typed nil researcher must not reach the agent.
	var researcher resolve.Researcher
	if pplx != nil {
		env.Researcher = research.New(tracker.MeterPerplexity(pplx), cat, cfg.Perplexity.ToResearch(agentCfg.ResearchTimeout))
		researcher = env.Researcher
	}

	env.Agent = resolve.New(adapter.Default(lookup, cfg.Similar.Limit), researcher, synth, agentCfg)
	env.Orchestrator = orchestrator.New(env.Agent, cat, cfg.Batch.ToOrchestrator())
	env.Equipment = equipment.NewCategorizer(synth)

	zap.L().Debug("resolver initialized",
		zap.Bool("store", st != nil),
		zap.Bool("similar", lookup != nil),
		zap.Bool("research", researcher != nil),
		zap.Int("fields", len(cat.Fields())),
	)
	return env
}

func loadCatalog() (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "load catalog %s", cfg.Catalog.Path)
	}
	return cat, nil
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.ToStore())
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// readContext loads a FieldContext from a JSON file. An empty path yields
// an empty context.
func readContext(path string) (model.FieldContext, error) {
	var fc model.FieldContext
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, eris.Wrapf(err, "read context %s", path)
	}
	if err := json.Unmarshal(data, &fc); err != nil {
		return fc, eris.Wrapf(err, "parse context %s", path)
	}
	return fc, nil
}

// documentContext replaces fc with the stored document's evidence, keeping
// the caller's form data.
func documentContext(ctx context.Context, st store.Store, id string, fc model.FieldContext) (model.FieldContext, error) {
	doc, err := st.GetDocument(ctx, id)
	if err != nil {
		return fc, eris.Wrapf(err, "load document %s", id)
	}
	if doc == nil {
		return fc, eris.Errorf("document not found: %s", id)
	}
	merged := doc.Context(fc.CurrentFormData)
	if fc.PDFText != "" {
		merged.PDFText = fc.PDFText
	}
	return merged, nil
}
