package main

import (
	"context"
	"math/rand"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/browser"
	"github.com/sells-group/fusion-cli/internal/collector"
	"github.com/sells-group/fusion-cli/internal/company"
	"github.com/sells-group/fusion-cli/internal/config"
	"github.com/sells-group/fusion-cli/internal/enrich"
	"github.com/sells-group/fusion-cli/internal/export"
	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/pipeline"
	"github.com/sells-group/fusion-cli/internal/resilience"
	"github.com/sells-group/fusion-cli/internal/scorer"
	"github.com/sells-group/fusion-cli/internal/store"
)

// pipelineEnv holds the store, the pipeline and the resources the run and
// serve commands must release.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Breakers *resilience.Breakers
	browser  *browser.Rod
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.browser != nil {
		if err := pe.browser.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens the store and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{Store: st}
	var deps collector.Deps
	if slices.Contains(cfg.Pipeline.Sources, string(model.SourceCompanySite)) {
		env.browser = browser.NewRod(cfg.Browser)
		deps.Browser = env.browser
	}

	p, breakers, err := buildPipeline(cfg, st, deps)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Pipeline = p
	env.Breakers = breakers
	return env, nil
}

// buildPipeline wires scorer, fuser, enricher, collectors, sink and
// breakers from c.
func buildPipeline(c *config.Config, st store.Store, deps collector.Deps) (*pipeline.Pipeline, *resilience.Breakers, error) {
	sc, err := scorer.NewScorer(c.Quality)
	if err != nil {
		return nil, nil, err
	}

	table := company.DefaultPriorityTable()
	if c.Fusion.PrioritiesPath != "" {
		table, err = company.LoadPriorityTable(c.Fusion.PrioritiesPath)
		if err != nil {
			return nil, nil, eris.Wrap(err, "load priority table")
		}
	}

	var tables *enrich.Tables
	if c.Enrich.TablesPath != "" {
		tables, err = enrich.LoadTables(c.Enrich.TablesPath)
		if err != nil {
			return nil, nil, eris.Wrap(err, "load enrich tables")
		}
	}
	seed := c.Enrich.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	collectors, err := collector.Build(c, deps)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, len(collectors))
	for i, col := range collectors {
		names[i] = string(col.Source())
	}
	zap.L().Info("pipeline initialized",
		zap.Strings("sources", names),
		zap.Float64("min_quality_score", c.Pipeline.MinQualityScore),
	)

	breakers := resilience.NewBreakers(c.Pipeline.BreakerThreshold, time.Duration(c.Pipeline.BreakerCooldownSecs)*time.Second)

	p := pipeline.New(pipeline.PolicyFromConfig(c.Pipeline), pipeline.Deps{
		Store:      st,
		Collectors: collectors,
		Fuser:      company.NewFuser(table),
		Scorer:     sc,
		Enricher:   enrich.New(tables, rand.New(rand.NewSource(seed))),
		Sink:       export.NewFileSink(c.Export.OutputDir),
		Breakers:   breakers,
	})
	return p, breakers, nil
}
