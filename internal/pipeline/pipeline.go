// Package pipeline sequences a fusion run: planning, concurrent per-source
// collection, identity grouping and fusion, quality scoring, and the
// keep/patch/discard filter, persisting every state change to the run store.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/collector"
	"github.com/sells-group/fusion-cli/internal/company"
	"github.com/sells-group/fusion-cli/internal/config"
	"github.com/sells-group/fusion-cli/internal/export"
	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/resilience"
	"github.com/sells-group/fusion-cli/internal/store"
)

// Scorer rates fused records.
type Scorer interface {
	Score(rec model.UnifiedRecord) model.QualityScore
	HasMandatory(rec model.UnifiedRecord) bool
	MissingFields(rec model.UnifiedRecord) []model.Field
}

// Enricher fills missing fields with synthetic values.
type Enricher interface {
	Enrich(rec model.UnifiedRecord) model.UnifiedRecord
	Synthesize(n int) []model.UnifiedRecord
}

// Policy holds the run-level decisions of the controller.
type Policy struct {
	MinQualityScore     float64
	AllowPartialExport  bool
	UseFallback         bool
	AllowSynthetic      bool
	StageTimeout        time.Duration
	MaxConcurrentStages int
}

// PolicyFromConfig maps the pipeline config section onto a Policy.
func PolicyFromConfig(cfg config.PipelineConfig) Policy {
	return Policy{
		MinQualityScore:     cfg.MinQualityScore,
		AllowPartialExport:  cfg.AllowPartialExport,
		UseFallback:         cfg.UseFallback,
		AllowSynthetic:      cfg.AllowSynthetic,
		StageTimeout:        time.Duration(cfg.StageTimeoutSecs) * time.Second,
		MaxConcurrentStages: cfg.MaxConcurrentStages,
	}
}

// Deps are the collaborators of a Pipeline. Enricher and Sink may be nil;
// Fuser and Breakers default when nil.
type Deps struct {
	Store      store.Store
	Collectors []collector.Collector
	Fuser      *company.Fuser
	Scorer     Scorer
	Enricher   Enricher
	Sink       export.Sink
	Breakers   *resilience.Breakers
}

// Pipeline runs fusion runs. It is safe for concurrent use; each run keeps
// its own state.
type Pipeline struct {
	policy     Policy
	store      store.Store
	collectors []collector.Collector
	fuser      *company.Fuser
	scorer     Scorer
	enricher   Enricher
	sink       export.Sink
	breakers   *resilience.Breakers
}

// New creates a Pipeline.
func New(policy Policy, deps Deps) *Pipeline {
	if deps.Fuser == nil {
		deps.Fuser = company.NewFuser(nil)
	}
	if deps.Breakers == nil {
		deps.Breakers = resilience.NewBreakers(0, 0)
	}
	return &Pipeline{
		policy:     policy,
		store:      deps.Store,
		collectors: deps.Collectors,
		fuser:      deps.Fuser,
		scorer:     deps.Scorer,
		enricher:   deps.Enricher,
		sink:       deps.Sink,
		breakers:   deps.Breakers,
	}
}

// Breakers returns the per-source circuit breakers shared by all runs.
func (p *Pipeline) Breakers() *resilience.Breakers {
	return p.breakers
}

// Run validates criteria, records a new run and executes it.
func (p *Pipeline) Run(ctx context.Context, criteria *model.Criteria) (*model.RunResult, error) {
	run, err := p.Start(ctx, criteria)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, run)
}

// Start normalizes and validates criteria and records a run in the
// planning state. Invalid criteria abort before anything is stored.
func (p *Pipeline) Start(ctx context.Context, criteria *model.Criteria) (*model.Run, error) {
	if criteria == nil {
		return nil, model.ErrEmptyCriteria
	}
	c := criteria.Clone()
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	run, err := p.store.CreateRun(ctx, *c)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}

// Execute drives a started run to done or failed. Per-source and
// per-record problems become warnings on the result; only a run with no
// collection stages, or a cancelled context, returns an error.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) (*model.RunResult, error) {
	start := time.Now()
	criteria := run.Criteria
	rt := p.newTracker(ctx, run.ID)
	log := rt.log

	log.Info("pipeline: starting run", zap.String("query", criteria.Query()))

	fail := func(err error) (*model.RunResult, error) {
		rt.fail(err)
		runsTotal.WithLabelValues(string(model.RunStatusFailed)).Inc()
		runDuration.Observe(time.Since(start).Seconds())
		return nil, err
	}

	// ===== Planning =====
	rt.trackPhase("plan", func() (*model.PhaseResult, error) {
		if len(p.collectors) == 0 {
			return nil, model.ErrNoSources
		}
		sources := make([]string, len(p.collectors))
		for i, c := range p.collectors {
			sources[i] = string(c.Source())
		}
		return &model.PhaseResult{Metadata: map[string]any{"stages": sources}}, nil
	})
	if len(p.collectors) == 0 {
		return fail(eris.Wrap(model.ErrNoSources, "pipeline: plan"))
	}

	// ===== Collecting =====
	rt.setStatus(model.RunStatusCollecting)
	records, stages := p.collect(ctx, rt, &criteria)
	for _, s := range stages {
		if s.err != nil {
			rt.warn("%v", s.err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(eris.Wrap(err, "pipeline: collect"))
	}

	// ===== Fusing =====
	rt.setStatus(model.RunStatusFusing)
	var fused []model.UnifiedRecord
	rt.trackPhase("fuse", func() (*model.PhaseResult, error) {
		groups := company.GroupRecords(records)
		fused = p.fuser.FuseGroups(groups)
		return &model.PhaseResult{Metadata: map[string]any{
			"observations": len(records),
			"identities":   len(groups),
		}}, nil
	})

	// ===== Scoring =====
	rt.setStatus(model.RunStatusScoring)
	var scored []model.ScoredRecord
	rt.trackPhase("score", func() (*model.PhaseResult, error) {
		scored = make([]model.ScoredRecord, len(fused))
		for i, rec := range fused {
			scored[i] = model.ScoredRecord{Record: rec, Score: p.scorer.Score(rec)}
			recordScores.Observe(scored[i].Score.Score)
		}
		return &model.PhaseResult{Metadata: map[string]any{"records": len(scored)}}, nil
	})

	// ===== Filtering =====
	rt.setStatus(model.RunStatusFiltering)
	var outcome filterOutcome
	rt.trackPhase("filter", func() (*model.PhaseResult, error) {
		outcome = p.filter(scored, criteria.Output.MaxResults, rt)
		return &model.PhaseResult{Metadata: outcome.metadata()}, nil
	})

	result := &model.RunResult{
		RunID:      run.ID,
		Records:    outcome.kept,
		TotalFound: len(fused),
		TotalValid: outcome.valid,
		Discarded:  outcome.discarded,
		Patched:    outcome.patched,
		Synthetic:  outcome.synthetic,
	}

	// ===== Export =====
	if p.sink != nil {
		rt.trackPhase("export", func() (*model.PhaseResult, error) {
			location, err := p.sink.Export(ctx, result.UnifiedRecords(), criteria.Output)
			if err != nil {
				rt.warn("export: %v", err)
				return nil, err
			}
			result.OutputLocation = location
			return &model.PhaseResult{Metadata: map[string]any{"location": location}}, nil
		})
	}

	result.ElapsedSeconds = time.Since(start).Seconds()
	result.Warnings = rt.warnings()
	result.Phases = rt.phaseResults()

	rt.complete(result)
	runsTotal.WithLabelValues(string(model.RunStatusDone)).Inc()
	runDuration.Observe(result.ElapsedSeconds)

	log.Info("pipeline: run complete",
		zap.Int("total_found", result.TotalFound),
		zap.Int("total_valid", result.TotalValid),
		zap.Int("discarded", result.Discarded),
		zap.Int("patched", result.Patched),
		zap.Float64("elapsed_seconds", result.ElapsedSeconds),
	)
	return result, nil
}

// runTracker persists one run's status and phases. Store failures are
// logged and never fail the run. Writes use a context detached from
// cancellation so a cancelled run can still be marked failed.
type runTracker struct {
	ctx   context.Context
	store store.Store
	runID string
	log   *zap.Logger

	mu     sync.Mutex
	phases []model.PhaseResult
	warns  []string
}

func (p *Pipeline) newTracker(ctx context.Context, runID string) *runTracker {
	return &runTracker{
		ctx:   context.WithoutCancel(ctx),
		store: p.store,
		runID: runID,
		log:   zap.L().With(zap.String("run_id", runID)),
	}
}

func (rt *runTracker) setStatus(status model.RunStatus) {
	if err := rt.store.UpdateRunStatus(rt.ctx, rt.runID, status); err != nil {
		rt.log.Warn("pipeline: failed to update status", zap.String("status", string(status)), zap.Error(err))
	}
}

// trackPhase runs fn as a named phase. It is safe to call from concurrent
// stages.
func (rt *runTracker) trackPhase(name string, fn func() (*model.PhaseResult, error)) *model.PhaseResult {
	phase, phaseErr := rt.store.CreatePhase(rt.ctx, rt.runID, name)
	if phaseErr != nil {
		rt.log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
	}

	start := time.Now()
	phaseResult, fnErr := fn()
	duration := time.Since(start).Milliseconds()

	if phaseResult == nil {
		phaseResult = &model.PhaseResult{}
	}
	phaseResult.Name = name
	phaseResult.Duration = duration

	if fnErr != nil {
		phaseResult.Status = model.PhaseStatusFailed
		phaseResult.Error = fnErr.Error()
		rt.log.Warn("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(fnErr),
		)
	} else {
		phaseResult.Status = model.PhaseStatusComplete
		rt.log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
	}

	if phase != nil {
		if err := rt.store.CompletePhase(rt.ctx, phase.ID, phaseResult); err != nil {
			rt.log.Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(err))
		}
	}
	rt.mu.Lock()
	rt.phases = append(rt.phases, *phaseResult)
	rt.mu.Unlock()
	return phaseResult
}

func (rt *runTracker) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	rt.mu.Lock()
	rt.warns = append(rt.warns, msg)
	rt.mu.Unlock()
}

func (rt *runTracker) warnings() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.warns...)
}

func (rt *runTracker) phaseResults() []model.PhaseResult {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]model.PhaseResult(nil), rt.phases...)
}

func (rt *runTracker) fail(err error) {
	rt.log.Error("pipeline: run failed", zap.Error(err))
	if storeErr := rt.store.FailRun(rt.ctx, rt.runID, err.Error()); storeErr != nil {
		rt.log.Warn("pipeline: failed to record failure", zap.Error(storeErr))
	}
}

func (rt *runTracker) complete(result *model.RunResult) {
	if err := rt.store.UpdateRunResult(rt.ctx, rt.runID, result); err != nil {
		rt.log.Warn("pipeline: failed to save run result", zap.Error(err))
	}
}
