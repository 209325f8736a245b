package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fusion-cli/internal/collector"
	"github.com/sells-group/fusion-cli/internal/model"
)

// stageResult is one collection stage's slot. Only the stage's own
// goroutine writes it; the controller reads it after Wait.
type stageResult struct {
	source     model.Source
	records    []model.SourceRecord
	candidates int
	skipped    int
	failed     int
	duration   time.Duration
	err        error
}

func (r stageResult) metadata() map[string]any {
	return map[string]any{
		"source":     string(r.source),
		"candidates": r.candidates,
		"records":    len(r.records),
		"skipped":    r.skipped,
		"failed":     r.failed,
	}
}

// collect runs every stage on a bounded pool and merges the slots once all
// stages have returned. A failed stage contributes nothing; the others are
// unaffected.
func (p *Pipeline) collect(ctx context.Context, rt *runTracker, criteria *model.Criteria) ([]model.SourceRecord, []stageResult) {
	results := make([]stageResult, len(p.collectors))

	limit := p.policy.MaxConcurrentStages
	if limit <= 0 || limit > len(p.collectors) {
		limit = len(p.collectors)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, c := range p.collectors {
		g.Go(func() error {
			name := "collect_" + string(c.Source())
			rt.trackPhase(name, func() (*model.PhaseResult, error) {
				results[i] = p.runStage(gCtx, c, criteria)
				return &model.PhaseResult{Metadata: results[i].metadata()}, results[i].err
			})
			return nil
		})
	}

	// Stage errors are tracked per phase and never fail the group.
	_ = g.Wait()

	var records []model.SourceRecord
	for _, r := range results {
		if r.err != nil {
			stageFailures.WithLabelValues(string(r.source)).Inc()
			continue
		}
		sourceRecords.WithLabelValues(string(r.source)).Add(float64(len(r.records)))
		records = append(records, r.records...)
	}
	return records, results
}

// runStage owns one collector session from Open to Close. The stage
// deadline bounds the whole stage; on expiry or cancellation the stage is
// unavailable and its partial records are dropped.
func (p *Pipeline) runStage(ctx context.Context, c collector.Collector, criteria *model.Criteria) (res stageResult) {
	src := c.Source()
	res.source = src
	start := time.Now()
	log := zap.L().With(zap.String("source", string(src)))

	breaker := p.breakers.Get(string(src))
	defer func() {
		res.duration = time.Since(start)
		stageDuration.WithLabelValues(string(src)).Observe(res.duration.Seconds())
		if res.err != nil {
			res.records = nil
			log.Warn("pipeline: stage unavailable", zap.Error(res.err))
		}
	}()

	if err := breaker.Allow(); err != nil {
		res.err = collector.Unavailable(src, "open", err)
		return res
	}

	// Caller cancellation says nothing about the source's health.
	parent := ctx
	record := func(err error) {
		if parent.Err() != nil {
			return
		}
		breaker.Record(err)
	}

	if p.policy.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.policy.StageTimeout)
		defer cancel()
	}

	sess, err := c.Open(ctx)
	if err != nil {
		record(err)
		res.err = collector.Unavailable(src, "open", err)
		return res
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			log.Warn("pipeline: close session", zap.Error(closeErr))
		}
	}()

	candidates, err := sess.Search(ctx, criteria)
	if err != nil {
		record(err)
		res.err = collector.Unavailable(src, "search", err)
		return res
	}
	res.candidates = len(candidates)

	for _, cand := range candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.err = collector.Unavailable(src, "collect", ctxErr)
			break
		}

		rec, err := sess.Collect(ctx, cand, collector.HintsFor(criteria, cand))
		if errors.Is(err, collector.ErrNoData) {
			res.skipped++
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				res.err = collector.Unavailable(src, "collect", ctxErr)
				break
			}
			res.failed++
			log.Warn("pipeline: collect candidate",
				zap.String("candidate", cand.Name),
				zap.Error(err),
			)
			continue
		}
		if rec.Source == "" {
			rec.Source = src
		}
		res.records = append(res.records, rec)
	}

	record(res.err)
	if res.err != nil {
		return res
	}
	log.Info("pipeline: stage complete",
		zap.Int("candidates", res.candidates),
		zap.Int("records", len(res.records)),
		zap.Int("skipped", res.skipped),
		zap.Int("failed", res.failed),
	)
	return res
}
