package pipeline

import (
	"cmp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/model"
)

type filterOutcome struct {
	kept      []model.ScoredRecord
	valid     int
	patched   int
	discarded int
	empty     int
	capped    int
	synthetic bool
}

func (o filterOutcome) metadata() map[string]any {
	return map[string]any{
		"kept":      len(o.kept),
		"patched":   o.patched,
		"discarded": o.discarded,
		"empty":     o.empty,
		"capped":    o.capped,
		"synthetic": o.synthetic,
	}
}

// filter applies the keep/patch/discard decision to every scored record.
//
// A record without its mandatory fields is dropped silently. One scoring at
// or above the threshold is kept. One below it is kept only under the
// partial-export policy, enriched first when fallback is on; its score is
// the one computed from sourced data. Survivors are ordered by score,
// highest first, and capped at maxResults. When nothing survives and both
// fallback and synthetic mode are on, synthetic records take their place.
func (p *Pipeline) filter(scored []model.ScoredRecord, maxResults int, rt *runTracker) filterOutcome {
	var out filterOutcome

	for _, sr := range scored {
		rec := sr.Record
		switch {
		case !p.scorer.HasMandatory(rec):
			out.empty++
			out.discarded++
			recordDecisions.WithLabelValues(decisionEmpty).Inc()
			rt.log.Debug("pipeline: discarding record without mandatory fields",
				zap.String("identity", string(rec.Identity)),
			)

		case sr.Score.Score >= p.policy.MinQualityScore:
			out.kept = append(out.kept, sr)
			recordDecisions.WithLabelValues(decisionKept).Inc()

		case p.policy.AllowPartialExport:
			if p.policy.UseFallback && p.enricher != nil {
				sr.Record = p.enricher.Enrich(rec)
			}
			out.kept = append(out.kept, sr)
			out.patched++
			recordDecisions.WithLabelValues(decisionPatched).Inc()
			rt.warn("%s: kept below threshold (score %.2f < %.2f), missing %s",
				rec.Get(model.FieldCompanyName), sr.Score.Score, p.policy.MinQualityScore,
				fieldKeys(p.scorer.MissingFields(rec)))
			rt.log.Warn("pipeline: keeping below-threshold record",
				zap.String("identity", string(rec.Identity)),
				zap.Float64("score", sr.Score.Score),
				zap.Int("synthetic_fields", len(sr.Record.SyntheticFields())),
			)

		default:
			out.discarded++
			recordDecisions.WithLabelValues(decisionDiscarded).Inc()
			rt.log.Info("pipeline: discarding low-quality record",
				zap.String("identity", string(rec.Identity)),
				zap.Float64("score", sr.Score.Score),
			)
		}
	}

	slices.SortStableFunc(out.kept, func(a, b model.ScoredRecord) int {
		return cmp.Compare(b.Score.Score, a.Score.Score)
	})
	if maxResults > 0 && len(out.kept) > maxResults {
		out.capped = len(out.kept) - maxResults
		out.kept = out.kept[:maxResults]
	}
	out.valid = len(out.kept)

	if out.valid == 0 && p.policy.UseFallback && p.policy.AllowSynthetic && p.enricher != nil {
		n := maxResults
		if n <= 0 {
			n = model.DefaultMaxResults
		}
		for _, rec := range p.enricher.Synthesize(n) {
			out.kept = append(out.kept, model.ScoredRecord{Record: rec, Score: p.scorer.Score(rec)})
		}
		out.synthetic = true
		rt.warn("no qualifying records; returned %d synthetic records", n)
	}
	return out
}

func fieldKeys(fields []model.Field) string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key()
	}
	return strings.Join(keys, ", ")
}
