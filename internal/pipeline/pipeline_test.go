package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/fusion-cli/internal/collector"
	"github.com/sells-group/fusion-cli/internal/config"
	"github.com/sells-group/fusion-cli/internal/enrich"
	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/resilience"
	"github.com/sells-group/fusion-cli/internal/scorer"
	"github.com/sells-group/fusion-cli/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func defaultPolicy() Policy {
	return Policy{
		MinQualityScore:    0.7,
		AllowPartialExport: false,
		StageTimeout:       5 * time.Second,
	}
}

func realScorer(t *testing.T) *scorer.Scorer {
	t.Helper()
	s, err := scorer.NewScorer(scorer.DefaultQualityConfig())
	require.NoError(t, err)
	return s
}

func sectorCriteria() *model.Criteria {
	return &model.Criteria{Sector: model.Sector{Main: "tecnologia"}}
}

func newPipeline(t *testing.T, policy Policy, deps Deps) (*Pipeline, store.Store) {
	t.Helper()
	if deps.Store == nil {
		deps.Store = newTestStore(t)
	}
	if deps.Scorer == nil {
		deps.Scorer = realScorer(t)
	}
	return New(policy, deps), deps.Store
}

func TestRun_FusesAcrossSources(t *testing.T) {
	cnpjSrc := &fakeCollector{source: model.SourceCNPJ, records: []model.SourceRecord{
		rec(model.SourceCNPJ, map[string]string{"name": "Acme Ltda", "cnpj": "12.345.678/0001-90"}),
	}}
	registry := &fakeCollector{source: model.SourceReceitaWS, records: []model.SourceRecord{
		rec(model.SourceReceitaWS, map[string]string{"cnpj": "12345678000190", "endereco": "Rua X, 10"}),
	}}
	sink := &fakeSink{location: "/tmp/out.xlsx"}

	p, st := newPipeline(t, defaultPolicy(), Deps{
		Collectors: []collector.Collector{cnpjSrc, registry},
		Sink:       sink,
	})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)

	assert.Equal(t, 1, res.TotalFound)
	assert.Equal(t, 1, res.TotalValid)
	require.Len(t, res.Records, 1)
	got := res.Records[0].Record
	assert.Equal(t, model.CompanyIdentity("cnpj:12345678000190"), got.Identity)
	assert.Equal(t, "12345678000190", got.Get(model.FieldCNPJ))
	assert.Equal(t, "Acme Ltda", got.Get(model.FieldCompanyName))
	assert.Equal(t, "Rua X, 10", got.Get(model.FieldLocation))
	assert.GreaterOrEqual(t, res.Records[0].Score.Score, 0.7)
	assert.Equal(t, "/tmp/out.xlsx", res.OutputLocation)
	assert.Empty(t, res.Warnings)

	// Sink sees the same records and the normalized output preferences.
	require.Len(t, sink.got, 1)
	assert.Equal(t, model.FormatExcel, sink.output.Format)

	// Sessions are opened and released once per stage.
	assert.Equal(t, int32(1), cnpjSrc.opened.Load())
	assert.Equal(t, int32(1), cnpjSrc.closed.Load())
	assert.Equal(t, int32(1), registry.closed.Load())

	// The run is persisted as done with its result and phases.
	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 1, run.Result.TotalValid)

	phases, err := st.ListPhases(context.Background(), res.RunID)
	require.NoError(t, err)
	names := make([]string, 0, len(phases))
	for _, ph := range phases {
		names = append(names, ph.Name)
		assert.Equal(t, model.PhaseStatusComplete, ph.Status, ph.Name)
	}
	assert.ElementsMatch(t, []string{"plan", "collect_cnpj", "collect_receitaws", "fuse", "score", "filter", "export"}, names)
}

func TestRun_GroupsByNameCaseInsensitive(t *testing.T) {
	a := &fakeCollector{source: model.SourceLinkedIn, records: []model.SourceRecord{
		rec(model.SourceLinkedIn, map[string]string{"name": "Beta Corp", "linkedin_url": "https://www.linkedin.com/company/beta"}),
	}}
	b := &fakeCollector{source: model.SourceSearch, records: []model.SourceRecord{
		rec(model.SourceSearch, map[string]string{"name": "BETA CORP", "description": "software"}),
	}}

	p, _ := newPipeline(t, Policy{MinQualityScore: 0}, Deps{Collectors: []collector.Collector{a, b}})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalFound)
	require.Len(t, res.Records, 1)
	assert.Equal(t, model.NewIdentity(model.IdentitySchemeName, "beta corp"), res.Records[0].Record.Identity)
}

func TestRun_PartialSourceTolerance(t *testing.T) {
	good := &fakeCollector{source: model.SourceCNPJ, records: []model.SourceRecord{
		rec(model.SourceCNPJ, map[string]string{"name": "Acme Ltda", "cnpj": "12345678000190"}),
	}}
	openFails := &fakeCollector{source: model.SourceCompanySite, openErr: errBoom}
	searchFails := &fakeCollector{source: model.SourceLinkedIn, searchErr: errBoom}

	p, st := newPipeline(t, defaultPolicy(), Deps{
		Collectors: []collector.Collector{openFails, good, searchFails},
	})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalFound)
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.Contains(t, w, "boom")
	}

	// The failing search still releases its session.
	assert.Equal(t, int32(1), searchFails.opened.Load())
	assert.Equal(t, int32(1), searchFails.closed.Load())

	phases, err := st.ListPhases(context.Background(), res.RunID)
	require.NoError(t, err)
	failed := map[string]bool{}
	for _, ph := range phases {
		if ph.Status == model.PhaseStatusFailed {
			failed[ph.Name] = true
		}
	}
	assert.Equal(t, map[string]bool{"collect_company_site": true, "collect_linkedin": true}, failed)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
}

func TestRun_AllSourcesFailStillReturnsResult(t *testing.T) {
	p, _ := newPipeline(t, defaultPolicy(), Deps{
		Collectors: []collector.Collector{&fakeCollector{source: model.SourceSearch, searchErr: errBoom}},
	})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalFound)
	assert.Equal(t, 0, res.TotalValid)
	assert.Empty(t, res.Records)
	assert.Len(t, res.Warnings, 1)
}

func TestRun_StageTimeoutIsSourceFailure(t *testing.T) {
	slow := &fakeCollector{source: model.SourceCompanySite, block: true}
	fast := &fakeCollector{source: model.SourceCNPJ, records: []model.SourceRecord{
		rec(model.SourceCNPJ, map[string]string{"name": "Acme Ltda", "cnpj": "12345678000190"}),
	}}

	policy := defaultPolicy()
	policy.StageTimeout = 50 * time.Millisecond
	p, _ := newPipeline(t, policy, Deps{Collectors: []collector.Collector{slow, fast}})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalFound)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "company_site")
	assert.Equal(t, int32(1), slow.closed.Load())
}

func TestRun_CancellationReleasesSessions(t *testing.T) {
	blockers := []*fakeCollector{
		{source: model.SourceCompanySite, block: true},
		{source: model.SourceLinkedIn, block: true},
	}
	p, st := newPipeline(t, defaultPolicy(), Deps{
		Collectors: []collector.Collector{blockers[0], blockers[1]},
	})

	run, err := p.Start(context.Background(), sectorCriteria())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err = p.Execute(ctx, run)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	for _, b := range blockers {
		assert.Equal(t, b.opened.Load(), b.closed.Load(), string(b.source))
	}

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "canceled")
}

func TestStart_LeavesCallerCriteriaUntouched(t *testing.T) {
	p, _ := newPipeline(t, defaultPolicy(), Deps{})
	criteria := &model.Criteria{
		Companies: []model.CompanyRef{{Name: " Acme "}, {Name: " "}},
		Location:  model.Location{States: model.StringList{"sp"}},
	}

	run, err := p.Start(context.Background(), criteria)
	require.NoError(t, err)
	assert.Equal(t, []model.CompanyRef{{Name: "Acme"}}, run.Criteria.Companies)
	assert.Equal(t, model.StringList{"SP"}, run.Criteria.Location.States)

	assert.Equal(t, []model.CompanyRef{{Name: " Acme "}, {Name: " "}}, criteria.Companies)
	assert.Equal(t, model.StringList{"sp"}, criteria.Location.States)
	assert.Empty(t, criteria.Output.Format)
}

func TestRun_NoSourcesIsFatal(t *testing.T) {
	p, st := newPipeline(t, defaultPolicy(), Deps{})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, model.ErrNoSources))

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
}

func TestRun_InvalidCriteria(t *testing.T) {
	p, st := newPipeline(t, defaultPolicy(), Deps{
		Collectors: []collector.Collector{&fakeCollector{source: model.SourceSearch}},
	})

	_, err := p.Run(context.Background(), nil)
	assert.True(t, errors.Is(err, model.ErrEmptyCriteria))

	_, err = p.Run(context.Background(), &model.Criteria{Output: model.Output{Format: "csv"}})
	assert.True(t, errors.Is(err, model.ErrInvalidCriteria))

	// Nothing is recorded for rejected criteria.
	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_BelowThresholdDiscarded(t *testing.T) {
	src := &fakeCollector{source: model.SourceSearch, records: []model.SourceRecord{
		rec(model.SourceSearch, map[string]string{"name": "Gamma"}),
	}}
	sc := &mockScorer{}
	sc.On("HasMandatory", mock.Anything).Return(true)
	sc.On("Score", mock.Anything).Return(model.QualityScore{Score: 0.25})

	policy := Policy{MinQualityScore: 0.3, AllowPartialExport: false}
	p, _ := newPipeline(t, policy, Deps{Collectors: []collector.Collector{src}, Scorer: sc})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalFound)
	assert.Equal(t, 0, res.TotalValid)
	assert.Equal(t, 1, res.Discarded)
	assert.Empty(t, res.Records)
	sc.AssertExpectations(t)
}

func TestRun_BelowThresholdKeptUnderPartialExport(t *testing.T) {
	src := &fakeCollector{source: model.SourceSearch, records: []model.SourceRecord{
		rec(model.SourceSearch, map[string]string{"name": "Gamma", "website": "gamma.com.br"}),
	}}
	sc := &mockScorer{}
	sc.On("HasMandatory", mock.Anything).Return(true)
	sc.On("Score", mock.Anything).Return(model.QualityScore{Score: 0.25})
	sc.On("MissingFields", mock.Anything).Return([]model.Field{model.FieldEmail})

	policy := Policy{MinQualityScore: 0.3, AllowPartialExport: true, UseFallback: true}
	p, _ := newPipeline(t, policy, Deps{
		Collectors: []collector.Collector{src},
		Scorer:     sc,
		Enricher:   enrich.New(nil, rand.New(rand.NewSource(7))),
	})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Patched)
	require.Len(t, res.Records, 1)

	got := res.Records[0]
	assert.InDelta(t, 0.25, got.Score.Score, 1e-9)
	assert.Equal(t, "contato@gamma.com.br", got.Record.Get(model.FieldEmail))
	assert.True(t, got.Record.IsSynthetic(model.FieldEmail))
	assert.False(t, got.Record.IsSynthetic(model.FieldCompanyName))

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "kept below threshold")
	assert.Contains(t, res.Warnings[0], "email")
}

func TestRun_PartialExportWithoutFallbackKeepsRecordAsIs(t *testing.T) {
	src := &fakeCollector{source: model.SourceSearch, records: []model.SourceRecord{
		rec(model.SourceSearch, map[string]string{"name": "Gamma"}),
	}}
	policy := Policy{MinQualityScore: 0.99, AllowPartialExport: true}
	p, _ := newPipeline(t, policy, Deps{
		Collectors: []collector.Collector{src},
		Enricher:   enrich.New(nil, rand.New(rand.NewSource(7))),
	})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Empty(t, res.Records[0].Record.SyntheticFields())
	assert.Equal(t, "", res.Records[0].Record.Get(model.FieldEmail))
}

func TestRun_EmptyRecordDiscardedSilently(t *testing.T) {
	// A registry row without a name fuses into a record that lacks the
	// mandatory field.
	src := &fakeCollector{source: model.SourceReceitaWS, records: []model.SourceRecord{
		rec(model.SourceReceitaWS, map[string]string{"cnpj": "12345678000190", "municipio": "Campinas"}),
	}}
	policy := Policy{MinQualityScore: 0, AllowPartialExport: true}
	p, _ := newPipeline(t, policy, Deps{Collectors: []collector.Collector{src}})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalFound)
	assert.Equal(t, 1, res.Discarded)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Warnings)
}

func TestRun_CapsAndOrdersByScore(t *testing.T) {
	src := &fakeCollector{source: model.SourceSearch, records: []model.SourceRecord{
		rec(model.SourceSearch, map[string]string{"name": "Low"}),
		rec(model.SourceSearch, map[string]string{"name": "High"}),
		rec(model.SourceSearch, map[string]string{"name": "Mid"}),
	}}
	scores := map[string]float64{"Low": 0.71, "High": 0.95, "Mid": 0.8}
	sc := &mockScorer{}
	sc.On("HasMandatory", mock.Anything).Return(true)
	for name, s := range scores {
		sc.On("Score", mock.MatchedBy(func(r model.UnifiedRecord) bool {
			return r.Get(model.FieldCompanyName) == name
		})).Return(model.QualityScore{Score: s})
	}

	p, _ := newPipeline(t, defaultPolicy(), Deps{Collectors: []collector.Collector{src}, Scorer: sc})

	criteria := sectorCriteria()
	criteria.Output.MaxResults = 2
	res, err := p.Run(context.Background(), criteria)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalFound)
	assert.Equal(t, 2, res.TotalValid)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "High", res.Records[0].Record.Get(model.FieldCompanyName))
	assert.Equal(t, "Mid", res.Records[1].Record.Get(model.FieldCompanyName))
}

func TestRun_SyntheticFallback(t *testing.T) {
	src := &fakeCollector{source: model.SourceSearch}
	policy := Policy{MinQualityScore: 0.7, UseFallback: true, AllowSynthetic: true}
	p, _ := newPipeline(t, policy, Deps{
		Collectors: []collector.Collector{src},
		Enricher:   enrich.New(nil, rand.New(rand.NewSource(1))),
	})

	criteria := sectorCriteria()
	criteria.Output.MaxResults = 3
	res, err := p.Run(context.Background(), criteria)
	require.NoError(t, err)
	assert.True(t, res.Synthetic)
	assert.Equal(t, 0, res.TotalValid)
	require.Len(t, res.Records, 3)
	for _, r := range res.Records {
		assert.True(t, r.Record.IsSynthetic(model.FieldCompanyName))
	}
	assert.NotEmpty(t, res.Warnings)
}

func TestRun_SyntheticRequiresBothFlags(t *testing.T) {
	src := &fakeCollector{source: model.SourceSearch}
	policy := Policy{MinQualityScore: 0.7, UseFallback: true}
	p, _ := newPipeline(t, policy, Deps{
		Collectors: []collector.Collector{src},
		Enricher:   enrich.New(nil, rand.New(rand.NewSource(1))),
	})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.False(t, res.Synthetic)
	assert.Empty(t, res.Records)
}

func TestRun_ExportFailureIsWarning(t *testing.T) {
	src := &fakeCollector{source: model.SourceCNPJ, records: []model.SourceRecord{
		rec(model.SourceCNPJ, map[string]string{"name": "Acme Ltda", "cnpj": "12345678000190"}),
	}}
	p, st := newPipeline(t, defaultPolicy(), Deps{
		Collectors: []collector.Collector{src},
		Sink:       &fakeSink{err: errBoom},
	})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Empty(t, res.OutputLocation)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "export")

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
}

func TestRun_SkipsCandidatesWithoutData(t *testing.T) {
	src := &fakeCollector{
		source: model.SourceReceitaWS,
		records: []model.SourceRecord{
			rec(model.SourceReceitaWS, map[string]string{"nome": "Known", "cnpj": "12345678000190"}),
			rec(model.SourceReceitaWS, map[string]string{"nome": "Unknown"}),
			rec(model.SourceReceitaWS, map[string]string{"nome": "Broken"}),
		},
		collectErr: map[string]error{
			"Unknown": collector.ErrNoData,
			"Broken":  errBoom,
		},
	}
	p, st := newPipeline(t, Policy{MinQualityScore: 0}, Deps{Collectors: []collector.Collector{src}})

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalFound)
	assert.Empty(t, res.Warnings)

	phases, err := st.ListPhases(context.Background(), res.RunID)
	require.NoError(t, err)
	for _, ph := range phases {
		if ph.Name != "collect_receitaws" {
			continue
		}
		require.NotNil(t, ph.Result)
		assert.Equal(t, model.PhaseStatusComplete, ph.Status)
		assert.EqualValues(t, 3, ph.Result.Metadata["candidates"])
		assert.EqualValues(t, 1, ph.Result.Metadata["skipped"])
		assert.EqualValues(t, 1, ph.Result.Metadata["failed"])
	}
}

func TestRun_PassesCriteriaHints(t *testing.T) {
	src := &fakeCollector{source: model.SourceCompanySite, records: []model.SourceRecord{
		rec(model.SourceCompanySite, map[string]string{"name": "Acme Ltda"}),
	}}
	p, _ := newPipeline(t, Policy{}, Deps{Collectors: []collector.Collector{src}})

	criteria := &model.Criteria{Companies: []model.CompanyRef{{Name: "ACME LTDA", Domain: "acme.com.br", CNPJ: "12345678000190"}}}
	_, err := p.Run(context.Background(), criteria)
	require.NoError(t, err)

	require.Len(t, src.hints, 1)
	assert.Equal(t, "acme.com.br", src.hints[0].Domain)
	assert.Equal(t, "12345678000190", src.hints[0].CNPJ)
}

func TestRun_BreakerSkipsFailingSource(t *testing.T) {
	flaky := &fakeCollector{source: model.SourceLinkedIn, searchErr: errBoom}
	breakers := resilience.NewBreakers(1, time.Hour)
	p, _ := newPipeline(t, defaultPolicy(), Deps{
		Collectors: []collector.Collector{flaky},
		Breakers:   breakers,
	})

	_, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, resilience.BreakerOpen, breakers.Get("linkedin").State())

	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, int32(1), flaky.opened.Load(), "open breaker must not reopen the source")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "circuit breaker is open")
}

func TestRun_CancellationLeavesBreakerClosed(t *testing.T) {
	blocker := &fakeCollector{source: model.SourceLinkedIn, block: true}
	breakers := resilience.NewBreakers(1, time.Hour)
	p, _ := newPipeline(t, defaultPolicy(), Deps{
		Collectors: []collector.Collector{blocker},
		Breakers:   breakers,
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	_, err := p.Run(ctx, sectorCriteria())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, resilience.BreakerClosed, breakers.Get("linkedin").State())

	// A later run still reaches the source.
	blocker.block = false
	blocker.records = []model.SourceRecord{
		rec(model.SourceLinkedIn, map[string]string{"name": "Acme Ltda"}),
	}
	res, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.TotalFound)
	assert.Equal(t, int32(2), blocker.opened.Load())
}

func TestRun_BoundedStageConcurrency(t *testing.T) {
	var active, maxActive atomic.Int32
	var collectors []collector.Collector
	for _, src := range []model.Source{model.SourceCNPJ, model.SourceLinkedIn, model.SourceSearch, model.SourceAI} {
		collectors = append(collectors, &fakeCollector{
			source:    src,
			delay:     10 * time.Millisecond,
			active:    &active,
			maxActive: &maxActive,
		})
	}

	policy := defaultPolicy()
	policy.MaxConcurrentStages = 1
	p, _ := newPipeline(t, policy, Deps{Collectors: collectors})

	_, err := p.Run(context.Background(), sectorCriteria())
	require.NoError(t, err)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.PipelineConfig{
		MinQualityScore:     0.3,
		AllowPartialExport:  true,
		UseFallback:         true,
		AllowSynthetic:      true,
		StageTimeoutSecs:    90,
		MaxConcurrentStages: 2,
	})
	assert.Equal(t, Policy{
		MinQualityScore:     0.3,
		AllowPartialExport:  true,
		UseFallback:         true,
		AllowSynthetic:      true,
		StageTimeout:        90 * time.Second,
		MaxConcurrentStages: 2,
	}, p)
}
