package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fusion-cli/internal/collector"
	"github.com/sells-group/fusion-cli/internal/config"
	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/scorer"
)

const fixtureYAML = `records:
  - source: receitaws
    fields:
      nome: ACME COMERCIO LTDA
      cnpj: 12.345.678/0001-90
      municipio: Campinas
      uf: SP
  - source: company_site
    fields:
      name: Acme Comercio
      cnpj: "12345678000190"
      website: https://www.acme.com.br/contato
      email: Contato@Acme.com.br
`

func fixtureConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	fixtures := filepath.Join(dir, "fixtures.yaml")
	require.NoError(t, os.WriteFile(fixtures, []byte(fixtureYAML), 0o644))

	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "fusion.db")},
		Pipeline: config.PipelineConfig{
			Sources:             []string{"fixture"},
			MinQualityScore:     0.5,
			StageTimeoutSecs:    10,
			BreakerThreshold:    3,
			BreakerCooldownSecs: 60,
		},
		Quality:  scorer.DefaultQualityConfig(),
		Enrich:   config.EnrichConfig{Seed: 42},
		Export:   config.ExportConfig{OutputDir: filepath.Join(dir, "out")},
		Fixtures: config.FixturesConfig{Path: fixtures},
	}
}

func TestPipelineEnv_Close_Nil(t *testing.T) {
	pe := &pipelineEnv{}
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestInitPipeline_ValidationError(t *testing.T) {
	cfg = fixtureConfig(t)
	cfg.Pipeline.StageTimeoutSecs = 0

	env, err := initPipeline(context.Background(), "run")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage_timeout_secs")
}

func TestInitPipeline_UnknownSource(t *testing.T) {
	cfg = fixtureConfig(t)
	cfg.Pipeline.Sources = []string{"carrier-pigeon"}

	env, err := initPipeline(context.Background(), "run")
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestBuildPipeline_BadScorerConfig(t *testing.T) {
	c := fixtureConfig(t)
	c.Quality.MandatoryFields = []string{"shoe_size"}

	_, _, err := buildPipeline(c, nil, collector.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shoe_size")
}

func TestBuildPipeline_MissingPriorityFile(t *testing.T) {
	c := fixtureConfig(t)
	c.Fusion.PrioritiesPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, _, err := buildPipeline(c, nil, collector.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load priority table")
}

func TestInitPipeline_FixtureRunEndToEnd(t *testing.T) {
	cfg = fixtureConfig(t)

	ctx := context.Background()
	env, err := initPipeline(ctx, "run")
	require.NoError(t, err)
	defer env.Close()

	criteria := &model.Criteria{Sector: model.Sector{Main: "comercio"}}
	result, err := env.Pipeline.Run(ctx, criteria)
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalFound)
	require.Len(t, result.Records, 1)
	rec := result.Records[0].Record
	assert.Equal(t, "12345678000190", rec.Get(model.FieldCNPJ))
	// The registry leads on legal facts, the site on contact channels.
	assert.Equal(t, "ACME COMERCIO LTDA", rec.Get(model.FieldCompanyName))
	assert.Equal(t, "Campinas", rec.Get(model.FieldCity))
	assert.Equal(t, "acme.com.br", rec.Get(model.FieldDomain))
	assert.Equal(t, "contato@acme.com.br", rec.Get(model.FieldEmail))

	require.NotEmpty(t, result.OutputLocation)
	assert.Equal(t, ".xlsx", filepath.Ext(result.OutputLocation))
	_, statErr := os.Stat(result.OutputLocation)
	assert.NoError(t, statErr)

	run, err := env.Store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)

	assert.Contains(t, env.Breakers.States(), "receitaws")
}
