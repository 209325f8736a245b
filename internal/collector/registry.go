package collector

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/browser"
	"github.com/sells-group/fusion-cli/internal/config"
	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/resilience"
	"github.com/sells-group/fusion-cli/pkg/anthropic"
	"github.com/sells-group/fusion-cli/pkg/receitaws"
	"github.com/sells-group/fusion-cli/pkg/searx"
)

// Deps are the clients collectors are built on. Nil HTTP clients are created
// from config on demand. The browser is owned by the caller, who closes it
// after the run.
type Deps struct {
	Search   searx.Client
	Registry receitaws.Client
	LLM      anthropic.Client
	Browser  browser.Loader
}

// OptionsFromConfig derives call bounds from the pipeline and retry sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CallTimeout:   time.Duration(cfg.Pipeline.CallTimeoutSecs) * time.Second,
		Retry:         resilience.FromConfig(cfg.Retry),
		MaxCandidates: cfg.Pipeline.MaxCandidates,
	}.withDefaults()
}

// Build creates the collectors named in pipeline.sources, in order. Naming
// "fixture" adds one replay collector per source found in the fixture file.
// The ai collector is skipped with a warning when no Anthropic key is set.
func Build(cfg *config.Config, deps Deps) ([]Collector, error) {
	opts := OptionsFromConfig(cfg)

	search := func() searx.Client {
		if deps.Search == nil {
			deps.Search = searx.NewClient(cfg.Search.BaseURL, searx.WithRateLimit(float64(max(cfg.Search.RatePerSec, 1))))
		}
		return deps.Search
	}

	var out []Collector
	for _, name := range cfg.Pipeline.Sources {
		switch model.Source(name) {
		case model.SourceFixture:
			if cfg.Fixtures.Path == "" {
				return nil, eris.New("collector: fixture source needs fixtures.path")
			}
			records, err := LoadFixtures(cfg.Fixtures.Path)
			if err != nil {
				return nil, err
			}
			out = append(out, FixtureCollectors(records)...)
		case model.SourceSearch:
			out = append(out, NewSearch(search(), opts))
		case model.SourceCNPJ:
			out = append(out, NewCNPJ(search(), opts))
		case model.SourceReceitaWS:
			if deps.Registry == nil {
				deps.Registry = receitaws.NewClient(
					receitaws.WithBaseURL(cfg.ReceitaWS.BaseURL),
					receitaws.WithRatePerMinute(float64(cfg.ReceitaWS.RatePerMinute)),
				)
			}
			out = append(out, NewReceitaWS(deps.Registry, search(), opts))
		case model.SourceLinkedIn:
			out = append(out, NewLinkedIn(search(), opts))
		case model.SourceCompanySite:
			if deps.Browser == nil {
				return nil, eris.New("collector: company_site source needs a browser")
			}
			out = append(out, NewCompanySite(deps.Browser, search(), opts))
		case model.SourceAI:
			if deps.LLM == nil {
				if cfg.Anthropic.Key == "" {
					zap.L().Warn("collector: skipping ai source, anthropic.key not set")
					continue
				}
				deps.LLM = anthropic.NewClient(cfg.Anthropic.Key, anthropic.WithMaxRetries(0))
			}
			out = append(out, NewAI(deps.LLM, search(), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, opts))
		default:
			return nil, eris.Errorf("collector: unknown source %q", name)
		}
	}
	return out, nil
}
