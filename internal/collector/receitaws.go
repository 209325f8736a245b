package collector

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/pkg/receitaws"
	"github.com/sells-group/fusion-cli/pkg/searx"
)

// ReceitaWS reads the official registry entry of a company. Candidates
// without a known CNPJ are first looked up through web search.
type ReceitaWS struct {
	registry receitaws.Client
	search   searx.Client
	opts     Options
}

// NewReceitaWS creates the registry collector. search may be nil, in which
// case only candidates with a known CNPJ are collected.
func NewReceitaWS(registry receitaws.Client, search searx.Client, opts Options) *ReceitaWS {
	return &ReceitaWS{registry: registry, search: search, opts: opts.withDefaults()}
}

func (r *ReceitaWS) Source() model.Source { return model.SourceReceitaWS }

func (r *ReceitaWS) Open(context.Context) (Session, error) { return receitaSession{r}, nil }

type receitaSession struct{ r *ReceitaWS }

func (s receitaSession) Search(ctx context.Context, criteria *model.Criteria) ([]Candidate, error) {
	if s.r.search == nil {
		return requested(criteria), nil
	}
	return discover(ctx, s.r.search, s.r.opts, model.SourceReceitaWS, criteria)
}

func (s receitaSession) Collect(ctx context.Context, c Candidate, h Hints) (model.SourceRecord, error) {
	cnpj := firstNonEmpty(h.CNPJ, c.CNPJ)
	if cnpj == "" && s.r.search != nil {
		f := cnpjFinder{client: s.r.search, opts: s.r.opts, source: model.SourceReceitaWS}
		found, err := f.find(ctx, c.Name)
		if err != nil {
			return model.SourceRecord{}, Unavailable(model.SourceReceitaWS, "find cnpj", err)
		}
		cnpj = found
	}
	if cnpj == "" {
		return model.SourceRecord{}, eris.Wrapf(ErrNoData, "receitaws: no cnpj for %q", c.Name)
	}

	co, err := call(ctx, s.r.opts, model.SourceReceitaWS, "lookup", func(ctx context.Context) (*receitaws.Company, error) {
		return s.r.registry.Lookup(ctx, cnpj)
	})
	if eris.Is(err, receitaws.ErrNotFound) {
		return model.SourceRecord{}, eris.Wrapf(ErrNoData, "receitaws: %v", err)
	}
	if err != nil {
		return model.SourceRecord{}, Unavailable(model.SourceReceitaWS, "lookup", err)
	}

	h.CNPJ = firstNonEmpty(co.CNPJ, cnpj)
	return record(model.SourceReceitaWS, h, map[string]string{
		"nome":              co.Nome,
		"fantasia":          co.Fantasia,
		"cnpj":              h.CNPJ,
		"endereco":          co.Location(),
		"municipio":         co.Municipio,
		"uf":                co.UF,
		"telefone":          co.Telefone,
		"email":             co.Email,
		"porte":             co.Porte,
		"situacao":          co.Situacao,
		"atividade":         co.MainActivity(),
		"natureza_juridica": co.NaturezaJuridica,
	}), nil
}

func (receitaSession) Close() error { return nil }
