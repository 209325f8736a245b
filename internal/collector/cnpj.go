package collector

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/pkg/searx"
)

// CNPJ finds a company's legal identifier by name through web search.
type CNPJ struct {
	client searx.Client
	opts   Options
}

// NewCNPJ creates the legal-ID lookup collector.
func NewCNPJ(client searx.Client, opts Options) *CNPJ {
	return &CNPJ{client: client, opts: opts.withDefaults()}
}

func (c *CNPJ) Source() model.Source { return model.SourceCNPJ }

func (c *CNPJ) Open(context.Context) (Session, error) { return cnpjSession{c}, nil }

type cnpjSession struct{ c *CNPJ }

func (s cnpjSession) Search(ctx context.Context, criteria *model.Criteria) ([]Candidate, error) {
	return discover(ctx, s.c.client, s.c.opts, model.SourceCNPJ, criteria)
}

func (s cnpjSession) Collect(ctx context.Context, c Candidate, h Hints) (model.SourceRecord, error) {
	formatted := firstNonEmpty(h.CNPJ, c.CNPJ)
	if formatted == "" {
		f := cnpjFinder{client: s.c.client, opts: s.c.opts, source: model.SourceCNPJ}
		found, err := f.find(ctx, c.Name)
		if err != nil {
			return model.SourceRecord{}, Unavailable(model.SourceCNPJ, "find cnpj", err)
		}
		if found == "" {
			return model.SourceRecord{}, eris.Wrapf(ErrNoData, "cnpj: %q", c.Name)
		}
		formatted = found
	}
	h.CNPJ = formatted
	return record(model.SourceCNPJ, h, map[string]string{
		"name":           c.Name,
		"cnpj_formatted": formatted,
	}), nil
}

func (cnpjSession) Close() error { return nil }
