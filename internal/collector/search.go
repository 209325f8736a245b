package collector

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
	"github.com/sells-group/fusion-cli/pkg/searx"
)

// Search turns web-search hits into observations carrying the company name,
// website and any CNPJ printed in the snippet.
type Search struct {
	client searx.Client
	opts   Options
}

// NewSearch creates the web-search collector.
func NewSearch(client searx.Client, opts Options) *Search {
	return &Search{client: client, opts: opts.withDefaults()}
}

func (s *Search) Source() model.Source { return model.SourceSearch }

func (s *Search) Open(context.Context) (Session, error) { return searchSession{s}, nil }

type searchSession struct{ s *Search }

func (ss searchSession) Search(ctx context.Context, criteria *model.Criteria) ([]Candidate, error) {
	return discover(ctx, ss.s.client, ss.s.opts, model.SourceSearch, criteria)
}

func (ss searchSession) Collect(ctx context.Context, c Candidate, h Hints) (model.SourceRecord, error) {
	if c.URL == "" {
		found, err := ss.lookup(ctx, c.Name)
		if err != nil {
			return model.SourceRecord{}, err
		}
		c.URL, c.Snippet = found.URL, found.Content
		if c.CNPJ == "" {
			c.CNPJ = FindCNPJ(found.Content)
		}
	}
	return record(model.SourceSearch, h, map[string]string{
		"name":        c.Name,
		"website":     firstNonEmpty(normalize.Domain(c.URL), c.Domain),
		"cnpj":        c.CNPJ,
		"description": c.Snippet,
	}), nil
}

// lookup returns the first company-looking hit for name.
func (ss searchSession) lookup(ctx context.Context, name string) (searx.Result, error) {
	resp, err := call(ctx, ss.s.opts, model.SourceSearch, "lookup", func(ctx context.Context) (*searx.Response, error) {
		return ss.s.client.Search(ctx, name)
	})
	if err != nil {
		return searx.Result{}, Unavailable(model.SourceSearch, "lookup", err)
	}
	for _, r := range resp.Results {
		if looksLikeCompany(r) {
			return r, nil
		}
	}
	return searx.Result{}, eris.Wrapf(ErrNoData, "search: %q", name)
}

func (searchSession) Close() error { return nil }
