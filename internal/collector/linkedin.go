package collector

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/pkg/searx"
)

var employeesPattern = regexp.MustCompile(`(?i)(\d[\d.,]*(?:\s*-\s*\d[\d.,]*)?\+?)\s*(?:funcionários|colaboradores|employees)`)

// LinkedIn finds a company's LinkedIn page through a site-restricted web
// search. It never logs in or scrapes LinkedIn itself.
type LinkedIn struct {
	client searx.Client
	opts   Options
}

// NewLinkedIn creates the professional-network collector.
func NewLinkedIn(client searx.Client, opts Options) *LinkedIn {
	return &LinkedIn{client: client, opts: opts.withDefaults()}
}

func (l *LinkedIn) Source() model.Source { return model.SourceLinkedIn }

func (l *LinkedIn) Open(context.Context) (Session, error) { return linkedinSession{l}, nil }

type linkedinSession struct{ l *LinkedIn }

func (s linkedinSession) Search(ctx context.Context, criteria *model.Criteria) ([]Candidate, error) {
	return discover(ctx, s.l.client, s.l.opts, model.SourceLinkedIn, criteria)
}

func (s linkedinSession) Collect(ctx context.Context, c Candidate, h Hints) (model.SourceRecord, error) {
	resp, err := call(ctx, s.l.opts, model.SourceLinkedIn, "profile", func(ctx context.Context) (*searx.Response, error) {
		return s.l.client.Search(ctx, c.Name, searx.WithSiteFilter("linkedin.com/company"))
	})
	if err != nil {
		return model.SourceRecord{}, Unavailable(model.SourceLinkedIn, "profile", err)
	}

	for _, r := range resp.Results {
		if !strings.Contains(strings.ToLower(r.URL), "linkedin.com/company/") {
			continue
		}
		size := ""
		if m := employeesPattern.FindStringSubmatch(r.Content); m != nil {
			size = m[0]
		}
		return record(model.SourceLinkedIn, h, map[string]string{
			"name":         c.Name,
			"linkedin_url": r.URL,
			"company_size": size,
		}), nil
	}
	return model.SourceRecord{}, eris.Wrapf(ErrNoData, "linkedin: no company page for %q", c.Name)
}

func (linkedinSession) Close() error { return nil }
