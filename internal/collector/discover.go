package collector

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
	"github.com/sells-group/fusion-cli/pkg/searx"
)

// companyTerms widen a sector query towards company pages.
const companyTerms = "empresa OR companhia OR corporação"

var cnpjPattern = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}`)

// FindCNPJ returns the first formatted CNPJ in text, or "".
func FindCNPJ(text string) string {
	return cnpjPattern.FindString(text)
}

var (
	nonCompanyTitleTerms = []string{"wikipedia", "dicionário", "significado", "o que é", "definição"}
	nonCompanyURLTerms   = []string{".gov.", ".edu.", "wikipedia", "dicionario"}
)

// looksLikeCompany rejects encyclopedia, dictionary and government hits.
func looksLikeCompany(r searx.Result) bool {
	title := strings.ToLower(r.Title)
	for _, t := range nonCompanyTitleTerms {
		if strings.Contains(title, t) {
			return false
		}
	}
	u := strings.ToLower(r.URL)
	for _, t := range nonCompanyURLTerms {
		if strings.Contains(u, t) {
			return false
		}
	}
	return true
}

// companyNameFromTitle keeps the part of a page title before " - " or " | ".
func companyNameFromTitle(title string) string {
	name := title
	for _, sep := range []string{" - ", " | "} {
		if head, _, ok := strings.Cut(name, sep); ok {
			name = head
		}
	}
	return strings.TrimSpace(name)
}

// requested turns the criteria's named companies into candidates.
func requested(criteria *model.Criteria) []Candidate {
	out := make([]Candidate, 0, len(criteria.Companies))
	for _, ref := range criteria.Companies {
		out = append(out, Candidate{Name: ref.Name, CNPJ: ref.CNPJ, Domain: ref.Domain})
	}
	return out
}

// discover returns the named companies, or runs a web search built from
// the sector and location terms when none are named.
func discover(ctx context.Context, client searx.Client, o Options, src model.Source, criteria *model.Criteria) ([]Candidate, error) {
	if len(criteria.Companies) > 0 {
		return requested(criteria), nil
	}

	query := criteria.Query() + " " + companyTerms
	resp, err := call(ctx, o, src, "search", func(ctx context.Context) (*searx.Response, error) {
		return client.Search(ctx, query)
	})
	if err != nil {
		return nil, Unavailable(src, "search", err)
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, r := range resp.Results {
		if !looksLikeCompany(r) {
			continue
		}
		name := companyNameFromTitle(r.Title)
		key := normalize.Name(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Candidate{
			Name:    name,
			CNPJ:    FindCNPJ(r.Content),
			Domain:  normalize.Domain(r.URL),
			URL:     r.URL,
			Snippet: r.Content,
		})
		if len(out) >= o.MaxCandidates {
			break
		}
	}

	zap.L().Debug("collector: discovered candidates",
		zap.String("source", string(src)),
		zap.String("query", query),
		zap.Int("results", len(resp.Results)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

// cnpjFinder looks a company's CNPJ up through web search.
type cnpjFinder struct {
	client searx.Client
	opts   Options
	source model.Source
}

// find returns the first formatted CNPJ in the results of "<name> CNPJ".
func (f cnpjFinder) find(ctx context.Context, name string) (string, error) {
	resp, err := call(ctx, f.opts, f.source, "find cnpj", func(ctx context.Context) (*searx.Response, error) {
		return f.client.Search(ctx, name+" CNPJ")
	})
	if err != nil {
		return "", err
	}
	for _, r := range resp.Results {
		if c := FindCNPJ(r.Title + " " + r.Content); c != "" {
			return c, nil
		}
	}
	return "", nil
}
