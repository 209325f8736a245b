package collector

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/browser"
	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
	"github.com/sells-group/fusion-cli/pkg/searx"
)

var (
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern    = regexp.MustCompile(`\(?\b(\d{2})\)?[-.\s]?(9?\d{4})[-.\s]?(\d{4})\b`)
	linkedinPattern = regexp.MustCompile(`https?://(?:[a-z]{2,3}\.)?linkedin\.com/company/[A-Za-z0-9_%-]+`)
)

// contactPaths are tried in order after the home page until both an email
// and a phone are known.
var contactPaths = []string{
	"/contato", "/contact", "/fale-conosco", "/about", "/sobre",
	"/quem-somos", "/institucional", "/empresa",
}

// Hosts that are never a company's own site.
var nonOfficialHosts = []string{
	"facebook", "linkedin", "twitter", "instagram", "youtube",
	"wikipedia", "cnpj", "receita", "gov.br",
}

// Legal-form suffixes dropped before matching a name against a host.
var legalSuffixes = []string{"ltda", "eireli", "epp", "corporation", "corp", "inc", "sa", "me"}

// CompanySite renders a company's own website in a headless browser and
// extracts contact details from the home and contact pages.
type CompanySite struct {
	loader browser.Loader
	search searx.Client
	opts   Options
}

// NewCompanySite creates the website collector. Each Open acquires its own
// browser session.
func NewCompanySite(loader browser.Loader, search searx.Client, opts Options) *CompanySite {
	return &CompanySite{loader: loader, search: search, opts: opts.withDefaults()}
}

func (cs *CompanySite) Source() model.Source { return model.SourceCompanySite }

func (cs *CompanySite) Open(ctx context.Context) (Session, error) {
	sess, err := cs.loader.Open(ctx)
	if err != nil {
		return nil, Unavailable(model.SourceCompanySite, "open browser", err)
	}
	return &siteSession{cs: cs, browser: sess}, nil
}

type siteSession struct {
	cs      *CompanySite
	browser browser.Session
}

func (s *siteSession) Search(ctx context.Context, criteria *model.Criteria) ([]Candidate, error) {
	return discover(ctx, s.cs.search, s.cs.opts, model.SourceCompanySite, criteria)
}

func (s *siteSession) Collect(ctx context.Context, c Candidate, h Hints) (model.SourceRecord, error) {
	site := siteURL(firstNonEmpty(h.Domain, c.Domain, c.URL))
	if site == "" {
		found, err := s.officialSite(ctx, c.Name)
		if err != nil {
			return model.SourceRecord{}, err
		}
		site = found
	}

	home, err := s.load(ctx, site)
	if err != nil {
		return model.SourceRecord{}, Unavailable(model.SourceCompanySite, "load home", err)
	}

	var ex extraction
	ex.merge(home.HTML)
	for _, p := range contactPaths {
		if ex.sufficient() {
			break
		}
		page, err := s.load(ctx, strings.TrimSuffix(site, "/")+p)
		if err != nil {
			if ctx.Err() != nil {
				return model.SourceRecord{}, Unavailable(model.SourceCompanySite, "load contact", ctx.Err())
			}
			zap.L().Debug("collector: contact page failed", zap.String("url", site+p), zap.Error(err))
			continue
		}
		ex.merge(page.HTML)
	}

	h.Domain = firstNonEmpty(normalize.Domain(home.URL), normalize.Domain(site))
	return record(model.SourceCompanySite, h, map[string]string{
		"name":         c.Name,
		"website":      h.Domain,
		"email":        ex.email,
		"telefone":     ex.phone,
		"telefone2":    ex.phone2,
		"cnpj":         ex.cnpj,
		"linkedin_url": ex.linkedin,
		"tamanho":      ex.size,
	}), nil
}

func (s *siteSession) load(ctx context.Context, url string) (*browser.Page, error) {
	return call(ctx, s.cs.opts, model.SourceCompanySite, "load", func(ctx context.Context) (*browser.Page, error) {
		return s.browser.Load(ctx, url)
	})
}

// officialSite searches "<name> site oficial" and returns the first result
// whose host or title matches the name.
func (s *siteSession) officialSite(ctx context.Context, name string) (string, error) {
	resp, err := call(ctx, s.cs.opts, model.SourceCompanySite, "find site", func(ctx context.Context) (*searx.Response, error) {
		return s.cs.search.Search(ctx, name+" site oficial")
	})
	if err != nil {
		return "", Unavailable(model.SourceCompanySite, "find site", err)
	}
	for i, r := range resp.Results {
		if i >= 5 {
			break
		}
		if isLikelyOfficialSite(r.URL, r.Title, name) {
			return r.URL, nil
		}
	}
	return "", eris.Wrapf(ErrNoData, "company_site: no official site for %q", name)
}

func (s *siteSession) Close() error { return s.browser.Close() }

// isLikelyOfficialSite matches the first three characters of the name
// against the host, or the full name against the title, and rejects social
// networks and registries.
func isLikelyOfficialSite(rawURL, title, name string) bool {
	host := normalize.Domain(rawURL)
	if host == "" {
		return false
	}
	for _, p := range nonOfficialHosts {
		if strings.Contains(host, p) {
			return false
		}
	}

	if strings.Contains(strings.ToLower(title), strings.ToLower(name)) {
		return true
	}
	simple := stripLegalSuffixes(normalize.Compact(name))
	return len(simple) > 3 && strings.Contains(host, simple[:3])
}

func stripLegalSuffixes(compact string) string {
	for _, s := range legalSuffixes {
		if len(compact) > len(s)+3 && strings.HasSuffix(compact, s) {
			return strings.TrimSuffix(compact, s)
		}
	}
	return compact
}

func siteURL(v string) string {
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
		return v
	}
	return "https://" + normalize.Domain(v)
}

// extraction accumulates contact details across pages; the first value
// found for each field is kept.
type extraction struct {
	email, phone, phone2, cnpj, linkedin, size string
}

func (e *extraction) merge(html string) {
	if e.email == "" {
		e.email = pickEmail(emailPattern.FindAllString(html, -1))
	}
	for _, m := range phonePattern.FindAllStringSubmatch(html, -1) {
		p := "(" + m[1] + ") " + m[2] + "-" + m[3]
		switch {
		case e.phone == "":
			e.phone = p
		case e.phone2 == "" && p != e.phone:
			e.phone2 = p
		}
	}
	if e.cnpj == "" {
		e.cnpj = FindCNPJ(html)
	}
	if e.linkedin == "" {
		e.linkedin = linkedinPattern.FindString(html)
	}
	if e.size == "" {
		if m := employeesPattern.FindString(html); m != "" {
			e.size = m
		}
	}
}

func (e *extraction) sufficient() bool {
	return e.email != "" && e.phone != ""
}

// pickEmail prefers company addresses over free-mail and role mailboxes.
// Among equals the most frequent address wins, then the smallest.
func pickEmail(found []string) string {
	if len(found) == 0 {
		return ""
	}
	counts := make(map[string]int)
	for _, e := range found {
		e = strings.ToLower(e)
		if isAssetName(e) {
			continue
		}
		counts[e]++
	}
	if len(counts) == 0 {
		return ""
	}
	uniq := make([]string, 0, len(counts))
	for e := range counts {
		uniq = append(uniq, e)
	}
	sort.Slice(uniq, func(i, j int) bool {
		gi, gj := normalize.IsGenericEmail(uniq[i]), normalize.IsGenericEmail(uniq[j])
		if gi != gj {
			return !gi
		}
		if counts[uniq[i]] != counts[uniq[j]] {
			return counts[uniq[i]] > counts[uniq[j]]
		}
		return uniq[i] < uniq[j]
	})
	return uniq[0]
}

// isAssetName catches retina image names such as logo@2x.png.
func isAssetName(e string) bool {
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"} {
		if strings.HasSuffix(e, ext) {
			return true
		}
	}
	return false
}
