// Package searx provides a client for the SearXNG metasearch JSON API.
package searx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/fusion-cli/internal/resilience"
)

// Client defines the SearXNG operations used by the collectors.
type Client interface {
	// Search runs one query and returns the parsed result page.
	Search(ctx context.Context, query string, opts ...SearchOption) (*Response, error)
}

// Response is the parsed SearXNG JSON response.
type Response struct {
	Query           string   `json:"query"`
	NumberOfResults float64  `json:"number_of_results"`
	Results         []Result `json:"results"`
}

// Result represents a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Engine  string `json:"engine"`
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	page       int
	language   string
	siteFilter string
}

// WithPage requests a later result page (1-based).
func WithPage(n int) SearchOption {
	return func(o *searchOpts) {
		o.page = n
	}
}

// WithLanguage overrides the default pt-BR result language.
func WithLanguage(lang string) SearchOption {
	return func(o *searchOpts) {
		o.language = lang
	}
}

// WithSiteFilter restricts results to one site, e.g. "linkedin.com/company".
func WithSiteFilter(site string) SearchOption {
	return func(o *searchOpts) {
		o.siteFilter = site
	}
}

// Option configures the SearXNG client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new SearXNG client for the instance at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(2, 2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*Response, error) {
	so := &searchOpts{language: "pt-BR"}
	for _, opt := range opts {
		opt(so)
	}

	if so.siteFilter != "" {
		query = "site:" + so.siteFilter + " " + query
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("language", so.language)
	if so.page > 1 {
		params.Set("pageno", strconv.Itoa(so.page))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "searx: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "searx: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "searx: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "searx: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("searx", resp.StatusCode, string(body))
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "searx: unmarshal response")
	}
	return &result, nil
}
