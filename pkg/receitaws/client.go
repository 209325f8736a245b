// Package receitaws provides a client for the ReceitaWS CNPJ registry API.
package receitaws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/fusion-cli/internal/resilience"
)

const defaultBaseURL = "https://receitaws.com.br/v1"

// ErrNotFound is returned when the registry rejects a CNPJ.
var ErrNotFound = eris.New("receitaws: cnpj not found")

// Client defines the registry operations.
type Client interface {
	Lookup(ctx context.Context, cnpj string) (*Company, error)
}

// Activity is one CNAE entry.
type Activity struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// Company is the registry record for one CNPJ.
type Company struct {
	Status           string     `json:"status"`
	Message          string     `json:"message"`
	CNPJ             string     `json:"cnpj"`
	Nome             string     `json:"nome"`
	Fantasia         string     `json:"fantasia"`
	Logradouro       string     `json:"logradouro"`
	Numero           string     `json:"numero"`
	Complemento      string     `json:"complemento"`
	Bairro           string     `json:"bairro"`
	Municipio        string     `json:"municipio"`
	UF               string     `json:"uf"`
	CEP              string     `json:"cep"`
	Telefone         string     `json:"telefone"`
	Email            string     `json:"email"`
	Abertura         string     `json:"abertura"`
	NaturezaJuridica string     `json:"natureza_juridica"`
	Situacao         string     `json:"situacao"`
	Tipo             string     `json:"tipo"`
	Porte            string     `json:"porte"`
	CapitalSocial    string     `json:"capital_social"`
	Principal        []Activity `json:"atividade_principal"`
}

// Location composes "logradouro, numero - complemento, municipio - uf, cep",
// skipping blank parts.
func (c *Company) Location() string {
	street := join(", ", c.Logradouro, c.Numero)
	street = join(" - ", street, c.Complemento)
	city := join(" - ", c.Municipio, c.UF)
	return join(", ", street, city, c.CEP)
}

// MainActivity returns the description of the primary CNAE entry.
func (c *Company) MainActivity() string {
	if len(c.Principal) == 0 {
		return ""
	}
	return c.Principal[0].Text
}

func join(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// Option configures the ReceitaWS client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRatePerMinute caps lookups per minute. The free tier allows 3.
func WithRatePerMinute(n float64) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(n/60), 1)
		}
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new ReceitaWS client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(3.0/60), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, cnpj string) (*Company, error) {
	digits := onlyDigits(cnpj)
	if len(digits) != 14 {
		return nil, eris.Errorf("receitaws: cnpj %q must have 14 digits", cnpj)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "receitaws: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cnpj/"+digits, nil)
	if err != nil {
		return nil, eris.Wrap(err, "receitaws: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "receitaws: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "receitaws: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("receitaws", resp.StatusCode, string(body))
	}

	var co Company
	if err := json.Unmarshal(body, &co); err != nil {
		return nil, eris.Wrap(err, "receitaws: unmarshal response")
	}
	if strings.EqualFold(co.Status, "ERROR") {
		return nil, eris.Wrapf(ErrNotFound, "%s: %s", digits, co.Message)
	}
	return &co, nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
