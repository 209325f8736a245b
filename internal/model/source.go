package model

import "strings"

// Source names a data provider that contributes raw observations.
type Source string

const (
	SourceCNPJ        Source = "cnpj"         // legal-ID lookup by company name
	SourceReceitaWS   Source = "receitaws"    // CNPJ registry API
	SourceCNPJBiz     Source = "cnpjbiz"      // registry mirror
	SourceLinkedIn    Source = "linkedin"     // professional network profile
	SourceCompanySite Source = "company_site" // corporate website
	SourceSearch      Source = "search"       // web-search discovery
	SourceAI          Source = "ai"           // LLM extraction from unstructured text
	SourceFixture     Source = "fixture"      // canned observations
)

// SourceRecord is one raw observation of a company from one source. Field
// keys use the source's own naming; the fusion normalizer maps them onto
// canonical fields.
type SourceRecord struct {
	Source Source            `json:"source" yaml:"source"`
	Fields map[string]string `json:"fields" yaml:"fields"`

	// Optional identity hints set by collectors that know them directly.
	CNPJ   string `json:"cnpj,omitempty" yaml:"cnpj,omitempty"`
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Lookup returns the first non-blank value among keys, checking the hint
// fields before Fields.
func (r SourceRecord) Lookup(keys ...string) string {
	for _, k := range keys {
		var v string
		switch k {
		case "cnpj":
			v = r.CNPJ
		case "domain":
			v = r.Domain
		case "name":
			v = r.Name
		}
		if strings.TrimSpace(v) == "" {
			v = r.Fields[k]
		}
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Empty reports whether the observation carries no usable value.
func (r SourceRecord) Empty() bool {
	if r.CNPJ != "" || r.Domain != "" || r.Name != "" {
		return false
	}
	for _, v := range r.Fields {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
