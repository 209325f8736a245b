package model

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// IdentityScheme names how a CompanyIdentity was derived.
type IdentityScheme string

const (
	IdentitySchemeCNPJ   IdentityScheme = "cnpj"
	IdentitySchemeDomain IdentityScheme = "domain"
	IdentitySchemeName   IdentityScheme = "name"
	IdentitySchemeHash   IdentityScheme = "hash"
)

// CompanyIdentity is the grouping key "<scheme>:<normalized-value>" shared by
// every observation of the same company.
type CompanyIdentity string

// NewIdentity joins a scheme and an already-normalized value.
func NewIdentity(scheme IdentityScheme, value string) CompanyIdentity {
	return CompanyIdentity(string(scheme) + ":" + value)
}

// Scheme returns the identity's scheme prefix.
func (id CompanyIdentity) Scheme() IdentityScheme {
	s, _, _ := strings.Cut(string(id), ":")
	return IdentityScheme(s)
}

// Value returns the part after the scheme prefix.
func (id CompanyIdentity) Value() string {
	_, v, _ := strings.Cut(string(id), ":")
	return v
}

// UnifiedRecord is the fused profile of one company. It is a value type:
// assignment copies every field, so callers may modify a copy freely.
type UnifiedRecord struct {
	Identity  CompanyIdentity
	values    [fieldCount]string
	synthetic uint32
}

// Get returns the value of f, or "" when unset.
func (r UnifiedRecord) Get(f Field) string {
	if !f.Valid() {
		return ""
	}
	return r.values[f]
}

// Set stores v for f. Unknown fields are ignored.
func (r *UnifiedRecord) Set(f Field, v string) {
	if !f.Valid() {
		return
	}
	r.values[f] = v
}

// Has reports whether f holds a non-blank value.
func (r UnifiedRecord) Has(f Field) bool {
	return strings.TrimSpace(r.Get(f)) != ""
}

// MarkSynthetic flags f as filled by the fallback enricher.
func (r *UnifiedRecord) MarkSynthetic(f Field) {
	if f.Valid() {
		r.synthetic |= 1 << uint(f)
	}
}

// IsSynthetic reports whether f was filled by the fallback enricher.
func (r UnifiedRecord) IsSynthetic(f Field) bool {
	return f.Valid() && r.synthetic&(1<<uint(f)) != 0
}

// SyntheticFields lists the enricher-filled fields in export order.
func (r UnifiedRecord) SyntheticFields() []Field {
	var out []Field
	for f := Field(0); f < fieldCount; f++ {
		if r.IsSynthetic(f) {
			out = append(out, f)
		}
	}
	return out
}

// Exportable reports whether the record carries a company name.
func (r UnifiedRecord) Exportable() bool {
	return r.Has(FieldCompanyName)
}

// Row returns all field values in export column order.
func (r UnifiedRecord) Row() []string {
	out := make([]string, fieldCount)
	copy(out, r.values[:])
	return out
}

// Map returns every canonical key with its value, empty ones included.
func (r UnifiedRecord) Map() map[string]string {
	m := make(map[string]string, fieldCount)
	for f := Field(0); f < fieldCount; f++ {
		m[fieldKeys[f]] = r.values[f]
	}
	return m
}

type unifiedRecordJSON struct {
	Identity  CompanyIdentity   `json:"identity"`
	Fields    map[string]string `json:"fields"`
	Synthetic []string          `json:"synthetic,omitempty"`
}

func (r UnifiedRecord) MarshalJSON() ([]byte, error) {
	out := unifiedRecordJSON{Identity: r.Identity, Fields: r.Map()}
	for _, f := range r.SyntheticFields() {
		out.Synthetic = append(out.Synthetic, f.Key())
	}
	return json.Marshal(out)
}

func (r *UnifiedRecord) UnmarshalJSON(data []byte) error {
	var in unifiedRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return eris.Wrap(err, "model: unmarshal unified record")
	}
	*r = UnifiedRecord{Identity: in.Identity}
	for k, v := range in.Fields {
		if f, ok := ParseField(k); ok {
			r.Set(f, v)
		}
	}
	for _, k := range in.Synthetic {
		if f, ok := ParseField(k); ok {
			r.MarkSynthetic(f)
		}
	}
	return nil
}

// QualityScore is the normalized quality of a record with its sub-scores.
type QualityScore struct {
	Score        float64 `json:"score"`
	Completeness float64 `json:"completeness"`
	Format       float64 `json:"format"`
	Consistency  float64 `json:"consistency"`
}

// ScoredRecord pairs a record with its quality score.
type ScoredRecord struct {
	Record UnifiedRecord `json:"record"`
	Score  QualityScore  `json:"quality"`
}
