package model

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// Output formats accepted by the export sink.
const (
	FormatExcel = "excel"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// Defaults applied by Criteria.Normalize.
const (
	DefaultFormat     = FormatExcel
	DefaultMaxResults = 5
	DefaultCountry    = "Brasil"
)

var criteriaValidate *validator.Validate

func init() {
	criteriaValidate = validator.New()
}

// Criteria describes what a run should search for. Companies may be given
// as plain names or objects; Sector and Location may be given as plain
// strings. Normalize folds every shorthand into the structured form.
type Criteria struct {
	Companies []CompanyRef `json:"companies,omitempty" validate:"dive"`
	Sector    Sector       `json:"sector,omitempty"`
	Location  Location     `json:"location,omitempty"`
	Size      Size         `json:"size,omitempty"`
	Output    Output       `json:"output"`
}

// CompanyRef names a specific company to collect.
type CompanyRef struct {
	Name   string `json:"name" validate:"required"`
	CNPJ   string `json:"cnpj,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// UnmarshalJSON accepts either "Acme" or {"name":"Acme",...}.
func (c *CompanyRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = CompanyRef{Name: name}
		return nil
	}
	type plain CompanyRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return eris.Wrap(err, "model: unmarshal company")
	}
	*c = CompanyRef(p)
	return nil
}

// Sector narrows the search to an industry.
type Sector struct {
	Main string   `json:"main,omitempty"`
	Sub  []string `json:"sub,omitempty"`
}

// UnmarshalJSON accepts either "tecnologia" or {"main":"tecnologia"}.
func (s *Sector) UnmarshalJSON(data []byte) error {
	var main string
	if err := json.Unmarshal(data, &main); err == nil {
		*s = Sector{Main: main}
		return nil
	}
	type plain Sector
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return eris.Wrap(err, "model: unmarshal sector")
	}
	*s = Sector(p)
	return nil
}

// Location narrows the search geographically.
type Location struct {
	Country string     `json:"country,omitempty"`
	States  StringList `json:"states,omitempty" validate:"dive,len=2"`
	Cities  StringList `json:"cities,omitempty"`
}

// UnmarshalJSON accepts either a country string or the structured form.
func (l *Location) UnmarshalJSON(data []byte) error {
	var country string
	if err := json.Unmarshal(data, &country); err == nil {
		*l = Location{Country: country}
		return nil
	}
	type plain Location
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return eris.Wrap(err, "model: unmarshal location")
	}
	*l = Location(p)
	return nil
}

// StringList decodes from either a single string or a list of strings.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return eris.Wrap(err, "model: unmarshal string list")
	}
	*s = many
	return nil
}

// Size narrows the search by headcount or revenue.
type Size struct {
	Employees *Range `json:"employees,omitempty"`
	Revenue   *Range `json:"revenue,omitempty"`
}

// Range is an inclusive numeric bound; a zero Max means unbounded.
type Range struct {
	Min      float64 `json:"min,omitempty" validate:"gte=0"`
	Max      float64 `json:"max,omitempty" validate:"omitempty,gtefield=Min"`
	Currency string  `json:"currency,omitempty"`
}

// UnmarshalJSON accepts either a bare number (taken as Min) or an object.
func (r *Range) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*r = Range{Min: n}
		return nil
	}
	type plain Range
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return eris.Wrap(err, "model: unmarshal range")
	}
	*r = Range(p)
	return nil
}

// Output controls export format and result cap.
type Output struct {
	Format     string `json:"format,omitempty" validate:"omitempty,oneof=excel csv json"`
	MaxResults int    `json:"max_results,omitempty" validate:"gte=0"`
	Path       string `json:"path,omitempty"`
}

// ParseCriteria decodes JSON criteria, normalizes and validates them.
func ParseCriteria(data []byte) (*Criteria, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, ErrEmptyCriteria
	}
	var c Criteria
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrapf(ErrInvalidCriteria, "decode: %v", err)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// HasSearchTerms reports whether the criteria name at least one company,
// sector, location or size bound.
func (c *Criteria) HasSearchTerms() bool {
	hasCompanies := len(c.Companies) > 0
	hasSector := strings.TrimSpace(c.Sector.Main) != ""
	hasLocation := c.Location.Country != "" || len(c.Location.States) > 0 || len(c.Location.Cities) > 0
	hasSize := c.Size.Employees != nil || c.Size.Revenue != nil
	return hasCompanies || hasSector || hasLocation || hasSize
}

// Normalize applies output defaults and tidies shorthand values in place.
func (c *Criteria) Normalize() {
	companies := c.Companies[:0]
	for _, co := range c.Companies {
		co.Name = strings.TrimSpace(co.Name)
		if co.Name != "" {
			companies = append(companies, co)
		}
	}
	c.Companies = companies

	for i, st := range c.Location.States {
		c.Location.States[i] = strings.ToUpper(strings.TrimSpace(st))
	}
	// Only a located search gets the country; it never becomes a search
	// term on its own.
	if c.Location.Country == "" && (len(c.Location.States) > 0 || len(c.Location.Cities) > 0) {
		c.Location.Country = DefaultCountry
	}
	if c.Size.Revenue != nil && c.Size.Revenue.Currency == "" {
		c.Size.Revenue.Currency = "BRL"
	}
	if c.Output.Format == "" {
		c.Output.Format = DefaultFormat
	}
	if c.Output.MaxResults == 0 {
		c.Output.MaxResults = DefaultMaxResults
	}
}

// Clone returns a deep copy, so normalizing it leaves c untouched.
func (c *Criteria) Clone() *Criteria {
	out := *c
	out.Companies = slices.Clone(c.Companies)
	out.Sector.Sub = slices.Clone(c.Sector.Sub)
	out.Location.States = slices.Clone(c.Location.States)
	out.Location.Cities = slices.Clone(c.Location.Cities)
	if c.Size.Employees != nil {
		r := *c.Size.Employees
		out.Size.Employees = &r
	}
	if c.Size.Revenue != nil {
		r := *c.Size.Revenue
		out.Size.Revenue = &r
	}
	return &out
}

// Validate returns ErrInvalidCriteria when the criteria name nothing to
// search for or fail structural checks.
func (c *Criteria) Validate() error {
	if c == nil {
		return ErrEmptyCriteria
	}
	if !c.HasSearchTerms() {
		return eris.Wrap(ErrInvalidCriteria, "need companies, sector, location or size")
	}
	if err := criteriaValidate.Struct(c); err != nil {
		return eris.Wrapf(ErrInvalidCriteria, "%v", err)
	}
	return nil
}

// CompanyNames returns the names of explicitly requested companies.
func (c *Criteria) CompanyNames() []string {
	names := make([]string, 0, len(c.Companies))
	for _, co := range c.Companies {
		names = append(names, co.Name)
	}
	return names
}

// Query builds a free-text search query from sector and location terms.
func (c *Criteria) Query() string {
	parts := []string{"empresas"}
	if c.Sector.Main != "" {
		parts = append(parts, c.Sector.Main)
	}
	parts = append(parts, c.Sector.Sub...)
	parts = append(parts, c.Location.Cities...)
	parts = append(parts, c.Location.States...)
	if len(c.Location.Cities) == 0 && len(c.Location.States) == 0 && c.Location.Country != "" {
		parts = append(parts, c.Location.Country)
	}
	return strings.Join(parts, " ")
}
