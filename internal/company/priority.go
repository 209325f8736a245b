package company

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fusion-cli/internal/model"
)

// PriorityConfig is the YAML form of a per-field source-priority table.
// Sources are listed most trusted first. Fields without an entry use
// Defaults.
//
//	fusion:
//	  defaults: [receitaws, cnpjbiz, company_site]
//	  fields:
//	    email: [company_site, receitaws]
type PriorityConfig struct {
	Defaults []model.Source            `yaml:"defaults"`
	Fields   map[string][]model.Source `yaml:"fields"`
}

// PriorityTable is an immutable lookup of source rank per canonical field.
// Rank 0 is the most trusted source.
type PriorityTable struct {
	order map[model.Field][]model.Source
	ranks map[model.Field]map[model.Source]int
}

var (
	registrySources = []model.Source{
		model.SourceReceitaWS, model.SourceCNPJBiz, model.SourceCNPJ,
		model.SourceCompanySite, model.SourceLinkedIn, model.SourceSearch, model.SourceAI,
	}
	contactPersonSources = []model.Source{
		model.SourceLinkedIn, model.SourceCompanySite,
		model.SourceReceitaWS, model.SourceCNPJBiz, model.SourceCNPJ, model.SourceAI,
	}
	contactChannelSources = []model.Source{
		model.SourceCompanySite,
		model.SourceReceitaWS, model.SourceCNPJBiz, model.SourceCNPJ,
		model.SourceLinkedIn, model.SourceAI,
	}
	domainSources = []model.Source{
		model.SourceCompanySite, model.SourceSearch, model.SourceLinkedIn,
		model.SourceReceitaWS, model.SourceCNPJBiz, model.SourceAI,
	}
)

// DefaultPriorities returns the built-in ordering: registries lead on
// legal and location facts, LinkedIn on people, the company site on
// contact channels and the web presence on the domain.
func DefaultPriorities() map[model.Field][]model.Source {
	out := make(map[model.Field][]model.Source)
	for _, f := range []model.Field{
		model.FieldCompanyName, model.FieldCNPJ, model.FieldTradeName, model.FieldSize,
		model.FieldLocation, model.FieldCity, model.FieldState,
	} {
		out[f] = registrySources
	}
	for _, f := range []model.Field{
		model.FieldContactFirstName, model.FieldContactLastName, model.FieldContactTitle, model.FieldLinkedIn,
	} {
		out[f] = contactPersonSources
	}
	for _, f := range []model.Field{model.FieldEmail, model.FieldPhone, model.FieldPhoneSecondary} {
		out[f] = contactChannelSources
	}
	out[model.FieldDomain] = domainSources
	return out
}

// NewPriorityTable builds a table from per-field orderings. Slices are
// copied. A source listed twice keeps its first position.
func NewPriorityTable(order map[model.Field][]model.Source) *PriorityTable {
	t := &PriorityTable{
		order: make(map[model.Field][]model.Source, len(order)),
		ranks: make(map[model.Field]map[model.Source]int, len(order)),
	}
	for f, sources := range order {
		ranks := make(map[model.Source]int, len(sources))
		var list []model.Source
		for _, s := range sources {
			if _, dup := ranks[s]; dup {
				continue
			}
			ranks[s] = len(list)
			list = append(list, s)
		}
		t.order[f] = list
		t.ranks[f] = ranks
	}
	return t
}

// DefaultPriorityTable returns the table built from DefaultPriorities.
func DefaultPriorityTable() *PriorityTable {
	return NewPriorityTable(DefaultPriorities())
}

// LoadPriorityTable reads a table from a YAML file with a top-level
// "fusion" key. Unknown field keys are rejected.
func LoadPriorityTable(path string) (*PriorityTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "company: read priority table %s", path)
	}

	var wrapper struct {
		Fusion PriorityConfig `yaml:"fusion"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "company: parse priority table")
	}
	return wrapper.Fusion.Table()
}

// Table converts the YAML form into a PriorityTable.
func (c PriorityConfig) Table() (*PriorityTable, error) {
	order := make(map[model.Field][]model.Source)
	if len(c.Defaults) > 0 {
		for _, f := range model.Fields() {
			order[f] = c.Defaults
		}
	}
	for key, sources := range c.Fields {
		f, ok := model.ParseField(key)
		if !ok {
			return nil, eris.Errorf("company: priority table names unknown field %q", key)
		}
		order[f] = sources
	}
	if len(order) == 0 {
		return nil, eris.New("company: priority table is empty")
	}
	return NewPriorityTable(order), nil
}

// Rank returns the position of s in f's list, or false when unlisted.
func (t *PriorityTable) Rank(f model.Field, s model.Source) (int, bool) {
	r, ok := t.ranks[f][s]
	return r, ok
}

// Sources returns a copy of f's ordered source list.
func (t *PriorityTable) Sources(f model.Field) []model.Source {
	return append([]model.Source(nil), t.order[f]...)
}
