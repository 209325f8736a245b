package collector

import (
	"context"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
)

// FixtureFile is the on-disk layout of canned observations.
type FixtureFile struct {
	Records []model.SourceRecord `yaml:"records"`
}

// LoadFixtures reads canned observations from a YAML file. Records without
// a source are attributed to "fixture".
func LoadFixtures(path string) ([]model.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "collector: read fixtures %s", path)
	}
	var f FixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "collector: parse fixtures %s", path)
	}
	for i := range f.Records {
		if f.Records[i].Source == "" {
			f.Records[i].Source = model.SourceFixture
		}
	}
	return f.Records, nil
}

// Fixture replays canned observations of one source. It lets the pipeline
// run without network access.
type Fixture struct {
	source  model.Source
	records []model.SourceRecord
}

// NewFixture returns a collector replaying the records attributed to src.
func NewFixture(src model.Source, records []model.SourceRecord) *Fixture {
	var own []model.SourceRecord
	for _, r := range records {
		if r.Source == src {
			own = append(own, r)
		}
	}
	return &Fixture{source: src, records: own}
}

// FixtureCollectors builds one Fixture per distinct source in records, in
// first-seen order.
func FixtureCollectors(records []model.SourceRecord) []Collector {
	seen := make(map[model.Source]bool)
	var out []Collector
	for _, r := range records {
		if seen[r.Source] {
			continue
		}
		seen[r.Source] = true
		out = append(out, NewFixture(r.Source, records))
	}
	return out
}

func (f *Fixture) Source() model.Source { return f.source }

func (f *Fixture) Open(context.Context) (Session, error) {
	return fixtureSession{f}, nil
}

type fixtureSession struct{ f *Fixture }

func (s fixtureSession) Search(_ context.Context, criteria *model.Criteria) ([]Candidate, error) {
	names := make(map[string]bool)
	cnpjs := make(map[string]bool)
	for _, ref := range criteria.Companies {
		names[normalize.Name(ref.Name)] = true
		if d := normalize.Digits(ref.CNPJ); d != "" {
			cnpjs[d] = true
		}
	}

	var out []Candidate
	for i, r := range s.f.records {
		name := r.Lookup("name", "company_name", "razao_social", "nome")
		cnpj := r.Lookup("cnpj", "cnpj_formatted")
		if len(criteria.Companies) > 0 && !names[normalize.Name(name)] && !cnpjs[normalize.Digits(cnpj)] {
			continue
		}
		out = append(out, Candidate{Name: name, CNPJ: cnpj, Key: strconv.Itoa(i)})
	}
	return out, nil
}

func (s fixtureSession) Collect(_ context.Context, c Candidate, _ Hints) (model.SourceRecord, error) {
	i, err := strconv.Atoi(c.Key)
	if err != nil || i < 0 || i >= len(s.f.records) {
		return model.SourceRecord{}, eris.Wrapf(ErrNoData, "fixture %s: key %q", s.f.source, c.Key)
	}
	return s.f.records[i], nil
}

func (fixtureSession) Close() error { return nil }
