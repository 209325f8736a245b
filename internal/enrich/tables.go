// Package enrich fills fields no source supplied with plausible,
// explicitly synthetic values.
package enrich

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tables are the reference lists the enricher draws from. A Tables value is
// never modified after construction.
type Tables struct {
	// States eligible for a random pick; each needs an entry in Cities.
	States       []string            `yaml:"states"`
	DefaultState string              `yaml:"default_state"`
	Cities       map[string][]string `yaml:"cities"`
	AreaCodes    map[string][]string `yaml:"area_codes"`

	Sizes      []string `yaml:"sizes"`
	FirstNames []string `yaml:"first_names"`
	LastNames  []string `yaml:"last_names"`
	Titles     []string `yaml:"titles"`
	Companies  []string `yaml:"companies"`

	DomainSuffix string `yaml:"domain_suffix"`
	EmailLocal   string `yaml:"email_local"`
	Batch        string `yaml:"batch"`
}

// DefaultTables returns the built-in Brazilian reference lists.
func DefaultTables() *Tables {
	return &Tables{
		States:       []string{"SP", "RJ", "MG", "PR", "RS", "SC", "BA", "PE", "CE", "GO", "DF", "ES"},
		DefaultState: "SP",
		Cities: map[string][]string{
			"SP": {"São Paulo", "Campinas", "Santos", "Ribeirão Preto", "Sorocaba", "São José dos Campos"},
			"RJ": {"Rio de Janeiro", "Niterói", "Petrópolis", "Duque de Caxias"},
			"MG": {"Belo Horizonte", "Uberlândia", "Juiz de Fora", "Contagem"},
			"PR": {"Curitiba", "Londrina", "Maringá", "Ponta Grossa"},
			"RS": {"Porto Alegre", "Caxias do Sul", "Pelotas", "Canoas"},
			"SC": {"Florianópolis", "Joinville", "Blumenau", "Itajaí"},
			"BA": {"Salvador", "Feira de Santana", "Vitória da Conquista"},
			"PE": {"Recife", "Olinda", "Jaboatão dos Guararapes"},
			"CE": {"Fortaleza", "Caucaia", "Juazeiro do Norte"},
			"GO": {"Goiânia", "Anápolis", "Aparecida de Goiânia"},
			"DF": {"Brasília"},
			"ES": {"Vitória", "Vila Velha", "Serra"},
		},
		AreaCodes: map[string][]string{
			"SP": {"11", "12", "13", "15", "16", "19"},
			"RJ": {"21", "22", "24"},
			"MG": {"31", "32", "34"},
			"PR": {"41", "43", "44"},
			"RS": {"51", "53", "54"},
			"SC": {"47", "48"},
			"BA": {"71", "75", "77"},
			"PE": {"81", "87"},
			"CE": {"85", "88"},
			"GO": {"62", "64"},
			"DF": {"61"},
			"ES": {"27", "28"},
		},
		Sizes:      []string{"Microempresa", "Pequeno Porte", "Médio Porte", "Grande Porte"},
		FirstNames: []string{"Ana", "Bruno", "Carla", "Diego", "Fernanda", "Gustavo", "Juliana", "Marcos", "Patrícia", "Rafael"},
		LastNames:  []string{"Silva", "Santos", "Oliveira", "Souza", "Pereira", "Costa", "Rodrigues", "Almeida", "Lima", "Carvalho"},
		Titles: []string{
			"Diretor Comercial", "Gerente de Compras", "Sócio-Administrador",
			"Diretor Executivo", "Gerente de Operações", "Coordenador de Vendas",
		},
		Companies: []string{
			"Exemplo Tecnologia Ltda", "Solução Digital S.A.", "Alfa Comércio e Serviços Ltda",
			"Beta Indústria Ltda", "Gama Logística Ltda", "Delta Consultoria Empresarial",
			"Ômega Sistemas Ltda", "Horizonte Engenharia S.A.",
		},
		DomainSuffix: ".com.br",
		EmailLocal:   "contato",
		Batch:        "1",
	}
}

// LoadTables reads reference tables from YAML. Lists the file omits keep
// their default values.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: read tables %s", path)
	}

	var override Tables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrap(err, "enrich: parse tables")
	}

	t := DefaultTables()
	t.merge(&override)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tables) merge(o *Tables) {
	mergeList(&t.States, o.States)
	mergeList(&t.Sizes, o.Sizes)
	mergeList(&t.FirstNames, o.FirstNames)
	mergeList(&t.LastNames, o.LastNames)
	mergeList(&t.Titles, o.Titles)
	mergeList(&t.Companies, o.Companies)
	if o.DefaultState != "" {
		t.DefaultState = o.DefaultState
	}
	if o.DomainSuffix != "" {
		t.DomainSuffix = o.DomainSuffix
	}
	if o.EmailLocal != "" {
		t.EmailLocal = o.EmailLocal
	}
	if o.Batch != "" {
		t.Batch = o.Batch
	}
	for uf, cities := range o.Cities {
		t.Cities[strings.ToUpper(uf)] = cities
	}
	for uf, codes := range o.AreaCodes {
		t.AreaCodes[strings.ToUpper(uf)] = codes
	}
}

func mergeList(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

// Validate checks that every pick the enricher can make has candidates.
func (t *Tables) Validate() error {
	var errs []string

	if len(t.States) == 0 {
		errs = append(errs, "states must not be empty")
	}
	for _, uf := range t.States {
		if len(t.Cities[uf]) == 0 {
			errs = append(errs, fmt.Sprintf("state %s has no cities", uf))
		}
	}
	if len(t.Cities[t.DefaultState]) == 0 {
		errs = append(errs, fmt.Sprintf("default state %q has no cities", t.DefaultState))
	}
	if len(t.AreaCodes[t.DefaultState]) == 0 {
		errs = append(errs, fmt.Sprintf("default state %q has no area codes", t.DefaultState))
	}

	lists := []struct {
		name string
		list []string
	}{
		{"sizes", t.Sizes},
		{"first_names", t.FirstNames},
		{"last_names", t.LastNames},
		{"titles", t.Titles},
		{"companies", t.Companies},
	}
	for _, l := range lists {
		if len(l.list) == 0 {
			errs = append(errs, l.name+" must not be empty")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("enrich: tables validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
