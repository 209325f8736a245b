package company

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fusion-cli/internal/model"
)

func TestResolve_Schemes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  model.SourceRecord
		want model.CompanyIdentity
	}{
		{
			name: "cnpj hint with punctuation",
			rec:  model.SourceRecord{CNPJ: "12.345.678/0001-90", Domain: "acme.com.br"},
			want: "cnpj:12345678000190",
		},
		{
			name: "cnpj field",
			rec:  model.SourceRecord{Fields: map[string]string{"cnpj": "12345678000190"}},
			want: "cnpj:12345678000190",
		},
		{
			name: "website when no cnpj",
			rec:  model.SourceRecord{Fields: map[string]string{"website": "https://www.Acme.com.br/", "name": "Acme"}},
			want: "domain:acme.com.br",
		},
		{
			name: "name when no cnpj or domain",
			rec:  model.SourceRecord{Fields: map[string]string{"name": "Beta Corp"}},
			want: "name:beta corp",
		},
		{
			name: "registry name key",
			rec:  model.SourceRecord{Fields: map[string]string{"razao_social": "GAMMA  LTDA"}},
			want: "name:gamma ltda",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_HashFallback(t *testing.T) {
	t.Parallel()

	rec := model.SourceRecord{Fields: map[string]string{"telefone": "(11) 3333-4444", "uf": "SP"}}
	id, err := Resolve(rec)
	require.NoError(t, err)
	assert.Equal(t, model.IdentitySchemeHash, id.Scheme())
	assert.Len(t, id.Value(), 64)

	// Same content from another source groups with it.
	other := model.SourceRecord{Source: model.SourceLinkedIn, Fields: map[string]string{"uf": "SP", "telefone": "(11) 3333-4444"}}
	id2, err := Resolve(other)
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}

func TestResolve_Deterministic(t *testing.T) {
	t.Parallel()

	recs := []model.SourceRecord{
		{CNPJ: "12.345.678/0001-90"},
		{Fields: map[string]string{"domain": "Acme.com"}},
		{Fields: map[string]string{"name": "Acme"}},
		{Fields: map[string]string{"a": "1", "b": "2", "c": "3"}},
	}
	for _, rec := range recs {
		first, err1 := Resolve(rec)
		second, err2 := Resolve(rec)
		assert.Equal(t, err1, err2)
		assert.Equal(t, first, second)
	}
}

func TestResolve_InvalidCNPJ(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"12.345.678/0001", "123456780001901"} {
		_, err := Resolve(model.SourceRecord{CNPJ: raw, Name: "Acme"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrInvalidIdentity))
	}
}

func TestGroupRecords(t *testing.T) {
	t.Parallel()

	records := []model.SourceRecord{
		{Source: model.SourceCNPJ, Fields: map[string]string{"name": "Acme Ltda", "cnpj": "12.345.678/0001-90"}},
		{Source: model.SourceLinkedIn, Fields: map[string]string{"name": "Beta Corp"}},
		{Source: model.SourceReceitaWS, Fields: map[string]string{"cnpj": "12345678000190", "address": "Rua X, 10"}},
		{Source: model.SourceCompanySite, Fields: map[string]string{"name": "BETA CORP"}},
		{Source: model.SourceSearch, Fields: map[string]string{"cnpj": "1234", "name": "Beta corp"}},
		{Source: model.SourceAI, Fields: map[string]string{"name": "  "}},
	}

	groups := GroupRecords(records)
	require.Len(t, groups, 2)

	assert.Equal(t, model.CompanyIdentity("cnpj:12345678000190"), groups[0].Identity)
	assert.Len(t, groups[0].Records, 2)

	// The malformed CNPJ observation falls back to its name.
	assert.Equal(t, model.CompanyIdentity("name:beta corp"), groups[1].Identity)
	assert.Len(t, groups[1].Records, 3)
}
