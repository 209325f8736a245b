package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fusion-cli/internal/model"
)

func sampleRecords() []model.UnifiedRecord {
	var a model.UnifiedRecord
	a.Identity = "cnpj:11222333000181"
	a.Set(model.FieldCompanyName, "Padaria São João Ltda")
	a.Set(model.FieldCNPJ, "11222333000181")
	a.Set(model.FieldCity, "São Paulo")
	a.Set(model.FieldState, "SP")
	a.Set(model.FieldEmail, "contato@saojoao.com.br")
	a.MarkSynthetic(model.FieldEmail)

	var b model.UnifiedRecord
	b.Identity = "name:beta"
	b.Set(model.FieldCompanyName, "Beta")
	b.Set(model.FieldDomain, " beta.com.br ")
	return []model.UnifiedRecord{a, b}
}

func cellAt(row []string, f model.Field) string {
	if int(f) >= len(row) {
		return ""
	}
	return row[f]
}

func fixedSink(dir string) *FileSink {
	s := NewFileSink(dir)
	s.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	return s
}

func TestExport_Excel(t *testing.T) {
	dir := t.TempDir()
	path, err := fixedSink(dir).Export(context.Background(), sampleRecords(), model.Output{Format: model.FormatExcel})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "empresas_20260314_092653.xlsx"), path)

	rows, err := ReadXLSX(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header(), rows[0])
	assert.Equal(t, "Padaria São João Ltda", cellAt(rows[1], model.FieldCompanyName))
	assert.Equal(t, "SP", cellAt(rows[1], model.FieldState))
	assert.Equal(t, "beta.com.br", cellAt(rows[2], model.FieldDomain))
	assert.Equal(t, "", cellAt(rows[2], model.FieldEmail))
}

func TestExport_CSV(t *testing.T) {
	dir := t.TempDir()
	path, err := fixedSink(dir).Export(context.Background(), sampleRecords(), model.Output{
		Format: model.FormatCSV,
		Path:   filepath.Join(dir, "nested", "out"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "out.csv"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bom, string(raw[:3]))

	rows, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Company Name (Revised)", rows[0][0])
	assert.Equal(t, "SP", rows[1][model.FieldState])
}

func TestExport_SyntheticColumn(t *testing.T) {
	var patched model.UnifiedRecord
	patched.Set(model.FieldCompanyName, "Gamma Comercio")
	patched.Set(model.FieldDomain, "gammacomercio.com.br")
	patched.Set(model.FieldEmail, "contato@gammacomercio.com.br")
	patched.MarkSynthetic(model.FieldDomain)
	patched.MarkSynthetic(model.FieldEmail)

	var sourced model.UnifiedRecord
	sourced.Set(model.FieldCompanyName, "Delta SA")

	records := []model.UnifiedRecord{patched, sourced}
	markerCol := len(model.Fields())

	for _, format := range []string{model.FormatExcel, model.FormatCSV} {
		t.Run(format, func(t *testing.T) {
			path, err := fixedSink(t.TempDir()).Export(context.Background(), records, model.Output{Format: format})
			require.NoError(t, err)

			var rows [][]string
			if format == model.FormatCSV {
				rows, err = ReadCSV(path)
			} else {
				rows, err = ReadXLSX(path)
			}
			require.NoError(t, err)
			require.Len(t, rows, 3)

			require.Len(t, rows[0], markerCol+1)
			assert.Equal(t, SyntheticColumn, rows[0][markerCol])
			assert.Equal(t, "domain,email", rows[1][markerCol])
			assert.Equal(t, "contato@gammacomercio.com.br", rows[1][model.FieldEmail])
			if len(rows[2]) > markerCol {
				assert.Empty(t, rows[2][markerCol])
			}

			// The marker column does not leak into an imported company list.
			got, err := ReadCompanies(path)
			require.NoError(t, err)
			assert.Equal(t, []model.CompanyRef{
				{Name: "Gamma Comercio", Domain: "gammacomercio.com.br"},
				{Name: "Delta SA"},
			}, got)
		})
	}
}

func TestExport_JSON(t *testing.T) {
	dir := t.TempDir()
	path, err := fixedSink(dir).Export(context.Background(), sampleRecords(), model.Output{Format: model.FormatJSON})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []model.UnifiedRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, sampleRecords()[0], got[0])
	assert.True(t, got[0].IsSynthetic(model.FieldEmail))

	var generic []map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	fields := generic[1]["fields"].(map[string]any)
	assert.Len(t, fields, len(model.Fields()))
}

func TestExport_EmptyJSON(t *testing.T) {
	path, err := fixedSink(t.TempDir()).Export(context.Background(), nil, model.Output{Format: model.FormatJSON})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestExport_Errors(t *testing.T) {
	sink := fixedSink(t.TempDir())

	_, err := sink.Export(context.Background(), nil, model.Output{Format: "pdf"})
	assert.ErrorContains(t, err, "unsupported format")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sink.Export(ctx, nil, model.Output{})
	assert.Error(t, err)
}

func TestExport_DefaultFormat(t *testing.T) {
	path, err := fixedSink(t.TempDir()).Export(context.Background(), nil, model.Output{})
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))
}

func TestReadCompanies(t *testing.T) {
	dir := t.TempDir()

	// A workbook written by the exporter reads back as a company list.
	xlsxPath := filepath.Join(dir, "companies.xlsx")
	require.NoError(t, WriteXLSX(xlsxPath, sampleRecords()))
	got, err := ReadCompanies(xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, []model.CompanyRef{
		{Name: "Padaria São João Ltda", CNPJ: "11222333000181"},
		{Name: "Beta", Domain: "beta.com.br"},
	}, got)

	// A headerless single-column list.
	csvPath := filepath.Join(dir, "names.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Acme\n\nGamma Ltda\n"), 0o644))
	got, err = ReadCompanies(csvPath)
	require.NoError(t, err)
	assert.Equal(t, []model.CompanyRef{{Name: "Acme"}, {Name: "Gamma Ltda"}}, got)

	// Canonical keys work as headers too.
	keyed := filepath.Join(dir, "keyed.csv")
	require.NoError(t, os.WriteFile(keyed, []byte("cnpj,razao_social\n11.222.333/0001-81,Acme\n"), 0o644))
	got, err = ReadCompanies(keyed)
	require.NoError(t, err)
	assert.Equal(t, []model.CompanyRef{{Name: "Acme", CNPJ: "11.222.333/0001-81"}}, got)

	_, err = ReadCompanies(filepath.Join(dir, "list.txt"))
	assert.Error(t, err)
}
