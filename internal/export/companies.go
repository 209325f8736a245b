package export

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
)

// ReadCompanies loads a company list from an .xlsx or .csv file, such as a
// workbook previously written by this package. The header row locates the
// name, CNPJ and domain columns by canonical key or export label; without a
// recognizable name column the first column is taken as the name.
func ReadCompanies(path string) ([]model.CompanyRef, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = ReadXLSX(path)
	case ".csv":
		rows, err = ReadCSV(path)
	default:
		return nil, eris.Errorf("export: unsupported company list %s", path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	nameCol, cnpjCol, domainCol := 0, -1, -1
	hasHeader := false
	for i, h := range rows[0] {
		f, ok := normalize.FieldFor(h)
		if !ok {
			continue
		}
		switch f {
		case model.FieldCompanyName:
			nameCol, hasHeader = i, true
		case model.FieldCNPJ:
			cnpjCol, hasHeader = i, true
		case model.FieldDomain:
			domainCol, hasHeader = i, true
		}
	}
	if hasHeader {
		rows = rows[1:]
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []model.CompanyRef
	for _, row := range rows {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		out = append(out, model.CompanyRef{
			Name:   name,
			CNPJ:   cell(row, cnpjCol),
			Domain: cell(row, domainCol),
		})
	}
	return out, nil
}
