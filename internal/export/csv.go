package export

import (
	"encoding/csv"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fusion-cli/internal/model"
)

const bom = "\ufeff"

// WriteCSV writes records with a header row; the last column names the
// synthetic fields of each record. The file starts with a UTF-8 BOM so
// spreadsheet tools detect the encoding of accented names.
func WriteCSV(path string, records []model.UnifiedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "csv: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.WriteString(bom); err != nil {
		return eris.Wrap(err, "csv: write bom")
	}

	w := csv.NewWriter(f)
	if err := w.Write(Header()); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	for _, rec := range records {
		if err := w.Write(exportRow(rec)); err != nil {
			return eris.Wrap(err, "csv: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "csv: flush")
	}
	return eris.Wrap(f.Close(), "csv: close")
}

// ReadCSV returns every row of a CSV file, header included. A leading BOM
// is dropped.
func ReadCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read rows")
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = trimBOM(rows[0][0])
	}
	return rows, nil
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[:3] == bom {
		return s[3:]
	}
	return s
}

// WriteJSON writes records as an indented JSON array, each element holding
// identity, all fields and the synthetic field list.
func WriteJSON(path string, records []model.UnifiedRecord) error {
	if records == nil {
		records = []model.UnifiedRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return eris.Wrap(err, "json: marshal records")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "json: write %s", path)
	}
	return nil
}
