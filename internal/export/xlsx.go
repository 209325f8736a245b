package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/fusion-cli/internal/model"
)

const (
	sheetName        = "Empresas"
	maxColWidth      = 50
	headerColor      = "FF4472C4"
	headerFgColor    = "FFFFFFFF"
	syntheticFgColor = "FF808080"
)

func headerStyle() *xlsx.Style {
	s := xlsx.NewStyle()
	s.Font.Bold = true
	s.Font.Color = headerFgColor
	s.Fill = *xlsx.NewFill("solid", headerColor, headerColor)
	s.Alignment.Horizontal = "center"
	s.Alignment.Vertical = "center"
	s.Alignment.WrapText = true
	s.Border = *xlsx.NewBorder("thin", "thin", "thin", "thin")
	s.ApplyFont = true
	s.ApplyFill = true
	s.ApplyAlignment = true
	s.ApplyBorder = true
	return s
}

func bodyStyle() *xlsx.Style {
	s := xlsx.NewStyle()
	s.Alignment.Vertical = "center"
	s.Border = *xlsx.NewBorder("thin", "thin", "thin", "thin")
	s.ApplyAlignment = true
	s.ApplyBorder = true
	return s
}

// syntheticStyle marks enricher-filled cells: grey italic text.
func syntheticStyle() *xlsx.Style {
	s := bodyStyle()
	s.Font.Italic = true
	s.Font.Color = syntheticFgColor
	s.ApplyFont = true
	return s
}

// WriteXLSX writes records to a single-sheet workbook with a styled header
// row. Synthetic values are set in grey italics and listed in the last
// column. Column widths follow the longest value, capped at 50.
func WriteXLSX(path string, records []model.UnifiedRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := Header()
	widths := make([]int, len(header))

	hs := headerStyle()
	row := sheet.AddRow()
	for i, h := range header {
		cell := row.AddCell()
		cell.SetString(h)
		cell.SetStyle(hs)
		widths[i] = len(h)
	}

	bs, ss := bodyStyle(), syntheticStyle()
	for _, rec := range records {
		row := sheet.AddRow()
		for i, v := range exportRow(rec) {
			cell := row.AddCell()
			cell.SetString(v)
			if rec.IsSynthetic(model.Field(i)) {
				cell.SetStyle(ss)
			} else {
				cell.SetStyle(bs)
			}
			widths[i] = max(widths[i], len(v))
		}
	}

	for i, w := range widths {
		sheet.SetColWidth(i, i, float64(min(w+2, maxColWidth)))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// ReadXLSX returns every row of the first sheet as strings.
func ReadXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", path)
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
