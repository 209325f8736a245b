// Package export writes fused company records to Excel, CSV or JSON files.
// Every row carries every canonical column, empty or not.
package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fusion-cli/internal/model"
)

// Sink receives the records of a finished run and returns where they went.
type Sink interface {
	Export(ctx context.Context, records []model.UnifiedRecord, out model.Output) (string, error)
}

// FileSink writes one file per run under a directory.
type FileSink struct {
	dir string
	now func() time.Time
}

// NewFileSink creates a sink writing under dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir, now: time.Now}
}

var extensions = map[string]string{
	model.FormatExcel: ".xlsx",
	model.FormatCSV:   ".csv",
	model.FormatJSON:  ".json",
}

// Export writes records in out.Format. An explicit out.Path is used as
// given, gaining the format's extension when it has none; otherwise the
// file is named empresas_<timestamp> inside the sink directory.
func (s *FileSink) Export(ctx context.Context, records []model.UnifiedRecord, out model.Output) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "export: cancelled")
	}

	format := out.Format
	if format == "" {
		format = model.DefaultFormat
	}
	ext, ok := extensions[format]
	if !ok {
		return "", eris.Errorf("export: unsupported format %q", format)
	}

	path := s.path(out.Path, ext)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create dir for %s", path)
	}

	var err error
	switch format {
	case model.FormatExcel:
		err = WriteXLSX(path, records)
	case model.FormatCSV:
		err = WriteCSV(path, records)
	case model.FormatJSON:
		err = WriteJSON(path, records)
	}
	if err != nil {
		return "", err
	}

	zap.L().Info("export: wrote records",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("records", len(records)),
	)
	return path, nil
}

func (s *FileSink) path(explicit, ext string) string {
	if explicit != "" {
		if filepath.Ext(explicit) == "" {
			return explicit + ext
		}
		return explicit
	}
	name := "empresas_" + s.now().Format("20060102_150405") + ext
	return filepath.Join(s.dir, name)
}

// SyntheticColumn heads the trailing column that lists the fields the
// fallback enricher filled, so generated values never pass for sourced ones.
const SyntheticColumn = "Synthetic"

// Header returns the export column headers in order: every canonical field
// label, then SyntheticColumn.
func Header() []string {
	return append(model.FieldLabels(), SyntheticColumn)
}

// exportRow returns the cleaned field values in header order, ending with
// the comma-separated keys of the synthetic fields.
func exportRow(rec model.UnifiedRecord) []string {
	row := rec.Row()
	for i := range row {
		row[i] = cleanCell(row[i])
	}
	return append(row, syntheticKeys(rec))
}

func syntheticKeys(rec model.UnifiedRecord) string {
	fields := rec.SyntheticFields()
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key()
	}
	return strings.Join(keys, ",")
}

func cleanCell(v string) string {
	return strings.TrimSpace(v)
}
