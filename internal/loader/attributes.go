package loader

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/aoyama-lab/proximity-cli/internal/schema"
)

// Table is a tabular attribute dataset joined onto regions by key.
type Table struct {
	Header []string
	Rows   []map[string]string
}

// TableOptions configures attribute table parsing.
type TableOptions struct {
	// ShiftJIS decodes CSV input from Shift_JIS; municipal statistics
	// downloads commonly ship in that encoding.
	ShiftJIS bool
	// SheetName selects the XLSX sheet; empty means the first sheet.
	SheetName string
	// SkipRows drops leading rows before the header row.
	SkipRows int
}

// ReadTable parses an attribute file, dispatching on extension (.csv or
// .xlsx).
func ReadTable(path string, opts TableOptions) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSVTable(path, opts)
	case ".xlsx":
		return readXLSXTable(path, opts)
	default:
		return nil, eris.Errorf("loader: unsupported attribute file type %s", path)
	}
}

// Columns classifies each header column for schema resolution. A column is
// numeric when every non-empty cell parses as a float; empty columns stay
// typed as other.
func (t *Table) Columns() []schema.Column {
	cols := make([]schema.Column, 0, len(t.Header))
	for _, name := range t.Header {
		seen := false
		numeric := true
		for _, row := range t.Rows {
			v := strings.TrimSpace(row[name])
			if v == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err != nil {
				numeric = false
				break
			}
		}

		typ := schema.TypeOther
		switch {
		case seen && numeric:
			typ = schema.TypeNumeric
		case seen:
			typ = schema.TypeString
		}
		cols = append(cols, schema.Column{Name: name, Type: typ})
	}
	return cols
}

// Numeric parses the named cell of a row. Missing, empty, and unparseable
// cells report ok=false; thousands separators are tolerated.
func (t *Table) Numeric(row map[string]string, col string) (float64, bool) {
	v := strings.TrimSpace(row[col])
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func readCSVTable(path string, opts TableOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open attribute file %s", path)
	}
	defer func() { _ = f.Close() }()

	var src io.Reader = f
	if opts.ShiftJIS {
		src = transform.NewReader(f, japanese.ShiftJIS.NewDecoder())
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "loader: parse CSV %s", path)
	}
	if opts.SkipRows >= len(records) {
		return nil, eris.Errorf("loader: %s has no header after skipping %d rows", path, opts.SkipRows)
	}

	return tableFromRecords(records[opts.SkipRows:], path)
}

func readXLSXTable(path string, opts TableOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open workbook %s", path)
	}

	sheet, err := pickSheet(f, opts.SheetName)
	if err != nil {
		return nil, err
	}

	records := make([][]string, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}

	return tableFromRecords(records, path)
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("loader: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("loader: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

// tableFromRecords maps each data row onto the header. Short rows leave the
// trailing columns absent; surplus cells past the header are dropped.
func tableFromRecords(records [][]string, path string) (*Table, error) {
	if len(records) == 0 {
		return nil, eris.Errorf("loader: %s is empty", path)
	}

	header := make([]string, 0, len(records[0]))
	for _, h := range records[0] {
		header = append(header, strings.TrimSpace(h))
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		rows = append(rows, row)
	}

	zap.L().Debug("loader: attribute table read",
		zap.String("path", path),
		zap.Int("columns", len(header)),
		zap.Int("rows", len(rows)),
	)
	return &Table{Header: header, Rows: rows}, nil
}
