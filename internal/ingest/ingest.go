// Package ingest reads records from spreadsheets and YAML files.
package ingest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

//go:embed fixtures/dev.yaml
var devFixture []byte

var ErrMissingColumn = errors.New("missing column")

// RowError points at the source row of a bad record. Row is 1-based and
// counts the header in workbooks.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

// columns maps header text to record columns. Lookup is case-insensitive.
var columns = map[string]string{
	"ID":           "ID",
	"CONTRACTOR":   "CONTRACTOR",
	"DATE":         "DATE",
	"SHIFT":        "SHIFT",
	"STOCK_ID":     "STOCK_ID",
	"STOCKID":      "STOCK_ID",
	"STOCK_STATUS": "STOCK_STATUS",
	"STATUS":       "STOCK_STATUS",
}

var required = []string{"ID", "CONTRACTOR", "DATE", "SHIFT", "STOCK_ID", "STOCK_STATUS"}

// dateLayouts are tried in order for workbook date cells.
var dateLayouts = []string{types.DateLayout, "1/2/2006", "01-02-06", "2006/01/02"}

// FromFile picks the reader by extension: .xlsx or .yaml/.yml.
func FromFile(path string) ([]types.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FromWorkbook(f, "")
	case ".yaml", ".yml":
		return FromYAML(f)
	}
	return nil, fmt.Errorf("unsupported file type %q: only .xlsx, .yaml and .yml", filepath.Ext(path))
}

// FromWorkbook reads one sheet (the first when sheet is empty). The first
// non-blank row is the header.
func FromWorkbook(r io.Reader, sheet string) ([]types.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	headerAt := -1
	for i, row := range rows {
		if !blank(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return []types.Record{}, nil
	}

	idx, err := headerIndex(rows[headerAt])
	if err != nil {
		return nil, err
	}

	out := []types.Record{}
	var errs []error
	for i := headerAt + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		rec, err := recordFromRow(row, idx)
		if err == nil {
			err = rec.Validate()
		}
		if err != nil {
			errs = append(errs, &RowError{Row: i + 1, Err: err})
			continue
		}
		out = append(out, rec)
	}
	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

// FromYAML reads a YAML sequence of records.
func FromYAML(r io.Reader) ([]types.Record, error) {
	var recs []types.Record
	if err := yaml.NewDecoder(r).Decode(&recs); err != nil {
		if errors.Is(err, io.EOF) {
			return []types.Record{}, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	var errs []error
	out := make([]types.Record, 0, len(recs))
	for i, rec := range recs {
		rec = normalize(rec)
		if err := rec.Validate(); err != nil {
			errs = append(errs, &RowError{Row: i + 1, Err: err})
			continue
		}
		out = append(out, rec)
	}
	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

// DevFixture returns the embedded development seed.
func DevFixture() []types.Record {
	recs, err := FromYAML(bytes.NewReader(devFixture))
	if err != nil {
		panic(fmt.Sprintf("ingest: embedded fixture is invalid: %v", err))
	}
	return recs
}

func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(required))
	for i, h := range header {
		key := strings.ToUpper(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		if col, ok := columns[key]; ok {
			if _, dup := idx[col]; !dup {
				idx[col] = i
			}
		}
	}
	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return idx, nil
}

func recordFromRow(row []string, idx map[string]int) (types.Record, error) {
	cell := func(col string) string {
		i := idx[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	id, err := strconv.ParseInt(cell("ID"), 10, 64)
	if err != nil {
		return types.Record{}, fmt.Errorf("ID %q is not an integer", cell("ID"))
	}
	return normalize(types.Record{
		ID:         id,
		Contractor: cell("CONTRACTOR"),
		Date:       parseDate(cell("DATE")),
		Shift:      cell("SHIFT"),
		StockID:    cell("STOCK_ID"),
		Status:     cell("STOCK_STATUS"),
	}), nil
}

// normalize trims text and upper-cases the enumerated columns.
func normalize(r types.Record) types.Record {
	r.Contractor = strings.TrimSpace(r.Contractor)
	r.StockID = strings.TrimSpace(r.StockID)
	r.Date = strings.TrimSpace(r.Date)
	r.Shift = strings.ToUpper(strings.TrimSpace(r.Shift))
	r.Status = strings.ToUpper(strings.TrimSpace(r.Status))
	return r
}

// parseDate rewrites recognised layouts to YYYY-MM-DD and leaves anything
// else untouched for Validate to reject.
func parseDate(v string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(types.DateLayout)
		}
	}
	return v
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
