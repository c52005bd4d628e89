// Package dataset provides tabular recipient-data ingestion with schema
// inference, plus the address heuristics used to pick a destination per row.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrMalformedData indicates the byte payload could not be decoded as a
// supported tabular format. The whole request fails; no partial dataset
// is ever returned.
var ErrMalformedData = errors.New("malformed tabular data")

// xlsxMagic is the ZIP local-file-header signature that opens every xlsx file.
var xlsxMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// Record is one row of the dataset: a mapping from column name to a scalar
// value (string, number, or empty). Lookups are case-sensitive by column
// name as it appeared in the source.
type Record map[string]any

// String returns the record's value for key rendered as a string.
// Missing keys and nil values render as "".
func (r Record) String(key string) string {
	return FormatValue(r[key])
}

// FormatValue renders a cell value as a string. Numeric zero renders as
// "0", not empty; nil renders as "".
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// Dataset is the normalized header/row representation of an uploaded
// tabular file. Headers are unique and ordered by first appearance; every
// row carries every header, with missing cells defaulted to "".
type Dataset struct {
	Headers []string
	Rows    []Record

	// AddressColumn is the inferred recipient-address column, or ""
	// when no column qualifies.
	AddressColumn string
}

// Parse decodes a raw tabular byte payload into a Dataset. xlsx payloads
// use the first sheet only; anything that is not xlsx is treated as CSV.
// A dataset with zero data rows is valid, not an error.
func Parse(data []byte) (*Dataset, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedData)
	}

	var (
		grid [][]string
		err  error
	)
	if bytes.HasPrefix(data, xlsxMagic) {
		grid, err = readXLSX(data)
	} else {
		grid, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	ds := buildDataset(grid)
	ds.AddressColumn, _ = DetectAddressColumn(ds.Headers, ds.Rows)
	return ds, nil
}

// readXLSX extracts the first sheet of an xlsx workbook as a string grid.
func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedData)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return rows, nil
}

// readCSV parses the payload as CSV with variable-length records allowed.
func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return rows, nil
}

// buildDataset converts a raw string grid (header row first) into a
// Dataset. Column names are taken from the header row; a second pass over
// the data rows extends the header union with names for any cells that
// spill past the declared header row, so sparse or ragged rows never lose
// columns. Every row is then materialized with every header present.
func buildDataset(grid [][]string) *Dataset {
	if len(grid) == 0 {
		return &Dataset{Headers: []string{}, Rows: []Record{}}
	}

	headers := normalizeHeaders(grid[0])

	// Header union: rows wider than the header row contribute synthetic
	// column names, in first-seen order.
	width := len(headers)
	for _, row := range grid[1:] {
		for width < len(row) {
			headers = append(headers, fmt.Sprintf("Column%d", width+1))
			width++
		}
	}

	records := make([]Record, 0, len(grid)-1)
	for _, row := range grid[1:] {
		if isBlankRow(row) {
			continue
		}
		rec := make(Record, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}

	return &Dataset{Headers: headers, Rows: records}
}

// normalizeHeaders trims header cells, names blank headers, and dedupes
// repeated names with a numeric suffix so header lookups stay unique.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, 0, len(raw))
	counts := make(map[string]int, len(raw))

	for i, cell := range raw {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("Column%d", i+1)
		}
		if n := counts[name]; n > 0 {
			counts[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		}
		counts[name]++
		headers = append(headers, name)
	}
	return headers
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
