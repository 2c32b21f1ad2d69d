package export

import (
	"errors"
	"strings"
)

// ErrNoHeader is returned when an uploaded table has no header row.
var ErrNoHeader = errors.New("table has no header row")

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// HasColumn reports whether the dataset carries the given header.
func (d Dataset) HasColumn(name string) bool {
	for _, header := range d.Headers {
		if header == name {
			return true
		}
	}
	return false
}

var headerReplacer = strings.NewReplacer(" ", "_", "-", "_", ".", "_")

// NormalizeHeader lowercases a column name and folds separators into underscores.
func NormalizeHeader(raw string) string {
	return headerReplacer.Replace(strings.ToLower(strings.TrimSpace(raw)))
}

// fromMatrix builds a dataset from raw rows, the first row being the header.
// Fully blank rows are dropped and short rows are padded.
func fromMatrix(matrix [][]string) (Dataset, error) {
	if len(matrix) == 0 {
		return Dataset{}, ErrNoHeader
	}
	headers := make([]string, len(matrix[0]))
	blank := true
	for i, raw := range matrix[0] {
		headers[i] = NormalizeHeader(strings.TrimPrefix(raw, "\ufeff"))
		if headers[i] != "" {
			blank = false
		}
	}
	if blank {
		return Dataset{}, ErrNoHeader
	}

	rows := make([]map[string]string, 0, len(matrix)-1)
	for _, record := range matrix[1:] {
		row := make(map[string]string, len(headers))
		empty := true
		for i, header := range headers {
			if header == "" {
				continue
			}
			var value string
			if i < len(record) {
				value = record[i]
			}
			if strings.TrimSpace(value) != "" {
				empty = false
			}
			row[header] = value
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return Dataset{Headers: headers, Rows: rows}, nil
}
