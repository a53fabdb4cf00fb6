// Package dataset reads the flat student-performance table.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultNullTokens are cell values treated as missing.
var DefaultNullTokens = []string{"", "NA", "N/A", "nan", "NaN", "null"}

// Row is one flat source record keyed by column name. Missing values are
// absent from the map.
type Row map[string]string

// Get returns the value for column and whether it is present.
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	return v, ok
}

// Reader parses CSV input into rows.
type Reader struct {
	nullTokens map[string]bool
}

// NewReader returns a Reader treating nullTokens (after trimming) as missing.
func NewReader(nullTokens []string) *Reader {
	if len(nullTokens) == 0 {
		nullTokens = DefaultNullTokens
	}
	m := make(map[string]bool, len(nullTokens))
	for _, t := range nullTokens {
		m[strings.TrimSpace(t)] = true
	}
	return &Reader{nullTokens: m}
}

// ReadFile reads all rows from the CSV file at path.
func (r *Reader) ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()
	return r.Read(f)
}

// Read reads all rows from CSV input with a header line.
func (r *Reader) Read(in io.Reader) ([]Row, error) {
	cr := csv.NewReader(in)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset is empty: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading dataset: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(header))
		}
		row := make(Row, len(header))
		for i, v := range rec {
			v = strings.TrimSpace(v)
			if r.nullTokens[v] {
				continue
			}
			row[header[i]] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
