// Package loader parses the two evidence sources from disk into domain records
// and sections. Any malformed source is reported as an error; callers treat it
// as fatal since the engine cannot serve without its indices.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"trialrag/internal/domain"
)

// ErrNoRows is returned when a tabular source has a header but no data.
var ErrNoRows = errors.New("tabular source has no data rows")

// column aliases, matched after lower-casing and collapsing '_' and '-' to spaces.
var columnAliases = map[string]string{
	"drug":            "drug",
	"drug name":       "drug",
	"drugname":        "drug",
	"medication":      "drug",
	"indication":      "indication",
	"condition":       "indication",
	"dose":            "dose",
	"dosage":          "dose",
	"dosing":          "dose",
	"ae":              "adverse",
	"ae terms":        "adverse",
	"adverse event":   "adverse",
	"adverse events":  "adverse",
	"adverse effects": "adverse",
	"side effects":    "adverse",
	"severity":        "severity",
	"ae severity":     "severity",
	"outcome":         "outcome",
	"ae outcome":      "outcome",
}

// LoadTabular reads a .csv or .xlsx file into records.
func LoadTabular(path string) ([]domain.Record, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported tabular format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	records, err := ParseRows(filepath.Base(path), rows)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

// ParseRows converts a header row plus data rows into records. Rows without a
// drug name are skipped. Row numbers are 1-based data row positions.
func ParseRows(source string, rows [][]string) ([]domain.Record, error) {
	if len(rows) == 0 {
		return nil, errors.New("tabular source is empty")
	}
	header := make([]string, len(rows[0]))
	hasDrug := false
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
		if canonicalColumn(header[i]) == "drug" {
			hasDrug = true
		}
	}
	if !hasDrug {
		return nil, fmt.Errorf("header %v has no drug column", header)
	}
	if len(rows) == 1 {
		return nil, ErrNoRows
	}

	var records []domain.Record
	for i, row := range rows[1:] {
		rec := domain.Record{Source: source, Row: i + 1, Extra: map[string]string{}}
		for j, name := range header {
			if j >= len(row) || name == "" {
				continue
			}
			val := strings.TrimSpace(row[j])
			if val == "" {
				continue
			}
			switch canonicalColumn(name) {
			case "drug":
				rec.Drug = val
			case "indication":
				rec.Indication = val
			case "dose":
				rec.Dose = val
			case "adverse":
				rec.Adverse = val
			case "severity":
				rec.Severity = val
			case "outcome":
				rec.Outcome = val
			default:
				rec.Extra[name] = val
				rec.ExtraOrder = append(rec.ExtraOrder, name)
			}
		}
		if rec.Drug == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func canonicalColumn(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")
	return columnAliases[key]
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheet = sheets[0]
	}
	return f.GetRows(sheet)
}
