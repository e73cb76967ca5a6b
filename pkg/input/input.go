// Package input reads CSV and Excel upload files into property rows.
// Address columns are detected by name, case-insensitively, across the
// header variants that show up in exported property lists; files with a
// single full-address column fall back to comma-split parsing.
package input

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dispodojo/agent-finder/pkg/models"
)

// Header variants for each address component
var (
	addressAliases = []string{
		"address", "street_address", "street", "addr", "property_address",
		"address_line", "address_line_1", "address1", "property address",
		"street address",
	}
	cityAliases  = []string{"city", "town", "municipality"}
	stateAliases = []string{"state", "st", "state_code", "province"}
	zipAliases   = []string{"zip", "zipcode", "zip_code", "postal_code", "postal"}
)

// Table is a raw input file: the header plus every data row, all cells
// as strings, columns preserved verbatim
type Table struct {
	Columns []string
	Rows    [][]string
}

// ReadTable reads a .csv, .xlsx, or .xls file. Every row is padded to
// the header width so downstream indexing is safe.
func ReadTable(path string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file not found: %s", path)
	}

	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx", ".xls":
		// excelize reads OOXML workbooks; a genuinely legacy BIFF .xls
		// surfaces its parse error here
		records, err = readExcel(path)
	default:
		return nil, fmt.Errorf("unsupported file format %q, use .csv, .xlsx, or .xls", ext)
	}
	if err != nil {
		return nil, err
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("input file is empty")
	}

	columns := records[0]
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]string, len(columns))
		copy(row, rec)
		rows = append(rows, row)
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	return records, nil
}

func readExcel(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// findColumn returns the index of the first header matching any
// candidate, case-insensitively, or -1
func findColumn(columns []string, candidates []string) int {
	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		name := strings.ToLower(strings.TrimSpace(c))
		if _, seen := byName[name]; !seen {
			byName[name] = i
		}
	}
	for _, candidate := range candidates {
		if i, ok := byName[strings.ToLower(candidate)]; ok {
			return i
		}
	}
	return -1
}

// Properties extracts one Property per data row that carries an
// address. RowIndex is the position in Rows, which is how results are
// joined back onto the original file.
func (t *Table) Properties() []models.Property {
	addrIdx := findColumn(t.Columns, addressAliases)
	if addrIdx < 0 {
		// No recognizable address header; assume the first column
		addrIdx = 0
	}
	cityIdx := findColumn(t.Columns, cityAliases)
	stateIdx := findColumn(t.Columns, stateAliases)
	zipIdx := findColumn(t.Columns, zipAliases)

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		v := strings.TrimSpace(row[idx])
		if strings.EqualFold(v, "nan") {
			return ""
		}
		return v
	}

	properties := make([]models.Property, 0, len(t.Rows))
	for i, row := range t.Rows {
		raw := cell(row, addrIdx)
		if raw == "" {
			continue
		}

		p := models.Property{
			RawAddress:  raw,
			AddressLine: raw,
			City:        cell(row, cityIdx),
			State:       cell(row, stateIdx),
			ZipCode:     cell(row, zipIdx),
			RowIndex:    i,
		}
		if p.City == "" && p.State == "" {
			parseFullAddress(&p, raw)
		}

		p.AddressLine = strings.ToUpper(strings.TrimSpace(p.AddressLine))
		p.City = strings.ToUpper(strings.TrimSpace(p.City))
		p.State = strings.ToUpper(strings.TrimSpace(p.State))
		p.ZipCode = strings.TrimSpace(p.ZipCode)
		properties = append(properties, p)
	}
	return properties
}

// parseFullAddress splits "123 Main St, Springfield, IL 62704" style
// strings into components when the file has no separate columns
func parseFullAddress(p *models.Property, raw string) {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch {
	case len(parts) >= 3:
		p.AddressLine = parts[0]
		p.City = parts[1]
		stateZip := strings.Fields(parts[2])
		if len(stateZip) > 0 {
			p.State = stateZip[0]
		}
		if len(stateZip) > 1 {
			p.ZipCode = stateZip[1]
		}
	case len(parts) == 2:
		p.AddressLine = parts[0]
		stateZip := strings.Fields(parts[1])
		if len(stateZip) > 0 {
			if len(stateZip[0]) == 2 {
				p.State = stateZip[0]
			} else {
				p.City = stateZip[0]
			}
		}
		if len(stateZip) > 1 {
			last := stateZip[len(stateZip)-1]
			switch {
			case len(last) == 5 && isDigits(last):
				p.ZipCode = last
			case len(last) == 2:
				p.State = last
			}
		}
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ReadProperties reads a file and returns its property rows
func ReadProperties(path string) ([]models.Property, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	return t.Properties(), nil
}

// Validation summarizes an input file without processing it
type Validation struct {
	TotalRows int      `json:"total_rows"`
	WithCity  int      `json:"with_city"`
	WithState int      `json:"with_state"`
	WithZip   int      `json:"with_zip"`
	Sample    []string `json:"sample"`
}

// Validate reads a file and reports how well its addresses parsed
func Validate(path string) (*Validation, error) {
	properties, err := ReadProperties(path)
	if err != nil {
		return nil, err
	}

	v := &Validation{TotalRows: len(properties)}
	for _, p := range properties {
		if p.City != "" {
			v.WithCity++
		}
		if p.State != "" {
			v.WithState++
		}
		if p.ZipCode != "" {
			v.WithZip++
		}
	}
	for _, p := range properties {
		if len(v.Sample) == 5 {
			break
		}
		v.Sample = append(v.Sample, p.FullAddress())
	}
	return v, nil
}
