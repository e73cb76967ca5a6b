// Package output writes resolution results back out: a single CSV or
// Excel export, and the result archive that keeps every original
// column verbatim and splits rows by outcome into three CSVs.
package output

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dispodojo/agent-finder/pkg/address"
	"github.com/dispodojo/agent-finder/pkg/input"
	"github.com/dispodojo/agent-finder/pkg/models"
)

// agentColumns are appended after the original columns, in this order
var agentColumns = []string{
	"agent_name", "brokerage", "agent_phone", "agent_email",
	"data_source", "listing_url", "list_date", "days_on_market",
	"listing_price", "lookup_status", "confidence", "verified",
	"sources_matched",
}

const statusColumn = 9 // index of lookup_status within agentColumns

// Archive member names
const (
	FoundFile    = "found_agents.csv"
	PartialFile  = "partial_agents.csv"
	NotFoundFile = "not_found.csv"
)

func agentRow(r models.ScrapeResult) []string {
	var a models.AgentInfo
	if r.AgentInfo != nil {
		a = *r.AgentInfo
	}
	return []string{
		a.AgentName,
		a.Brokerage,
		a.Phone,
		a.Email,
		a.Source,
		a.ListingURL,
		a.ListDate,
		a.DaysOnMarket,
		a.ListingPrice,
		string(r.Status),
		fmt.Sprintf("%.2f", r.Confidence),
		yesNo(r.Verified),
		strings.Join(r.SourcesMatched, ", "),
	}
}

// ExportFile writes results as one flat CSV or Excel file and returns
// the path actually written, with the extension fixed up to match the
// format
func ExportFile(results []models.ScrapeResult, outputPath, format string) (string, error) {
	columns := append([]string{
		"original_address", "normalized_address", "city", "state", "zip",
	}, agentColumns...)
	columns = append(columns, "sources_tried", "error")

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		row := []string{
			r.Property.RawAddress,
			address.Normalize(r.Property.FullAddress()),
			r.Property.City,
			r.Property.State,
			r.Property.ZipCode,
		}
		row = append(row, agentRow(r)...)
		row = append(row, strings.Join(r.SourcesTried, ", "), r.ErrorMessage)
		rows = append(rows, cleanRow(row))
	}

	switch format {
	case "excel", "xlsx":
		path := withExtension(outputPath, ".xlsx")
		return path, writeExcel(path, columns, rows)
	default:
		path := withExtension(outputPath, ".csv")
		return path, writeCSV(path, columns, rows)
	}
}

// ExportZip joins results onto the original upload by row index,
// appends the agent columns after the verbatim originals, and writes a
// ZIP with the rows partitioned into found, partial, and not-found
// CSVs. Returns the path written.
func ExportZip(results []models.ScrapeResult, originalPath, zipPath string) (string, error) {
	table, err := input.ReadTable(originalPath)
	if err != nil {
		return "", err
	}

	byRow := make(map[int][]string, len(results))
	for _, r := range results {
		byRow[r.Property.RowIndex] = agentRow(r)
	}

	header := append(append([]string{}, table.Columns...), agentColumns...)
	var found, partial, notFound [][]string

	for i, original := range table.Rows {
		fields, ok := byRow[i]
		if !ok {
			fields = make([]string, len(agentColumns))
		}
		row := cleanRow(append(append([]string{}, original...), fields...))

		switch fields[statusColumn] {
		case string(models.StatusFound), string(models.StatusCached):
			found = append(found, row)
		case string(models.StatusPartial):
			partial = append(partial, row)
		default:
			notFound = append(notFound, row)
		}
	}

	path := withExtension(zipPath, ".zip")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, member := range []struct {
		name string
		rows [][]string
	}{
		{FoundFile, found},
		{PartialFile, partial},
		{NotFoundFile, notFound},
	} {
		w, err := zw.Create(member.name)
		if err != nil {
			return "", fmt.Errorf("create archive member %s: %w", member.name, err)
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return "", err
		}
		if err := cw.WriteAll(member.rows); err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	return path, f.Close()
}

// Preview returns up to limit result rows shaped for the frontend, with
// the confidence rendered as a whole percentage
func Preview(results []models.ScrapeResult, limit int) []map[string]string {
	if limit > len(results) {
		limit = len(results)
	}
	preview := make([]map[string]string, 0, limit)
	for _, r := range results[:limit] {
		var a models.AgentInfo
		if r.AgentInfo != nil {
			a = *r.AgentInfo
		}
		preview = append(preview, map[string]string{
			"address":        cleanValue(r.Property.RawAddress),
			"agent_name":     cleanValue(a.AgentName),
			"brokerage":      cleanValue(a.Brokerage),
			"phone":          cleanValue(a.Phone),
			"email":          cleanValue(a.Email),
			"status":         string(r.Status),
			"source":         cleanValue(a.Source),
			"list_date":      cleanValue(a.ListDate),
			"days_on_market": cleanValue(a.DaysOnMarket),
			"listing_price":  cleanValue(a.ListingPrice),
			"confidence":     fmt.Sprintf("%.0f%%", r.Confidence*100),
			"verified":       yesNo(r.Verified),
		})
	}
	return preview
}

// ReadResultRows reads the first CSV inside a result archive back into
// header-keyed rows. Used to serve a completed job's results as JSON.
func ReadResultRows(zipPath string) ([]map[string]string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", zipPath, err)
	}
	defer zr.Close()

	rows := make([]map[string]string, 0)
	for _, member := range zr.File {
		if !strings.HasSuffix(member.Name, ".csv") {
			continue
		}
		rc, err := member.Open()
		if err != nil {
			return nil, err
		}
		records, err := csv.NewReader(rc).ReadAll()
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", member.Name, err)
		}
		if len(records) == 0 {
			break
		}
		header := records[0]
		for _, rec := range records[1:] {
			row := make(map[string]string, len(header))
			for i, col := range header {
				if i < len(rec) {
					row[col] = rec[i]
				} else {
					row[col] = ""
				}
			}
			rows = append(rows, row)
		}
		break
	}
	return rows, nil
}

func writeCSV(path string, columns []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func writeExcel(path string, columns []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetList()[0]

	write := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := write(1, columns); err != nil {
		return err
	}
	for i, row := range rows {
		if err := write(i+2, row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// withExtension replaces the path's extension with want
func withExtension(path, want string) string {
	if strings.ToLower(filepath.Ext(path)) == want {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + want
}

// cleanValue blanks the NA sentinels that leak out of spreadsheet
// tooling
func cleanValue(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "nan", "none", "<na>", "na":
		return ""
	}
	return v
}

func cleanRow(row []string) []string {
	for i, v := range row {
		row[i] = cleanValue(v)
	}
	return row
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
