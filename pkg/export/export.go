// Package export writes day run sheets as JSON, CSV or XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kilianp07/runsheet/core/schedule"
)

// UnscheduledSheet names the section listing jobs that found no slot.
const UnscheduledSheet = "Unscheduled"

// Header is the column layout shared by CSV and XLSX output.
var Header = []string{"truck", "start", "end", "duration_min", "job_id", "kind", "title", "client", "earliest", "latest", "notes"}

// Format identifies an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts json, csv and xlsx case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Write encodes sheet in format f.
func Write(w io.Writer, f Format, sheet schedule.RunSheet) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, sheet)
	case FormatCSV:
		return WriteCSV(w, sheet)
	case FormatXLSX:
		return WriteXLSX(w, sheet)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

// WriteJSON writes the run sheet to w in JSON format.
func WriteJSON(w io.Writer, sheet schedule.RunSheet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sheet)
}

// WriteCSV writes one line per job: scheduled rows grouped by truck in
// fleet order, then the unscheduled rows with an empty truck column.
func WriteCSV(w io.Writer, sheet schedule.RunSheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, g := range sheet.Groups {
		for _, r := range g.Rows {
			if err := cw.Write(record(g.TruckName, r)); err != nil {
				return err
			}
		}
	}
	for _, r := range sheet.Unscheduled {
		if err := cw.Write(record("", r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a workbook with one sheet per truck and a final
// Unscheduled sheet.
func WriteXLSX(w io.Writer, sheet schedule.RunSheet) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	first := f.GetSheetName(0)
	used := map[string]bool{}
	for i, g := range sheet.Groups {
		name := sheetName(g.TruckName, used)
		if i == 0 {
			if err := f.SetSheetName(first, name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return err
		}
		rows := make([][]string, len(g.Rows))
		for j, r := range g.Rows {
			rows[j] = record(g.TruckName, r)
		}
		if err := writeRows(f, name, rows); err != nil {
			return err
		}
	}

	name := sheetName(UnscheduledSheet, used)
	if len(sheet.Groups) == 0 {
		if err := f.SetSheetName(first, name); err != nil {
			return err
		}
	} else if _, err := f.NewSheet(name); err != nil {
		return err
	}
	rows := make([][]string, len(sheet.Unscheduled))
	for j, r := range sheet.Unscheduled {
		rows[j] = record("", r)
	}
	if err := writeRows(f, name, rows); err != nil {
		return err
	}
	f.SetActiveSheet(0)
	_, err := f.WriteTo(w)
	return err
}

func writeRows(f *excelize.File, sheet string, rows [][]string) error {
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		vals := make([]any, len(r))
		for k, v := range r {
			vals[k] = v
		}
		// duration as a number so sheets can sum it
		if d, err := strconv.Atoi(r[3]); err == nil {
			vals[3] = d
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return err
		}
	}
	return nil
}

func record(truck string, r schedule.Row) []string {
	return []string{
		truck,
		r.Start,
		r.End,
		strconv.Itoa(r.Duration),
		r.JobID,
		string(r.Kind),
		r.Title,
		r.ClientName,
		r.Earliest,
		r.Latest,
		r.Notes,
	}
}

// sheetName strips characters Excel rejects, truncates to 31 runes and
// suffixes duplicates.
func sheetName(name string, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = "Truck"
	}
	base := truncate(name, 31)
	name = base
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = truncate(base, 31-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
