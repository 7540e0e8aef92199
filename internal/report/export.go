package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"
)

var csvHeader = []string{"page", "href", "target", "kind", "outcome", "status", "reason"}

// EncodeJSON writes r as indented JSON.
func EncodeJSON(w io.Writer, r *RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteJSON writes the full report to path.
func WriteJSON(path string, r *RunReport) error {
	return writeFile(path, func(w io.Writer) error { return EncodeJSON(w, r) })
}

// EncodeCSV writes one row per broken link, with a header row.
func EncodeCSV(w io.Writer, r *RunReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range r.Broken {
		if err := cw.Write(brokenRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSV writes the broken links to path.
func WriteCSV(path string, r *RunReport) error {
	return writeFile(path, func(w io.Writer) error { return EncodeCSV(w, r) })
}

func brokenRow(e Entry) []string {
	status := ""
	if e.Status != 0 {
		status = strconv.Itoa(e.Status)
	}
	return []string{e.Page, e.Href, e.Target, string(e.Kind), string(e.Outcome), status, e.Reason}
}

const (
	sheetBroken  = "Broken links"
	sheetSummary = "Summary"
)

// WriteXLSX writes a workbook with the broken links and the run summary.
func WriteXLSX(path string, r *RunReport) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetBroken); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := setRow(f, sheetBroken, 1, toCells(csvHeader)); err != nil {
		return err
	}
	for i, e := range r.Broken {
		row := toCells(brokenRow(e))
		if e.Status != 0 {
			row[5] = e.Status
		}
		if err := setRow(f, sheetBroken, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	s := r.Summary
	rows := [][]any{
		{"run_id", r.Meta.RunID},
		{"build_dir", r.Meta.BuildDir},
		{"started_at", r.Meta.StartedAt.UTC().Format("2006-01-02T15:04:05Z")},
		{"duration_seconds", r.Meta.Seconds},
		{"pages", s.Pages},
		{"parse_failures", s.ParseFailures},
		{"links", s.Links},
		{"internal", s.Internal},
		{"external", s.External},
		{"ok", s.OK},
		{"broken", s.Broken},
		{"broken_anchors", s.BrokenAnchors},
		{"skipped", s.Skipped},
		{"not_checked", s.NotChecked},
		{"external_urls", s.ExternalURLs},
		{"cache_hits", s.CacheHits},
	}
	for i, row := range rows {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	return nil
}

func toCells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func writeFile(path string, encode func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := encode(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
