// Package export writes fetched pages to spreadsheets.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/goliatone/go-resource-cache/query"
)

// PaginationSheet holds the page metadata written next to the records.
const PaginationSheet = "pagination"

// Table is a header row plus values.
type Table struct {
	Header []string
	Rows   [][]any
}

// TableFromRecords flattens records into columns. Struct records keep their
// json field order; maps use sorted keys. Nested values are written as JSON.
func TableFromRecords[T any](records []T) (Table, error) {
	var table Table

	rows := make([]map[string]any, 0, len(records))
	seen := map[string]bool{}
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return Table{}, fmt.Errorf("marshal record: %w", err)
		}
		var m map[string]any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return Table{}, fmt.Errorf("record is not an object: %w", err)
		}
		rows = append(rows, m)
		for k := range m {
			seen[k] = true
		}
	}

	table.Header = structColumns(reflect.TypeOf((*T)(nil)).Elem(), seen)
	for _, m := range rows {
		row := make([]any, len(table.Header))
		for i, col := range table.Header {
			row[i] = cellValue(m[col])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// structColumns orders the columns in seen, struct fields first.
func structColumns(t reflect.Type, seen map[string]bool) []string {
	var cols []string
	used := map[string]bool{}

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("json"); ok {
				tagName, _, _ := strings.Cut(tag, ",")
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			if seen[name] && !used[name] {
				cols = append(cols, name)
				used[name] = true
			}
		}
	}

	var rest []string
	for k := range seen {
		if !used[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(cols, rest...)
}

func cellValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any, []any:
		raw, _ := json.Marshal(val)
		return string(raw)
	default:
		return val
	}
}

// WriteXLSX writes page to w as a workbook: records on a sheet named after
// resource, pagination on a second sheet.
func WriteXLSX[T any](w io.Writer, resource string, page query.Page[T]) error {
	table, err := TableFromRecords(page.Data)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := sheetName(resource)
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeTable(f, sheet, table); err != nil {
		return err
	}

	if _, err := f.NewSheet(PaginationSheet); err != nil {
		return fmt.Errorf("pagination sheet: %w", err)
	}
	meta := Table{
		Header: []string{"total", "page", "perpage", "pages"},
		Rows:   [][]any{{page.Paginate.Total, page.Paginate.Page, page.Paginate.PerPage, page.Paginate.Pages}},
	}
	if err := writeTable(f, PaginationSheet, meta); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, table Table) error {
	header := make([]any, len(table.Header))
	for i, h := range table.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("header: %w", err)
	}

	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell: %w", err)
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return nil
}

// sheetName trims resource to excel's 31 character limit and drops the
// characters excel rejects.
func sheetName(resource string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, resource)
	if name == "" {
		name = "records"
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
