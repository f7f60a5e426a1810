// Package workbook renders xlsx files: blank upload templates built
// from schema documentation, and export workbooks built from records.
package workbook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/ucprov/internal/rowmodel"
)

// ErrorSheetName holds per-object export failures so a partially
// successful export still ships the rows it could build.
const ErrorSheetName = "Export Errors"

// New returns an empty workbook ready for WriteSheet.
func New() *excelize.File {
	return excelize.NewFile()
}

// BuildTemplate returns a workbook with one empty sheet per schema
// (header row only) plus a Reference sheet describing every column.
func BuildTemplate(schemas []*rowmodel.Schema) (*excelize.File, error) {
	f := excelize.NewFile()

	for i, schema := range schemas {
		if err := addSheet(f, i, schema.Title); err != nil {
			return nil, err
		}
		headers := templateHeaders(schema)
		if err := f.SetSheetRow(schema.Title, "A1", &headers); err != nil {
			return nil, fmt.Errorf("write headers for %s: %w", schema.Title, err)
		}
	}

	if err := writeReferenceSheet(f, schemas); err != nil {
		return nil, err
	}
	return f, nil
}

func templateHeaders(schema *rowmodel.Schema) []string {
	headers := make([]string, 0, len(schema.DocFields()))
	for _, doc := range schema.DocFields() {
		name := doc.Name
		// Repeating and nested fields get their first concrete column so
		// the template is directly fillable.
		if field, ok := fieldByWBKey(schema, doc.Name); ok {
			switch field.Kind {
			case rowmodel.KindGroup:
				name = doc.Name + " 1"
			}
		}
		headers = append(headers, name)
	}
	return headers
}

func fieldByWBKey(schema *rowmodel.Schema, wbKey string) (rowmodel.Field, bool) {
	for _, field := range schema.Fields {
		if field.WBKey == wbKey {
			return field, true
		}
	}
	return rowmodel.Field{}, false
}

func writeReferenceSheet(f *excelize.File, schemas []*rowmodel.Schema) error {
	const sheetName = "Reference"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("create reference sheet: %w", err)
	}

	row := 1
	writeRow := func(values []string) error {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		row++
		return f.SetSheetRow(sheetName, cell, &values)
	}

	for _, schema := range schemas {
		if err := writeRow([]string{schema.Title, schema.Description}); err != nil {
			return err
		}
		if err := writeRow([]string{"Column", "Required", "Value", "Notes"}); err != nil {
			return err
		}
		for _, doc := range schema.DocFields() {
			if err := writeRow([]string{doc.Name, doc.Required, doc.Value, doc.Notes}); err != nil {
				return err
			}
		}
		if err := writeRow(nil); err != nil {
			return err
		}
	}
	return nil
}

// WriteSheet renders records onto one worksheet. Column layout follows
// the schema's field order; nested fields expand to the union of dotted
// columns seen across the records and repeating fields to as many
// numbered columns as the widest record needs.
func WriteSheet(f *excelize.File, sheetIndex int, schema *rowmodel.Schema, records []*rowmodel.Record) error {
	if err := addSheet(f, sheetIndex, schema.Title); err != nil {
		return err
	}

	headers := exportHeaders(schema, records)
	if err := f.SetSheetRow(schema.Title, "A1", &headers); err != nil {
		return fmt.Errorf("write headers for %s: %w", schema.Title, err)
	}

	for i, record := range records {
		row := record.WorkbookRow()
		cells := make([]string, len(headers))
		for col, header := range headers {
			cells[col] = row[header]
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(schema.Title, cell, &cells); err != nil {
			return fmt.Errorf("write row %d for %s: %w", i+2, schema.Title, err)
		}
	}
	return nil
}

func exportHeaders(schema *rowmodel.Schema, records []*rowmodel.Record) []string {
	headers := []string{rowmodel.ActionColumn}
	for _, field := range schema.Fields {
		if field.WBKey == "" {
			continue
		}
		switch field.Kind {
		case rowmodel.KindNested:
			headers = append(headers, nestedColumns(field, records)...)
		case rowmodel.KindGroup:
			width := 1
			for _, record := range records {
				if n := len(record.Group(field.Name)); n > width {
					width = n
				}
			}
			for i := 1; i <= width; i++ {
				headers = append(headers, fmt.Sprintf("%s %d", field.WBKey, i))
			}
		default:
			headers = append(headers, field.WBKey)
		}
	}
	return headers
}

func nestedColumns(field rowmodel.Field, records []*rowmodel.Record) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, record := range records {
		for column := range record.Nested(field.Name) {
			if !seen[column] {
				seen[column] = true
				columns = append(columns, column)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

// WriteRawSheet writes pre-rendered rows onto one worksheet. Used when
// stitching finished export files into a single combined workbook.
func WriteRawSheet(f *excelize.File, index int, title string, rows [][]string) error {
	if err := addSheet(f, index, title); err != nil {
		return err
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(title, cell, &row); err != nil {
			return fmt.Errorf("write row %d for %s: %w", i+1, title, err)
		}
	}
	return nil
}

// WriteErrorSheet appends the per-object failures a SafeBuild export
// could not recover from.
func WriteErrorSheet(f *excelize.File, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	if _, err := f.NewSheet(ErrorSheetName); err != nil {
		return fmt.Errorf("create error sheet: %w", err)
	}
	header := []string{"Error"}
	if err := f.SetSheetRow(ErrorSheetName, "A1", &header); err != nil {
		return err
	}
	for i, message := range messages {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []string{message}
		if err := f.SetSheetRow(ErrorSheetName, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// addSheet reuses excelize's default first sheet for index 0 and adds
// new sheets after that.
func addSheet(f *excelize.File, index int, title string) error {
	if index == 0 {
		if err := f.SetSheetName(f.GetSheetName(0), title); err != nil {
			return fmt.Errorf("rename default sheet: %w", err)
		}
		return nil
	}
	if _, err := f.NewSheet(title); err != nil {
		return fmt.Errorf("create sheet %s: %w", title, err)
	}
	return nil
}

// SafeFileName turns a display title into a filesystem-safe fragment.
func SafeFileName(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, title)
	if cleaned == "" {
		return "export"
	}
	return cleaned
}
