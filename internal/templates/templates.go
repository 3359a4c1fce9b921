// Package templates renders downloadable upload templates straight from a
// TableConfig, so the header row can never drift from the schema.
package templates

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"site-mass-upload/internal/models"
)

// Format is a template file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a query value to a Format; empty means CSV
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported template format %q", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// FileName returns the download name for an entity template
func (f Format) FileName(entity string) string {
	return fmt.Sprintf("%s_template.%s", entity, f)
}

// Rows returns the header row and the example row of a template
func Rows(cfg *models.TableConfig) ([]string, []string) {
	header := cfg.Headers()
	example := make([]string, len(header))
	for i, h := range header {
		example[i] = cfg.ExampleRow[h]
	}
	return header, example
}

// Render writes the template in the given format
func Render(cfg *models.TableConfig, format Format) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return XLSX(cfg)
	default:
		return CSV(cfg)
	}
}

// CSV renders a comma-separated template
func CSV(cfg *models.TableConfig) ([]byte, error) {
	header, example := Rows(cfg)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll([][]string{header, example}); err != nil {
		return nil, fmt.Errorf("failed to write csv template: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSX renders a workbook template with a notes sheet describing each column
func XLSX(cfg *models.TableConfig) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := cfg.DisplayName
	if sheet == "" {
		sheet = cfg.Name
	}
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header, example := Rows(cfg)
	if err := f.SetSheetRow(sheet, "A1", toCells(header)); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A2", toCells(example)); err != nil {
		return nil, fmt.Errorf("failed to write example row: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return nil, fmt.Errorf("failed to style header row: %w", err)
	}

	if err := writeNotes(f, cfg); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeNotes(f *excelize.File, cfg *models.TableConfig) error {
	const notes = "Notes"
	if _, err := f.NewSheet(notes); err != nil {
		return fmt.Errorf("failed to add notes sheet: %w", err)
	}

	if err := f.SetSheetRow(notes, "A1", &[]interface{}{"Column", "Required", "Type", "Allowed values", "Description"}); err != nil {
		return err
	}
	for i, field := range cfg.Fields {
		required := "no"
		if field.Required {
			required = "yes"
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{field.Header, required, describeType(field), strings.Join(field.EnumValues, ", "), field.Description}
		if err := f.SetSheetRow(notes, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func describeType(field models.FieldConfig) string {
	switch field.Type {
	case models.FieldTypeDate:
		return "date (YYYY-MM-DD or DD/MM/YYYY)"
	case models.FieldTypeTime:
		return "time (HH:MM)"
	case models.FieldTypeBoolean:
		return "yes/no"
	case models.FieldTypeLookup:
		return fmt.Sprintf("name of an existing %s record", strings.TrimSuffix(field.LookupTable, "s"))
	}
	return string(field.Type)
}

func toCells(values []string) *[]interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return &cells
}
