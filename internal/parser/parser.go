// Package parser turns uploaded delimited text or workbooks into validated rows.
package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"site-mass-upload/internal/fieldvalidator"
	"site-mass-upload/internal/models"
)

// ErrNoHeader is returned when the upload has no header line
var ErrNoHeader = errors.New("file has no header row")

const utf8BOM = "\ufeff"

// Record is one physical record of the source file
type Record struct {
	Line  int
	Cells []string
}

// Parse parses delimited text against cfg. The delimiter is detected from the
// header line. The returned error is non-nil only when no header line exists
// or the text cannot be tokenized at all.
func Parse(text string, cfg *models.TableConfig) (*models.ParseResult, error) {
	text = strings.TrimPrefix(text, utf8BOM)
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoHeader
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = DetectDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records []Record
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read delimited text: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, Record{Line: line, Cells: cells})
	}

	if len(records) == 0 {
		return nil, ErrNoHeader
	}

	return ParseRecords(records[0].Cells, records[1:], cfg)
}

// DetectDelimiter picks comma, semicolon or tab by counting unquoted
// occurrences on the first line. Comma wins ties.
func DetectDelimiter(text string) rune {
	first := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		first = text[:i]
	}

	counts := map[rune]int{}
	inQuotes := false
	for _, r := range first {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',', ';', '\t':
			if !inQuotes {
				counts[r]++
			}
		}
	}

	best := ','
	for _, r := range []rune{';', '\t'} {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best
}

// ParseRecords validates already tokenized records. header is the header
// record; each data record carries the physical line it started on.
func ParseRecords(header []string, records []Record, cfg *models.TableConfig) (*models.ParseResult, error) {
	headers := make([]string, len(header))
	hasHeader := false
	for i, h := range header {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))
		if headers[i] != "" {
			hasHeader = true
		}
	}
	if !hasHeader {
		return nil, ErrNoHeader
	}

	result := &models.ParseResult{
		Entity:         cfg.Name,
		Headers:        headers,
		UnknownColumns: unknownColumns(headers, cfg),
	}

	for _, rec := range records {
		if isBlank(rec.Cells) || isComment(rec.Cells) {
			continue
		}

		raw := make(map[string]string, len(headers))
		var extra []string
		for i, cell := range rec.Cells {
			value := strings.TrimSpace(cell)
			if i >= len(headers) || headers[i] == "" {
				if value != "" {
					extra = append(extra, fmt.Sprintf("column %d", i+1))
					raw[fmt.Sprintf("column %d", i+1)] = value
				}
				continue
			}
			if _, dup := raw[headers[i]]; dup {
				continue
			}
			raw[headers[i]] = value
		}

		row := buildRow(rec.Line, append(append([]string(nil), headers...), extra...), raw, cfg)
		result.Rows = append(result.Rows, row)
	}

	result.Recount()
	return result, nil
}

// unknownColumns returns the named headers no field claims, in sheet order
func unknownColumns(headers []string, cfg *models.TableConfig) []string {
	var unknown []string
	seen := map[string]bool{}
	for _, h := range headers {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if cfg.FieldByHeader(h) == nil {
			unknown = append(unknown, h)
		}
	}
	return unknown
}

// ValidateRow runs field validation on one row of raw header to text values
func ValidateRow(rowNumber int, raw map[string]string, cfg *models.TableConfig) models.ParsedRow {
	headers := make([]string, 0, len(raw))
	for h := range raw {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	copied := make(map[string]string, len(raw))
	for k, v := range raw {
		copied[k] = v
	}
	return buildRow(rowNumber, headers, copied, cfg)
}

func buildRow(rowNumber int, headers []string, raw map[string]string, cfg *models.TableConfig) models.ParsedRow {
	row := models.ParsedRow{
		RowNumber: rowNumber,
		Raw:       raw,
		Values:    make(map[string]interface{}, len(cfg.Fields)),
	}

	columns := resolveColumns(headers, cfg)

	for _, f := range cfg.Fields {
		header, present := columns[f.Name]
		value := ""
		if present {
			value = raw[header]
		}
		res := fieldvalidator.Validate(value, f, rowNumber)
		if res.Error != nil {
			row.Errors = append(row.Errors, *res.Error)
		}
		if res.Warning != nil {
			row.Warnings = append(row.Warnings, *res.Warning)
		}
		if res.Value != nil {
			row.Values[f.Name] = res.Value
		}
	}

	seen := map[string]bool{}
	for _, h := range headers {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		if cfg.FieldByHeader(h) != nil || raw[h] == "" {
			continue
		}
		row.Warnings = append(row.Warnings, models.ValidationWarning{
			RowNumber: rowNumber,
			Header:    h,
			Value:     raw[h],
			Message:   fmt.Sprintf("Column %q is not part of the %s template and will be ignored", h, cfg.DisplayName),
		})
	}

	row.IsSampleRow = IsSampleRow(raw)
	row.Status = row.ComputeStatus()
	return row
}

// resolveColumns maps each field name to the first header that resolves to it
func resolveColumns(headers []string, cfg *models.TableConfig) map[string]string {
	columns := make(map[string]string, len(cfg.Fields))
	for _, h := range headers {
		f := cfg.FieldByHeader(h)
		if f == nil {
			continue
		}
		if _, taken := columns[f.Name]; !taken {
			columns[f.Name] = h
		}
	}
	return columns
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isComment(cells []string) bool {
	return len(cells) > 0 && strings.HasPrefix(strings.TrimSpace(cells[0]), "#")
}
