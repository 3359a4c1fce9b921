package parser

import (
	"fmt"
	"io"

	"site-mass-upload/internal/models"

	"github.com/xuri/excelize/v2"
)

// ParseWorkbook parses the first worksheet of an xlsx upload against cfg.
// Row numbers are the worksheet row numbers.
func ParseWorkbook(r io.Reader, cfg *models.TableConfig) (*models.ParseResult, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = file.Close() }()

	sheet := file.GetSheetName(0)
	if sheet == "" {
		return nil, ErrNoHeader
	}

	rows, err := file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %s: %w", sheet, err)
	}

	headerIdx := -1
	for i, cells := range rows {
		if !isBlank(cells) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrNoHeader
	}

	records := make([]Record, 0, len(rows)-headerIdx-1)
	for i := headerIdx + 1; i < len(rows); i++ {
		records = append(records, Record{Line: i + 1, Cells: rows[i]})
	}

	return ParseRecords(rows[headerIdx], records, cfg)
}
