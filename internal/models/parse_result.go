package models

// RowStatus is the aggregate validation status of a parsed row
type RowStatus string

const (
	RowStatusValid   RowStatus = "valid"
	RowStatusWarning RowStatus = "warning"
	RowStatusError   RowStatus = "error"
)

// ErrorKind tags the category of a field-level validation error
type ErrorKind string

const (
	ErrorKindRequired ErrorKind = "required"
	ErrorKindType     ErrorKind = "type"
	ErrorKindFormat   ErrorKind = "format"
	ErrorKindEnum     ErrorKind = "enum"
	// ErrorKindLookup is produced only by server-side reference resolution.
	ErrorKindLookup ErrorKind = "lookup"
)

// ValidationError is a row- and field-scoped validation failure
type ValidationError struct {
	RowNumber  int       `json:"row_number"`
	Field      string    `json:"field"`
	Header     string    `json:"header"`
	Value      string    `json:"value"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// ValidationWarning is advisory and never blocks import
type ValidationWarning struct {
	RowNumber int    `json:"row_number"`
	Field     string `json:"field,omitempty"`
	Header    string `json:"header"`
	Value     string `json:"value,omitempty"`
	Message   string `json:"message"`
}

// ParsedRow is one data row of an uploaded file
type ParsedRow struct {
	RowNumber   int                    `json:"row_number"`
	Raw         map[string]string      `json:"raw"`
	Values      map[string]interface{} `json:"values"`
	Errors      []ValidationError      `json:"errors"`
	Warnings    []ValidationWarning    `json:"warnings"`
	Status      RowStatus              `json:"status"`
	IsSampleRow bool                   `json:"is_sample_row"`
	IsSkipped   bool                   `json:"is_skipped"`

	// ModifiedFields lists headers edited by hand since the last validation pass.
	ModifiedFields []string `json:"modified_fields,omitempty"`
	Stale          bool     `json:"stale,omitempty"`
}

// ComputeStatus derives the row status from its errors and warnings
func (r *ParsedRow) ComputeStatus() RowStatus {
	switch {
	case len(r.Errors) > 0:
		return RowStatusError
	case len(r.Warnings) > 0:
		return RowStatusWarning
	default:
		return RowStatusValid
	}
}

// Importable reports whether the row may be sent to the import boundary
func (r *ParsedRow) Importable() bool {
	return !r.IsSkipped && (r.Status == RowStatusValid || r.Status == RowStatusWarning)
}

// Clone returns a deep copy of the row
func (r ParsedRow) Clone() ParsedRow {
	c := r
	if r.Raw != nil {
		c.Raw = make(map[string]string, len(r.Raw))
		for k, v := range r.Raw {
			c.Raw[k] = v
		}
	}
	if r.Values != nil {
		c.Values = make(map[string]interface{}, len(r.Values))
		for k, v := range r.Values {
			c.Values[k] = v
		}
	}
	c.Errors = append([]ValidationError(nil), r.Errors...)
	c.Warnings = append([]ValidationWarning(nil), r.Warnings...)
	c.ModifiedFields = append([]string(nil), r.ModifiedFields...)
	return c
}

// ParseResult is the full working set of one uploaded file
type ParseResult struct {
	Entity      string      `json:"entity"`
	Headers     []string    `json:"headers"`
	Rows        []ParsedRow `json:"rows"`
	TotalRows   int         `json:"total_rows"`
	ValidRows   int         `json:"valid_rows"`
	WarningRows int         `json:"warning_rows"`
	ErrorRows   int         `json:"error_rows"`
	SkippedRows int         `json:"skipped_rows"`
	SampleRows  int         `json:"sample_rows"`

	// UnknownColumns lists header cells that match no template field. Their
	// values are never imported.
	UnknownColumns []string `json:"unknown_columns,omitempty"`
}

// Recount recomputes every counter. Skipped rows are excluded from the
// valid, warning and error counters regardless of their status.
func (p *ParseResult) Recount() {
	p.TotalRows = len(p.Rows)
	p.ValidRows, p.WarningRows, p.ErrorRows = 0, 0, 0
	p.SkippedRows, p.SampleRows = 0, 0

	for i := range p.Rows {
		row := &p.Rows[i]
		if row.IsSampleRow {
			p.SampleRows++
		}
		if row.IsSkipped {
			p.SkippedRows++
			continue
		}
		switch row.Status {
		case RowStatusValid:
			p.ValidRows++
		case RowStatusWarning:
			p.WarningRows++
		case RowStatusError:
			p.ErrorRows++
		}
	}
}

// Clone returns a deep copy of the result
func (p *ParseResult) Clone() *ParseResult {
	if p == nil {
		return nil
	}
	c := *p
	c.Headers = append([]string(nil), p.Headers...)
	c.UnknownColumns = append([]string(nil), p.UnknownColumns...)
	c.Rows = make([]ParsedRow, len(p.Rows))
	for i := range p.Rows {
		c.Rows[i] = p.Rows[i].Clone()
	}
	return &c
}

// FindRow returns the index of the row with the given number, or -1
func (p *ParseResult) FindRow(rowNumber int) int {
	for i := range p.Rows {
		if p.Rows[i].RowNumber == rowNumber {
			return i
		}
	}
	return -1
}

// ImportableRows returns copies of the rows that may be submitted
func (p *ParseResult) ImportableRows() []ParsedRow {
	var rows []ParsedRow
	for i := range p.Rows {
		if p.Rows[i].Importable() {
			rows = append(rows, p.Rows[i].Clone())
		}
	}
	return rows
}

// HasImportableRow reports whether at least one row may be submitted
func (p *ParseResult) HasImportableRow() bool {
	if p == nil {
		return false
	}
	for i := range p.Rows {
		if p.Rows[i].Importable() {
			return true
		}
	}
	return false
}
