package models

// CallerContext is the ambient context injected into every imported record
type CallerContext struct {
	CallerID   string `json:"caller_id"`
	CallerName string `json:"caller_name,omitempty"`
	SiteID     string `json:"site_id,omitempty"`
}

// RawRow is the original text of one row as sent for server-side revalidation
type RawRow struct {
	RowNumber int               `json:"row_number" validate:"gte=1"`
	Data      map[string]string `json:"data"`
}

// RevalidateRequest is the body of the revalidation endpoint
type RevalidateRequest struct {
	Entity  string        `json:"entity" validate:"required"`
	Context CallerContext `json:"context"`
	Rows    []RawRow      `json:"rows" validate:"required,dive"`
}

// RevalidateResponse carries rows refreshed against live reference data
type RevalidateResponse struct {
	Success      bool              `json:"success"`
	Rows         []ParsedRow       `json:"rows"`
	LookupErrors []ValidationError `json:"lookup_errors,omitempty"`
}

// Record is a materialized destination row ready for persistence
type Record map[string]interface{}

// ImportRow pairs a record with the file row it came from
type ImportRow struct {
	RowNumber int    `json:"row_number" validate:"gte=1"`
	Record    Record `json:"record" validate:"required"`
}

// ImportRequest is the body of the import endpoint
type ImportRequest struct {
	Entity  string        `json:"entity" validate:"required"`
	Context CallerContext `json:"context"`
	Rows    []ImportRow   `json:"rows" validate:"required,dive"`
}

// ImportSummary partitions the submitted rows by disposition
type ImportSummary struct {
	Total    int `json:"total"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// Add accumulates another summary into s
func (s *ImportSummary) Add(other ImportSummary) {
	s.Total += other.Total
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}

// RowFailure is one per-row failure reason
type RowFailure struct {
	RowNumber int    `json:"row_number"`
	Error     string `json:"error"`
}

// ImportResponse is returned by the import endpoint
type ImportResponse struct {
	Success bool          `json:"success"`
	RunID   string        `json:"run_id,omitempty"`
	Summary ImportSummary `json:"summary"`
	Errors  []RowFailure  `json:"errors"`
}

// ImportStatus is the state of an in-flight or finished import
type ImportStatus string

const (
	ImportStatusIdle       ImportStatus = "idle"
	ImportStatusValidating ImportStatus = "validating"
	ImportStatusImporting  ImportStatus = "importing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusError      ImportStatus = "error"
)

// ImportProgress is the transient progress of the import step
type ImportProgress struct {
	Status       ImportStatus `json:"status"`
	CurrentRow   int          `json:"current_row"`
	TotalRows    int          `json:"total_rows"`
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
	Message      string       `json:"message,omitempty"`
}

// ImportResult is the outcome of a completed import
type ImportResult struct {
	Summary ImportSummary `json:"summary"`
	Errors  []RowFailure  `json:"errors"`
}
