// Package correction holds the user-driven transitions over a parsed upload.
//
// Every transition copies its input and returns a new result with all
// counters recomputed; the input is never modified.
package correction

import (
	"site-mass-upload/internal/models"
)

// ActionKind names a correction transition
type ActionKind string

const (
	ActionEditCell           ActionKind = "edit_cell"
	ActionDeleteRow          ActionKind = "delete_row"
	ActionToggleSkip         ActionKind = "toggle_skip"
	ActionSkipAllSamples     ActionKind = "skip_all_samples"
	ActionRemoveAllErrorRows ActionKind = "remove_all_error_rows"
)

// Action is one user correction
type Action struct {
	Kind      ActionKind `json:"kind"`
	RowNumber int        `json:"row_number,omitempty"`
	Header    string     `json:"header,omitempty"`
	Value     string     `json:"value,omitempty"`
}

// Apply dispatches an action. Unknown actions return an unchanged copy.
func Apply(res *models.ParseResult, action Action) *models.ParseResult {
	switch action.Kind {
	case ActionEditCell:
		return EditCell(res, action.RowNumber, action.Header, action.Value)
	case ActionDeleteRow:
		return DeleteRow(res, action.RowNumber)
	case ActionToggleSkip:
		return ToggleSkip(res, action.RowNumber)
	case ActionSkipAllSamples:
		return SkipAllSamples(res)
	case ActionRemoveAllErrorRows:
		return RemoveAllErrorRows(res)
	default:
		return cloneOrEmpty(res)
	}
}

// EditCell replaces the raw text of one cell. Field validation is not re-run;
// the cell is recorded as modified and the row is marked stale until the next
// revalidation pass.
func EditCell(res *models.ParseResult, rowNumber int, header, value string) *models.ParseResult {
	next := cloneOrEmpty(res)
	i := next.FindRow(rowNumber)
	if i < 0 {
		return next
	}

	row := &next.Rows[i]
	if row.Raw == nil {
		row.Raw = map[string]string{}
	}
	row.Raw[header] = value
	if !contains(row.ModifiedFields, header) {
		row.ModifiedFields = append(row.ModifiedFields, header)
	}
	row.Stale = true

	next.Recount()
	return next
}

// DeleteRow removes a row from the working set
func DeleteRow(res *models.ParseResult, rowNumber int) *models.ParseResult {
	next := cloneOrEmpty(res)
	i := next.FindRow(rowNumber)
	if i < 0 {
		return next
	}
	next.Rows = append(next.Rows[:i], next.Rows[i+1:]...)
	next.Recount()
	return next
}

// ToggleSkip flips the skip flag of a row; its status is left alone
func ToggleSkip(res *models.ParseResult, rowNumber int) *models.ParseResult {
	next := cloneOrEmpty(res)
	if i := next.FindRow(rowNumber); i >= 0 {
		next.Rows[i].IsSkipped = !next.Rows[i].IsSkipped
	}
	next.Recount()
	return next
}

// SkipAllSamples marks every detected sample row as skipped
func SkipAllSamples(res *models.ParseResult) *models.ParseResult {
	next := cloneOrEmpty(res)
	for i := range next.Rows {
		if next.Rows[i].IsSampleRow {
			next.Rows[i].IsSkipped = true
		}
	}
	next.Recount()
	return next
}

// RemoveAllErrorRows deletes every non-skipped row whose status is error
func RemoveAllErrorRows(res *models.ParseResult) *models.ParseResult {
	next := cloneOrEmpty(res)
	kept := next.Rows[:0]
	for _, row := range next.Rows {
		if !row.IsSkipped && row.Status == models.RowStatusError {
			continue
		}
		kept = append(kept, row)
	}
	next.Rows = kept
	next.Recount()
	return next
}

// MergeRevalidated folds server-refreshed rows into the working set by row
// number. Skip and sample flags stay as the user left them; merged rows are
// no longer stale. Rows the server did not return are kept unchanged.
func MergeRevalidated(res *models.ParseResult, rows []models.ParsedRow) *models.ParseResult {
	next := cloneOrEmpty(res)
	for _, fresh := range rows {
		i := next.FindRow(fresh.RowNumber)
		if i < 0 {
			continue
		}
		prev := next.Rows[i]
		merged := fresh.Clone()
		merged.IsSkipped = prev.IsSkipped
		merged.IsSampleRow = prev.IsSampleRow
		if merged.Raw == nil {
			merged.Raw = prev.Raw
		}
		merged.ModifiedFields = nil
		merged.Stale = false
		merged.Status = merged.ComputeStatus()
		next.Rows[i] = merged
	}
	next.Recount()
	return next
}

func cloneOrEmpty(res *models.ParseResult) *models.ParseResult {
	if res == nil {
		return &models.ParseResult{}
	}
	return res.Clone()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
