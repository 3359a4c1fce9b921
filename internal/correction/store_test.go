package correction

import (
	"testing"

	"site-mass-upload/internal/models"
	"site-mass-upload/internal/parser"
	"site-mass-upload/internal/registry"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() *models.ParseResult {
	res := &models.ParseResult{
		Entity:  "laborers",
		Headers: []string{"Worker Name", "Category"},
		Rows: []models.ParsedRow{
			{RowNumber: 2, Raw: map[string]string{"Worker Name": "Raju"}, Status: models.RowStatusValid},
			{RowNumber: 3, Raw: map[string]string{"Worker Name": ""}, Status: models.RowStatusError,
				Errors: []models.ValidationError{{RowNumber: 3, Field: "name", Kind: models.ErrorKindRequired}}},
			{RowNumber: 4, Raw: map[string]string{"Worker Name": "Sample Worker"}, Status: models.RowStatusValid, IsSampleRow: true},
			{RowNumber: 5, Raw: map[string]string{"Worker Name": "Kiran"}, Status: models.RowStatusWarning},
			{RowNumber: 6, Raw: map[string]string{"Worker Name": "Ravi"}, Status: models.RowStatusError, IsSkipped: true},
		},
	}
	res.Recount()
	return res
}

func assertCounts(t *testing.T, res *models.ParseResult) {
	t.Helper()
	nonSkipped := 0
	for _, r := range res.Rows {
		if !r.IsSkipped {
			nonSkipped++
		}
	}
	assert.Equal(t, nonSkipped, res.ValidRows+res.WarningRows+res.ErrorRows)
	assert.Equal(t, len(res.Rows), res.TotalRows)
}

func TestEditCell(t *testing.T) {
	res := fixture()
	next := EditCell(res, 3, "Worker Name", "Suresh")

	row := next.Rows[1]
	assert.Equal(t, "Suresh", row.Raw["Worker Name"])
	assert.Equal(t, models.RowStatusError, row.Status, "edit does not re-validate")
	assert.True(t, row.Stale)
	assert.Equal(t, []string{"Worker Name"}, row.ModifiedFields)

	assert.Equal(t, "", res.Rows[1].Raw["Worker Name"], "input is untouched")
	assert.False(t, res.Rows[1].Stale)

	again := EditCell(next, 3, "Worker Name", "Suresh K")
	assert.Equal(t, []string{"Worker Name"}, again.Rows[1].ModifiedFields)
	assertCounts(t, again)

	missing := EditCell(res, 99, "Worker Name", "x")
	assert.Equal(t, res.Rows, missing.Rows)
}

func TestDeleteRow(t *testing.T) {
	res := fixture()
	next := DeleteRow(res, 2)

	assert.Equal(t, 4, next.TotalRows)
	assert.Equal(t, 1, next.ValidRows, "only the sample row stays valid")
	assert.Equal(t, 5, res.TotalRows)
	for i, row := range next.Rows {
		assert.Equal(t, res.Rows[i+1].Status, row.Status, "other rows keep their status")
	}
	assertCounts(t, next)
}

func TestToggleSkip(t *testing.T) {
	res := fixture()
	next := ToggleSkip(res, 3)

	assert.True(t, next.Rows[1].IsSkipped)
	assert.Equal(t, models.RowStatusError, next.Rows[1].Status)
	assert.Equal(t, res.ErrorRows-1, next.ErrorRows)
	assertCounts(t, next)

	back := ToggleSkip(next, 3)
	assert.Equal(t, res.ErrorRows, back.ErrorRows)
	assert.False(t, back.Rows[1].IsSkipped)
}

func TestSkipAllSamples(t *testing.T) {
	res := fixture()
	next := SkipAllSamples(res)

	assert.True(t, next.Rows[2].IsSkipped)
	assert.Equal(t, models.RowStatusValid, next.Rows[2].Status)
	assert.Equal(t, res.ValidRows-1, next.ValidRows)
	assert.Equal(t, 2, next.SkippedRows)
	assertCounts(t, next)
}

func TestRemoveAllErrorRows(t *testing.T) {
	res := fixture()
	next := RemoveAllErrorRows(res)

	require.Len(t, next.Rows, 4)
	assert.Equal(t, 0, next.ErrorRows)
	assert.Equal(t, 6, next.Rows[3].RowNumber, "skipped error row is kept")
	assertCounts(t, next)
}

func TestApply(t *testing.T) {
	res := fixture()

	next := Apply(res, Action{Kind: ActionToggleSkip, RowNumber: 2})
	assert.True(t, next.Rows[0].IsSkipped)

	next = Apply(next, Action{Kind: ActionEditCell, RowNumber: 2, Header: "Category", Value: "Mason"})
	assert.Equal(t, "Mason", next.Rows[0].Raw["Category"])

	next = Apply(next, Action{Kind: "unknown"})
	assert.Equal(t, 5, next.TotalRows)

	assert.NotNil(t, Apply(nil, Action{Kind: ActionSkipAllSamples}))
}

func TestLaborerScenario_RemoveErrorsLeavesOneRow(t *testing.T) {
	cfg, _ := registry.MustDefault().Get("laborers")
	res, err := parser.Parse("Worker Name,Category,Daily Rate\n"+
		"Raju,Mason,800\n"+
		",Helper,600\n"+
		"Suresh,Driver,700\n", cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ValidRows)
	assert.Equal(t, 2, res.ErrorRows)

	next := RemoveAllErrorRows(res)
	assert.Equal(t, 1, next.TotalRows)
	require.Len(t, next.ImportableRows(), 1)
	assert.Equal(t, "Raju", next.ImportableRows()[0].Values["name"])
}

func TestSampleScenario_SkipExcludesFromValid(t *testing.T) {
	cfg, _ := registry.MustDefault().Get("laborers")
	res, err := parser.Parse("Worker Name,Category,Daily Rate\n"+
		"Sample Worker,Mason,800\n"+
		"Raju,Mason,800\n", cfg)
	require.NoError(t, err)
	require.True(t, res.Rows[0].IsSampleRow)
	assert.Equal(t, 2, res.ValidRows)

	next := SkipAllSamples(res)
	assert.True(t, next.Rows[0].IsSkipped)
	assert.Equal(t, models.RowStatusValid, next.Rows[0].Status)
	assert.Equal(t, 1, next.ValidRows)
}

func TestMergeRevalidated(t *testing.T) {
	res := EditCell(fixture(), 5, "Worker Name", "Kiran Kumar")
	res = ToggleSkip(res, 5)
	require.True(t, res.Rows[3].Stale)

	merged := MergeRevalidated(res, []models.ParsedRow{
		{RowNumber: 5, Raw: map[string]string{"Worker Name": "Kiran Kumar"}, Values: map[string]interface{}{"name": "Kiran Kumar"}, Status: models.RowStatusValid},
		{RowNumber: 3, Errors: []models.ValidationError{{RowNumber: 3, Field: "name", Kind: models.ErrorKindLookup}}},
		{RowNumber: 99, Status: models.RowStatusValid},
	})

	row := merged.Rows[3]
	assert.True(t, row.IsSkipped, "skip flag survives the merge")
	assert.False(t, row.Stale)
	assert.Empty(t, row.ModifiedFields)
	assert.Equal(t, "Kiran Kumar", row.Values["name"])

	assert.Equal(t, models.RowStatusError, merged.Rows[1].Status)
	assert.Equal(t, "", merged.Rows[1].Raw["Worker Name"], "missing raw falls back to the local copy")
	assert.Len(t, merged.Rows, 5)
	assertCounts(t, merged)
	assert.True(t, res.Rows[3].Stale, "input is not modified")
}

func genAction() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf(ActionEditCell, ActionDeleteRow, ActionToggleSkip, ActionSkipAllSamples, ActionRemoveAllErrorRows),
		gen.IntRange(1, 8),
		gen.AlphaString(),
	).Map(func(v []interface{}) Action {
		return Action{Kind: v[0].(ActionKind), RowNumber: v[1].(int), Header: "Worker Name", Value: v[2].(string)}
	})
}

func TestTransitions_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("counters match non-skipped rows after any action sequence", prop.ForAll(
		func(actions []Action) bool {
			res := fixture()
			for _, a := range actions {
				res = Apply(res, a)
				nonSkipped := 0
				for _, r := range res.Rows {
					if !r.IsSkipped {
						nonSkipped++
					}
				}
				if res.ValidRows+res.WarningRows+res.ErrorRows != nonSkipped || res.TotalRows != len(res.Rows) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genAction()),
	))

	properties.Property("toggling skip never changes status", prop.ForAll(
		func(rowNumber int) bool {
			res := fixture()
			next := ToggleSkip(res, rowNumber)
			for i := range res.Rows {
				if res.Rows[i].Status != next.Rows[i].Status {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
	))

	properties.Property("deleting a row never changes other rows' status", prop.ForAll(
		func(rowNumber int) bool {
			res := fixture()
			next := DeleteRow(res, rowNumber)
			for _, row := range next.Rows {
				if res.Rows[res.FindRow(row.RowNumber)].Status != row.Status {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
