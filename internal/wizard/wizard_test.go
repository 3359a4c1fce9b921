package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/correction"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/registry"
	"site-mass-upload/internal/services"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEndpoint is a mock implementation of Endpoint
type MockEndpoint struct {
	mock.Mock
}

func (m *MockEndpoint) Revalidate(ctx context.Context, req *models.RevalidateRequest) (*models.RevalidateResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*models.RevalidateResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEndpoint) Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*models.ImportResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func createTestLogger() *logger.Logger {
	return logger.NewLogger(&config.Config{Logging: config.LoggingConfig{Level: "error", Format: "text"}})
}

var fixedNow = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func newTestWizard(endpoint Endpoint, opts ...Option) *Wizard {
	opts = append([]Option{
		WithLogger(createTestLogger()),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	return New(registry.MustDefault(), endpoint, opts...)
}

// toImport walks a laborer upload to the import step
func toImport(t *testing.T, w *Wizard, csv string) {
	t.Helper()
	ctx := context.Background()
	w.SetContext(models.CallerContext{CallerID: "user-1", CallerName: "Site Engineer"})
	require.NoError(t, w.SelectEntity("laborers"))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.LoadText(csv))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Next(ctx))
	require.Equal(t, StepImport, w.Step())
}

func laborerRows(n int) string {
	var b strings.Builder
	b.WriteString("Worker Name,Category,Daily Rate\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "Worker %d,Mason,800\n", i)
	}
	return b.String()
}

func rowNumbers(req *models.ImportRequest) []int {
	nums := make([]int, len(req.Rows))
	for i, r := range req.Rows {
		nums[i] = r.RowNumber
	}
	return nums
}

func withRows(nums ...int) interface{} {
	return mock.MatchedBy(func(req *models.ImportRequest) bool {
		got := rowNumbers(req)
		if len(got) != len(nums) {
			return false
		}
		for i := range got {
			if got[i] != nums[i] {
				return false
			}
		}
		return true
	})
}

func TestWizard_Gating(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(&MockEndpoint{})

	assert.Equal(t, StepSelectEntity, w.Step())
	assert.False(t, w.CanAdvance(), "no entity chosen")

	assert.Error(t, w.SelectEntity("users"))
	require.NoError(t, w.SelectEntity("attendance"))
	assert.False(t, w.CanAdvance(), "attendance needs a site and a caller")

	w.SetContext(models.CallerContext{CallerID: "user-1"})
	assert.False(t, w.CanAdvance())

	w.SetContext(models.CallerContext{CallerID: "user-1", SiteID: "site-1"})
	assert.True(t, w.CanAdvance())
	require.NoError(t, w.Next(ctx))
	assert.Equal(t, StepUpload, w.Step())

	err := w.Next(ctx)
	assert.True(t, errors.Is(err, ErrStepIncomplete), "no file loaded")
	assert.True(t, errors.Is(w.Apply(correction.Action{Kind: correction.ActionSkipAllSamples}), ErrStepIncomplete))

	require.NoError(t, w.LoadText("Worker Name,Date,Status\n,2024-01-15,Present\n"))
	require.NoError(t, w.Next(ctx))
	assert.Equal(t, StepPreview, w.Step())

	err = w.Next(ctx)
	assert.True(t, errors.Is(err, ErrStepIncomplete), "only error rows")
	assert.Equal(t, StepPreview, w.Step())

	_, err = w.Submit(ctx)
	assert.True(t, errors.Is(err, ErrWrongStep))
}

func TestWizard_LaborerScenarioSendsOnlyValidRow(t *testing.T) {
	ctx := context.Background()
	endpoint := &MockEndpoint{}
	w := newTestWizard(endpoint)

	endpoint.On("Revalidate", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp 10.0.0.1:8080: connect: connection refused"))
	endpoint.On("Import", mock.Anything, withRows(2)).
		Return(&models.ImportResponse{Success: true, Summary: models.ImportSummary{Total: 1, Inserted: 1}, Errors: []models.RowFailure{}}, nil)

	toImport(t, w, "Worker Name,Category,Daily Rate\n"+
		"Raju,Mason,800\n"+
		",Helper,600\n"+
		"Suresh,Driver,700\n")

	notes := w.Notifications()
	require.Len(t, notes, 1, "revalidation failure is reported")
	assert.Equal(t, "revalidate", notes[0].Operation)
	assert.False(t, notes[0].Fatal)

	res, err := w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ImportSummary{Total: 1, Inserted: 1}, res.Summary)

	endpoint.AssertNumberOfCalls(t, "Import", 1)
	req := endpoint.Calls[1].Arguments.Get(1).(*models.ImportRequest)
	record := req.Rows[0].Record
	assert.Equal(t, "Raju", record["name"])
	assert.Equal(t, "user-1", record["created_by"])
	assert.Equal(t, true, record["is_active"])
	assert.Equal(t, "2024-01-15T09:30:00Z", record["created_at"])
	assert.NotContains(t, record, "site_id")
}

func TestWizard_EditSurvivesFailedRevalidation(t *testing.T) {
	ctx := context.Background()
	endpoint := &MockEndpoint{}
	w := newTestWizard(endpoint)

	endpoint.On("Revalidate", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp 10.0.0.1:8080: connect: connection refused"))
	endpoint.On("Import", mock.Anything, withRows(2)).
		Return(&models.ImportResponse{Success: true, Summary: models.ImportSummary{Total: 1, Inserted: 1}}, nil)

	w.SetContext(models.CallerContext{CallerID: "user-1"})
	require.NoError(t, w.SelectEntity("laborers"))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.LoadText("Worker Name,Category,Daily Rate\nRamesh,Mason,800\n"))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Apply(correction.Action{Kind: correction.ActionEditCell, RowNumber: 2, Header: "Daily Rate", Value: "950"}))

	require.NoError(t, w.Next(ctx))
	require.Len(t, w.Notifications(), 1)

	row := w.Result().Rows[0]
	assert.False(t, row.Stale)
	assert.Equal(t, 950.0, row.Values["daily_rate"])

	_, err := w.Submit(ctx)
	require.NoError(t, err)

	req := endpoint.Calls[1].Arguments.Get(1).(*models.ImportRequest)
	assert.Equal(t, 950.0, req.Rows[0].Record["daily_rate"])
}

func TestWizard_InvalidEditIsCaughtWithoutServer(t *testing.T) {
	ctx := context.Background()
	endpoint := &MockEndpoint{}
	w := newTestWizard(endpoint)

	endpoint.On("Revalidate", mock.Anything, mock.Anything).
		Return(nil, errors.New("dial tcp 10.0.0.1:8080: connect: connection refused"))

	w.SetContext(models.CallerContext{CallerID: "user-1"})
	require.NoError(t, w.SelectEntity("laborers"))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.LoadText("Worker Name,Category,Daily Rate\nRamesh,Mason,800\n"))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Apply(correction.Action{Kind: correction.ActionEditCell, RowNumber: 2, Header: "Daily Rate", Value: "lots"}))

	err := w.Next(ctx)
	assert.True(t, errors.Is(err, ErrNothingToImport))
	assert.Equal(t, StepPreview, w.Step())
	assert.Equal(t, 1, w.Result().ErrorRows)
	endpoint.AssertNotCalled(t, "Import", mock.Anything, mock.Anything)
}

func TestWizard_SkippedSamplesAreNeverSent(t *testing.T) {
	ctx := context.Background()
	endpoint := &MockEndpoint{}
	w := newTestWizard(endpoint)

	w.SetContext(models.CallerContext{CallerID: "user-1"})
	require.NoError(t, w.SelectEntity("laborers"))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.LoadText("Worker Name,Category,Daily Rate\nSample Worker,Mason,800\nRaju,Mason,800\n"))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Apply(correction.Action{Kind: correction.ActionSkipAllSamples}))

	res := w.Result()
	assert.Equal(t, 1, res.ValidRows)
	assert.Equal(t, 1, res.SkippedRows)

	endpoint.On("Revalidate", mock.Anything, mock.MatchedBy(func(req *models.RevalidateRequest) bool {
		return len(req.Rows) == 1 && req.Rows[0].RowNumber == 3
	})).Return(&models.RevalidateResponse{Success: true}, nil)
	endpoint.On("Import", mock.Anything, withRows(3)).
		Return(&models.ImportResponse{Success: true, Summary: models.ImportSummary{Total: 1, Inserted: 1}}, nil)

	require.NoError(t, w.Next(ctx))
	_, err := w.Submit(ctx)
	require.NoError(t, err)
	endpoint.AssertExpectations(t)
}

func TestWizard_RevalidationResultsAreMerged(t *testing.T) {
	ctx := context.Background()
	endpoint := &MockEndpoint{}
	w := newTestWizard(endpoint)

	endpoint.On("Revalidate", mock.Anything, mock.Anything).Return(&models.RevalidateResponse{
		Success: true,
		Rows: []models.ParsedRow{
			{RowNumber: 2, Raw: map[string]string{"Worker Name": "Raju"}, Values: map[string]interface{}{"name": "Raju", "category": "Mason", "daily_rate": 800.0}, Status: models.RowStatusValid},
			{RowNumber: 3, Errors: []models.ValidationError{{RowNumber: 3, Field: "name", Kind: models.ErrorKindLookup, Message: "duplicate"}}},
		},
	}, nil)
	endpoint.On("Import", mock.Anything, withRows(2)).
		Return(&models.ImportResponse{Success: true, Summary: models.ImportSummary{Total: 1, Inserted: 1}}, nil)

	toImport(t, w, laborerRows(2))

	res := w.Result()
	assert.Equal(t, 1, res.ValidRows)
	assert.Equal(t, 1, res.ErrorRows)
	assert.Empty(t, w.Notifications())

	_, err := w.Submit(ctx)
	require.NoError(t, err)
	endpoint.AssertExpectations(t)
}

func TestWizard_RevalidationLeavingNothingStaysOnPreview(t *testing.T) {
	ctx := context.Background()
	endpoint := &MockEndpoint{}
	w := newTestWizard(endpoint)

	endpoint.On("Revalidate", mock.Anything, mock.Anything).Return(&models.RevalidateResponse{
		Rows: []models.ParsedRow{{RowNumber: 2, Errors: []models.ValidationError{{RowNumber: 2, Kind: models.ErrorKindLookup}}}},
	}, nil)

	w.SetContext(models.CallerContext{CallerID: "user-1"})
	require.NoError(t, w.SelectEntity("laborers"))
	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.LoadText(laborerRows(1)))
	require.NoError(t, w.Next(ctx))

	err := w.Next(ctx)
	assert.True(t, errors.Is(err, ErrNothingToImport))
	assert.Equal(t, StepPreview, w.Step())
}

func TestWizard_BatchedImportAndRetry(t *testing.T) {
	ctx := context.Background()
	endpoint := &MockEndpoint{}

	var succeeded []models.ImportResult
	w := newTestWizard(endpoint,
		WithBatchSize(4),
		WithCallbacks(func(r models.ImportResult) { succeeded = append(succeeded, r) }, nil),
	)

	endpoint.On("Revalidate", mock.Anything, mock.Anything).Return(&models.RevalidateResponse{Success: true}, nil)
	endpoint.On("Import", mock.Anything, withRows(2, 3, 4, 5)).Once().
		Return(&models.ImportResponse{Summary: models.ImportSummary{Total: 4, Inserted: 4}}, nil)
	endpoint.On("Import", mock.Anything, withRows(6, 7, 8, 9)).Once().
		Return(&models.ImportResponse{Summary: models.ImportSummary{Total: 4, Inserted: 3, Updated: 1}}, nil)
	endpoint.On("Import", mock.Anything, withRows(10, 11)).Once().
		Return(&models.ImportResponse{
			Summary: models.ImportSummary{Total: 2, Errors: 2},
			Errors: []models.RowFailure{
				{RowNumber: 10, Error: "duplicate key value violates unique constraint"},
				{RowNumber: 11, Error: "duplicate key value violates unique constraint"},
			},
		}, nil)

	toImport(t, w, laborerRows(10))

	res, err := w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ImportSummary{Total: 10, Inserted: 7, Updated: 1, Errors: 2}, res.Summary)
	assert.Len(t, res.Errors, 2)
	assert.Equal(t, []int{10, 11}, w.FailedRows())

	progress := w.Progress()
	assert.Equal(t, models.ImportStatusCompleted, progress.Status)
	assert.Equal(t, 10, progress.CurrentRow)
	assert.Equal(t, 10, progress.TotalRows)
	assert.Equal(t, 8, progress.SuccessCount)
	assert.Equal(t, 2, progress.ErrorCount)
	require.Len(t, succeeded, 1)

	endpoint.On("Import", mock.Anything, withRows(10, 11)).Once().
		Return(&models.ImportResponse{Success: true, Summary: models.ImportSummary{Total: 2, Inserted: 2}}, nil)

	res, err = w.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ImportSummary{Total: 10, Inserted: 9, Updated: 1, Errors: 0}, res.Summary)
	assert.Empty(t, res.Errors)
	assert.Empty(t, w.FailedRows())
	assert.Equal(t, 2, w.Progress().TotalRows)
	require.Len(t, succeeded, 2)
	endpoint.AssertExpectations(t)

	_, err = w.RetryFailed(ctx)
	assert.True(t, errors.Is(err, ErrNothingToImport))
	_, err = w.Submit(ctx)
	assert.True(t, errors.Is(err, ErrNothingToImport), "every row already answered")
}

func TestWizard_TransportFailureStopsImport(t *testing.T) {
	ctx := context.Background()
	endpoint := &MockEndpoint{}

	var reported error
	w := newTestWizard(endpoint,
		WithBatchSize(2),
		WithErrorHandler(services.NewErrorHandler(createTestLogger())),
		WithCallbacks(nil, func(err error) { reported = err }),
	)

	endpoint.On("Revalidate", mock.Anything, mock.Anything).Return(&models.RevalidateResponse{Success: true}, nil)
	endpoint.On("Import", mock.Anything, withRows(2, 3)).Once().
		Return(&models.ImportResponse{Summary: models.ImportSummary{Total: 2, Inserted: 2}}, nil)
	endpoint.On("Import", mock.Anything, withRows(4, 5)).Once().
		Return(nil, errors.New("dial tcp: connection refused"))

	toImport(t, w, laborerRows(4))

	_, err := w.Submit(ctx)
	require.Error(t, err)
	assert.Equal(t, err, reported)

	progress := w.Progress()
	assert.Equal(t, models.ImportStatusError, progress.Status)
	assert.Equal(t, "dial tcp: connection refused", progress.Message)
	assert.Equal(t, 2, progress.CurrentRow)

	notes := w.Notifications()
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Fatal)
	assert.Equal(t, "import", notes[0].Operation)

	endpoint.On("Import", mock.Anything, withRows(4, 5)).Once().
		Return(&models.ImportResponse{Summary: models.ImportSummary{Total: 2, Inserted: 2}}, nil)

	res, err := w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ImportSummary{Total: 4, Inserted: 4}, res.Summary)
	endpoint.AssertExpectations(t)
}

func TestWizard_BackAndReset(t *testing.T) {
	ctx := context.Background()
	endpoint := &MockEndpoint{}
	endpoint.On("Revalidate", mock.Anything, mock.Anything).Return(&models.RevalidateResponse{Success: true}, nil)
	endpoint.On("Import", mock.Anything, mock.Anything).
		Return(&models.ImportResponse{Summary: models.ImportSummary{Total: 1, Inserted: 1}}, nil)

	w := newTestWizard(endpoint)
	toImport(t, w, laborerRows(1))
	_, err := w.Submit(ctx)
	require.NoError(t, err)

	w.Back()
	assert.Equal(t, StepPreview, w.Step())
	assert.Nil(t, w.Outcome())
	assert.Equal(t, models.ImportStatusIdle, w.Progress().Status)
	assert.NotNil(t, w.Result(), "preview keeps the working set")

	w.Back()
	assert.Equal(t, StepUpload, w.Step())
	assert.Nil(t, w.Result())
	assert.False(t, w.CanAdvance())

	w.Back()
	assert.Equal(t, StepSelectEntity, w.Step())
	assert.NotNil(t, w.Entity())
	w.Back()
	assert.Equal(t, StepSelectEntity, w.Step())

	toImportAgain := func() {
		require.NoError(t, w.Next(ctx))
		require.NoError(t, w.LoadText(laborerRows(1)))
		require.NoError(t, w.Next(ctx))
		require.NoError(t, w.Next(ctx))
	}
	toImportAgain()

	w.Reset()
	assert.Equal(t, StepSelectEntity, w.Step())
	assert.Nil(t, w.Entity())
	assert.Nil(t, w.Result())
	assert.Nil(t, w.Outcome())

	require.NoError(t, w.SelectEntity("laborers"))
	assert.True(t, w.CanAdvance(), "caller context survives a reset")
}

// countingEndpoint accepts every row it is sent
type countingEndpoint struct {
	mu    sync.Mutex
	calls int
	rows  int
}

func (e *countingEndpoint) Revalidate(ctx context.Context, req *models.RevalidateRequest) (*models.RevalidateResponse, error) {
	return &models.RevalidateResponse{Success: true}, nil
}

func (e *countingEndpoint) Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.rows += len(req.Rows)
	return &models.ImportResponse{Success: true, Summary: models.ImportSummary{Total: len(req.Rows), Inserted: len(req.Rows)}}, nil
}

func TestWizard_BatchingProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every importable row is sent exactly once", prop.ForAll(
		func(rows, batchSize int) bool {
			endpoint := &countingEndpoint{}
			w := newTestWizard(endpoint, WithBatchSize(batchSize))
			ctx := context.Background()

			w.SetContext(models.CallerContext{CallerID: "user-1"})
			if w.SelectEntity("laborers") != nil || w.Next(ctx) != nil {
				return false
			}
			if w.LoadText(laborerRows(rows)) != nil || w.Next(ctx) != nil || w.Next(ctx) != nil {
				return false
			}

			res, err := w.Submit(ctx)
			if err != nil {
				return false
			}
			wantCalls := (rows + batchSize - 1) / batchSize
			return endpoint.rows == rows &&
				endpoint.calls == wantCalls &&
				res.Summary.Inserted == rows &&
				w.Progress().CurrentRow == rows
		},
		gen.IntRange(1, 40),
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

type blockingEndpoint struct {
	countingEndpoint
	started chan struct{}
	release chan struct{}
}

func (e *blockingEndpoint) Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResponse, error) {
	e.started <- struct{}{}
	<-e.release
	return e.countingEndpoint.Import(ctx, req)
}

func TestWizard_ConcurrentSubmitIsRejected(t *testing.T) {
	endpoint := &blockingEndpoint{started: make(chan struct{}, 1), release: make(chan struct{})}
	w := newTestWizard(endpoint)
	toImport(t, w, laborerRows(3))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(ctx)
		done <- err
	}()
	<-endpoint.started

	assert.Equal(t, models.ImportStatusImporting, w.Progress().Status)
	_, err := w.Submit(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = w.RetryFailed(ctx)
	assert.ErrorIs(t, err, ErrBusy)

	w.Back()
	assert.Equal(t, StepImport, w.Step(), "back is ignored while importing")

	close(endpoint.release)
	require.NoError(t, <-done)
	assert.Equal(t, 3, w.Outcome().Summary.Inserted)
}
