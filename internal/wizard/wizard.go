// Package wizard drives a mass upload from entity selection through import.
//
// A Wizard holds the working set of one upload session. It walks four steps,
// each gated by a predicate over the current state, and talks to the server
// only through an Endpoint: once to revalidate rows when leaving the preview
// step and once per batch when importing.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"site-mass-upload/internal/correction"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/parser"
	"site-mass-upload/internal/registry"
	"site-mass-upload/internal/services"
)

// Step names a wizard step
type Step string

const (
	StepSelectEntity Step = "select-entity"
	StepUpload       Step = "upload"
	StepPreview      Step = "preview"
	StepImport       Step = "import"
)

var stepOrder = []Step{StepSelectEntity, StepUpload, StepPreview, StepImport}

const defaultBatchSize = 100

var (
	ErrStepIncomplete  = errors.New("current step is not complete")
	ErrWrongStep       = errors.New("operation not allowed at this step")
	ErrNothingToImport = errors.New("no importable rows")
	ErrBusy            = errors.New("an import is already running")
)

// Endpoint is the server surface the wizard submits to
type Endpoint interface {
	Revalidate(ctx context.Context, req *models.RevalidateRequest) (*models.RevalidateResponse, error)
	Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResponse, error)
}

// Notification is a user-facing message raised by a failed server call
type Notification struct {
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	Fatal     bool      `json:"fatal"`
	Time      time.Time `json:"time"`
}

// Option configures a Wizard
type Option func(*Wizard)

// WithBatchSize sets how many rows go into one import request
func WithBatchSize(n int) Option {
	return func(w *Wizard) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(w *Wizard) { w.logger = l }
}

// WithErrorHandler routes server call failures through an error handler
func WithErrorHandler(eh *services.ErrorHandler) Option {
	return func(w *Wizard) { w.errorHandler = eh }
}

// WithClock overrides the time source used for materialized timestamps
func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

// WithCallbacks sets the success and error callbacks of the import step
func WithCallbacks(onSuccess func(models.ImportResult), onError func(error)) Option {
	return func(w *Wizard) {
		w.onSuccess = onSuccess
		w.onError = onError
	}
}

// Wizard is one upload session
type Wizard struct {
	registry     *registry.Registry
	endpoint     Endpoint
	logger       *logger.Logger
	errorHandler *services.ErrorHandler
	batchSize    int
	now          func() time.Time
	onSuccess    func(models.ImportResult)
	onError      func(error)

	mu            sync.Mutex
	step          Step
	caller        models.CallerContext
	entity        *models.TableConfig
	result        *models.ParseResult
	progress      models.ImportProgress
	outcome       *models.ImportResult
	failed        map[int]bool
	acknowledged  map[int]bool
	notifications []Notification
	busy          bool
}

// New creates a wizard positioned on the entity selection step
func New(reg *registry.Registry, endpoint Endpoint, opts ...Option) *Wizard {
	w := &Wizard{
		registry:  reg,
		endpoint:  endpoint,
		batchSize: defaultBatchSize,
		now:       time.Now,
		step:      StepSelectEntity,
		progress:  models.ImportProgress{Status: models.ImportStatusIdle},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Step returns the current step
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Entity returns the selected entity configuration, if any
func (w *Wizard) Entity() *models.TableConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entity
}

// Result returns a copy of the working set
func (w *Wizard) Result() *models.ParseResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result.Clone()
}

// Progress returns the import progress
func (w *Wizard) Progress() models.ImportProgress {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.progress
}

// Outcome returns the aggregated import result, or nil before any import
func (w *Wizard) Outcome() *models.ImportResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.outcome == nil {
		return nil
	}
	out := *w.outcome
	out.Errors = append([]models.RowFailure(nil), w.outcome.Errors...)
	return &out
}

// FailedRows returns the row numbers the server reported as failed
func (w *Wizard) FailedRows() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedKeys(w.failed)
}

// Notifications returns the messages raised so far
func (w *Wizard) Notifications() []Notification {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Notification(nil), w.notifications...)
}

// DismissNotifications clears the message list
func (w *Wizard) DismissNotifications() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notifications = nil
}

// SetContext sets the ambient site and caller context
func (w *Wizard) SetContext(caller models.CallerContext) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.caller = caller
}

// SelectEntity chooses the entity to upload. Changing it discards any file
// loaded for the previous entity.
func (w *Wizard) SelectEntity(name string) error {
	cfg, err := w.registry.Lookup(name)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepSelectEntity {
		return fmt.Errorf("%w: %s", ErrWrongStep, w.step)
	}
	if w.entity == nil || w.entity.Name != cfg.Name {
		w.clearFrom(StepUpload)
	}
	w.entity = cfg
	return nil
}

// LoadText parses delimited text into the working set
func (w *Wizard) LoadText(text string) error {
	return w.load(func(cfg *models.TableConfig) (*models.ParseResult, error) {
		return parser.Parse(text, cfg)
	})
}

// LoadWorkbook parses the first sheet of an xlsx workbook into the working set
func (w *Wizard) LoadWorkbook(r io.Reader) error {
	return w.load(func(cfg *models.TableConfig) (*models.ParseResult, error) {
		return parser.ParseWorkbook(r, cfg)
	})
}

func (w *Wizard) load(parse func(*models.TableConfig) (*models.ParseResult, error)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepUpload {
		return fmt.Errorf("%w: %s", ErrWrongStep, w.step)
	}

	res, err := parse(w.entity)
	if err != nil {
		return fmt.Errorf("failed to parse upload: %w", err)
	}
	w.result = res
	if w.logger != nil {
		w.logger.WithEntity(w.entity.Name).
			WithField("rows", res.TotalRows).
			WithField("errors", res.ErrorRows).
			Debug("Upload parsed")
	}
	return nil
}

// Apply runs a correction over the working set. Corrections are accepted on
// the upload and preview steps.
func (w *Wizard) Apply(action correction.Action) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepUpload && w.step != StepPreview {
		return fmt.Errorf("%w: %s", ErrWrongStep, w.step)
	}
	if w.result == nil {
		return ErrStepIncomplete
	}
	w.result = correction.Apply(w.result, action)
	return nil
}

// CanAdvance reports whether the current step's gate is satisfied
func (w *Wizard) CanAdvance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canAdvance()
}

func (w *Wizard) canAdvance() bool {
	switch w.step {
	case StepSelectEntity:
		if w.entity == nil {
			return false
		}
		if w.entity.Requires(models.ContextSite) && w.caller.SiteID == "" {
			return false
		}
		if w.entity.Requires(models.ContextUser) && w.caller.CallerID == "" {
			return false
		}
		return true
	case StepUpload:
		return w.result != nil && w.result.TotalRows > 0
	case StepPreview:
		return w.result.HasImportableRow()
	default:
		return false
	}
}

// Next moves to the following step. Leaving the preview step revalidates the
// working set against the server first; a failed revalidation is reported as
// a notification and the locally parsed rows are used as they are.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	if w.busy {
		w.mu.Unlock()
		return ErrBusy
	}
	if !w.canAdvance() {
		step := w.step
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStepIncomplete, step)
	}
	if w.step != StepPreview {
		w.step = nextStep(w.step)
		w.mu.Unlock()
		return nil
	}

	req := w.revalidateRequest()
	w.progress = models.ImportProgress{Status: models.ImportStatusValidating, TotalRows: len(req.Rows)}
	w.busy = true
	w.mu.Unlock()

	resp, err := w.endpoint.Revalidate(ctx, req)
	var note *Notification
	if err != nil {
		note = w.notification(ctx, req.Entity, "revalidate", err, false)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	w.progress = models.ImportProgress{Status: models.ImportStatusIdle}
	if note != nil {
		w.notifications = append(w.notifications, *note)
		w.result = correction.MergeRevalidated(w.result, w.revalidateLocally())
	} else {
		w.result = correction.MergeRevalidated(w.result, resp.Rows)
	}

	if !w.result.HasImportableRow() {
		return ErrNothingToImport
	}
	w.step = StepImport
	return nil
}

// revalidateLocally re-runs field validation on edited rows so their values
// follow the edits when the server pass is unavailable
func (w *Wizard) revalidateLocally() []models.ParsedRow {
	if w.result == nil {
		return nil
	}
	var rows []models.ParsedRow
	for _, row := range w.result.Rows {
		if row.Stale {
			rows = append(rows, parser.ValidateRow(row.RowNumber, row.Raw, w.entity))
		}
	}
	return rows
}

// Back returns to the previous step and discards everything produced after it
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy || w.step == StepSelectEntity {
		return
	}
	w.clearFrom(w.step)
	w.step = prevStep(w.step)
}

// Reset returns to the first step with an empty session. The caller context
// is kept.
func (w *Wizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return
	}
	w.entity = nil
	w.clearFrom(StepUpload)
	w.notifications = nil
	w.step = StepSelectEntity
}

// clearFrom discards the state owned by step and every step after it
func (w *Wizard) clearFrom(step Step) {
	switch step {
	case StepUpload, StepPreview:
		w.result = nil
		fallthrough
	case StepImport:
		w.progress = models.ImportProgress{Status: models.ImportStatusIdle}
		w.outcome = nil
		w.failed = nil
		w.acknowledged = nil
	}
}

// Submit imports every importable row the server has not yet answered for.
// Rows are materialized with the caller context and sent in batches; per-row
// failures are collected and do not stop the import. A transport failure
// stops at the failing batch and leaves the progress in the error state.
func (w *Wizard) Submit(ctx context.Context) (*models.ImportResult, error) {
	return w.submit(ctx, func(row models.ParsedRow) bool {
		return !w.acknowledged[row.RowNumber]
	})
}

// RetryFailed resubmits only the rows the server reported as failed
func (w *Wizard) RetryFailed(ctx context.Context) (*models.ImportResult, error) {
	return w.submit(ctx, func(row models.ParsedRow) bool {
		return w.failed[row.RowNumber]
	})
}

func (w *Wizard) submit(ctx context.Context, include func(models.ParsedRow) bool) (*models.ImportResult, error) {
	w.mu.Lock()
	if w.step != StepImport {
		step := w.step
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrWrongStep, step)
	}
	if w.busy {
		w.mu.Unlock()
		return nil, ErrBusy
	}

	now := w.now()
	var rows []models.ImportRow
	for _, row := range w.result.ImportableRows() {
		if !include(row) {
			continue
		}
		rows = append(rows, models.ImportRow{
			RowNumber: row.RowNumber,
			Record:    services.Materialize(row, w.entity.Name, w.caller, now),
		})
	}
	if len(rows) == 0 {
		w.mu.Unlock()
		return nil, ErrNothingToImport
	}

	if w.outcome == nil {
		w.outcome = &models.ImportResult{Errors: []models.RowFailure{}}
	}
	if w.failed == nil {
		w.failed = map[int]bool{}
	}
	if w.acknowledged == nil {
		w.acknowledged = map[int]bool{}
	}
	w.forget(rows)

	entity, caller := w.entity.Name, w.caller
	w.busy = true
	w.progress = models.ImportProgress{Status: models.ImportStatusImporting, TotalRows: len(rows)}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.busy = false
		w.mu.Unlock()
	}()

	for start := 0; start < len(rows); start += w.batchSize {
		end := start + w.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		resp, err := w.endpoint.Import(ctx, &models.ImportRequest{Entity: entity, Context: caller, Rows: batch})
		if err != nil {
			w.fail(ctx, entity, err)
			return nil, err
		}
		w.record(batch, resp)
	}

	w.mu.Lock()
	w.progress.Status = models.ImportStatusCompleted
	w.progress.Message = fmt.Sprintf("%d of %d rows imported", w.progress.SuccessCount, w.progress.TotalRows)
	out := *w.outcome
	out.Errors = append([]models.RowFailure(nil), w.outcome.Errors...)
	onSuccess := w.onSuccess
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.WithEntity(entity).
			WithField("inserted", out.Summary.Inserted).
			WithField("updated", out.Summary.Updated).
			WithField("errors", out.Summary.Errors).
			Info("Import finished")
	}
	if onSuccess != nil {
		onSuccess(out)
	}
	return &out, nil
}

// forget removes the earlier outcome of rows about to be resubmitted so the
// aggregate counts each row once
func (w *Wizard) forget(rows []models.ImportRow) {
	resent := make(map[int]bool, len(rows))
	for _, r := range rows {
		resent[r.RowNumber] = true
	}

	kept := w.outcome.Errors[:0]
	for _, f := range w.outcome.Errors {
		if resent[f.RowNumber] {
			continue
		}
		kept = append(kept, f)
	}
	w.outcome.Errors = kept

	for n := range resent {
		if w.failed[n] {
			delete(w.failed, n)
			w.outcome.Summary.Errors--
			w.outcome.Summary.Total--
		}
		delete(w.acknowledged, n)
	}
}

func (w *Wizard) record(batch []models.ImportRow, resp *models.ImportResponse) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.outcome.Summary.Add(resp.Summary)
	w.outcome.Errors = append(w.outcome.Errors, resp.Errors...)
	for _, r := range batch {
		w.acknowledged[r.RowNumber] = true
	}
	for _, f := range resp.Errors {
		w.failed[f.RowNumber] = true
	}

	w.progress.CurrentRow += len(batch)
	w.progress.SuccessCount += resp.Summary.Total - resp.Summary.Errors
	w.progress.ErrorCount += resp.Summary.Errors
}

func (w *Wizard) fail(ctx context.Context, entity string, err error) {
	note := w.notification(ctx, entity, "import", err, true)

	w.mu.Lock()
	w.progress.Status = models.ImportStatusError
	w.progress.Message = err.Error()
	w.notifications = append(w.notifications, *note)
	onError := w.onError
	w.mu.Unlock()

	if onError != nil {
		onError(err)
	}
}

func (w *Wizard) notification(ctx context.Context, entity, operation string, err error, fatal bool) *Notification {
	message := err.Error()
	if w.errorHandler != nil {
		fields := map[string]interface{}{
			"operation": operation,
			"entity":    entity,
		}
		var status statusCoder
		if errors.As(err, &status) {
			fields["status_code"] = status.HTTPStatus()
		}
		message = w.errorHandler.HandleError(ctx, err, fields).Message
	} else if w.logger != nil {
		w.logger.WithEntity(entity).WithError(err).Warnf("%s failed", operation)
	}
	return &Notification{
		Operation: operation,
		Message:   message,
		Fatal:     fatal,
		Time:      w.now(),
	}
}

// statusCoder is implemented by endpoint errors that carry an HTTP status
type statusCoder interface {
	HTTPStatus() int
}

func (w *Wizard) revalidateRequest() *models.RevalidateRequest {
	req := &models.RevalidateRequest{Entity: w.entity.Name, Context: w.caller}
	for _, row := range w.result.Rows {
		if row.IsSkipped {
			continue
		}
		data := make(map[string]string, len(row.Raw))
		for k, v := range row.Raw {
			data[k] = v
		}
		req.Rows = append(req.Rows, models.RawRow{RowNumber: row.RowNumber, Data: data})
	}
	return req
}

func nextStep(s Step) Step {
	for i, step := range stepOrder {
		if step == s && i+1 < len(stepOrder) {
			return stepOrder[i+1]
		}
	}
	return s
}

func prevStep(s Step) Step {
	for i, step := range stepOrder {
		if step == s && i > 0 {
			return stepOrder[i-1]
		}
	}
	return s
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
