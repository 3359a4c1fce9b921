package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/fieldvalidator"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/registry"
	"site-mass-upload/internal/repositories"
)

const defaultMaxReportedErrors = 50

// importService implements ImportService
type importService struct {
	logger     *logger.Logger
	registry   *registry.Registry
	records    repositories.RecordRepository
	runs       repositories.ImportRunRepository
	resolver   ReferenceResolver
	validation *models.ValidationService
	maxErrors  int
	now        func() time.Time
}

// NewImportService creates a new import service
func NewImportService(
	logger *logger.Logger,
	registry *registry.Registry,
	records repositories.RecordRepository,
	runs repositories.ImportRunRepository,
	resolver ReferenceResolver,
	cfg *config.Config,
) ImportService {
	maxErrors := cfg.Import.MaxReportedErrors
	if maxErrors <= 0 {
		maxErrors = defaultMaxReportedErrors
	}

	return &importService{
		logger:     logger,
		registry:   registry,
		records:    records,
		runs:       runs,
		resolver:   resolver,
		validation: models.NewValidationService(),
		maxErrors:  maxErrors,
		now:        time.Now,
	}
}

// Import inserts or upserts every submitted record. A failing row is reported
// and never aborts the rest of the request.
func (s *importService) Import(ctx context.Context, req *models.ImportRequest) (*models.ImportResponse, error) {
	if err := s.validation.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	cfg, err := s.registry.Lookup(req.Entity)
	if err != nil {
		return nil, err
	}
	if err := checkContext(cfg, req.Context); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := s.logger.WithImportRun(runID).
		WithField("entity", cfg.Name).
		WithField("site_id", req.Context.SiteID).
		WithField("rows", len(req.Rows))
	log.Info("Starting import")

	summary := models.ImportSummary{Total: len(req.Rows)}
	failures := make([]models.RowFailure, 0)
	seen := make(map[string]bool)

	fail := func(rowNumber int, reason string) {
		summary.Errors++
		if len(failures) < s.maxErrors {
			failures = append(failures, models.RowFailure{RowNumber: rowNumber, Error: reason})
		}
	}

	for _, row := range req.Rows {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("import canceled: %w", err)
		}

		record, reason := s.prepare(cfg, row.Record, req.Context, row.RowNumber)
		if reason != "" {
			fail(row.RowNumber, reason)
			continue
		}

		if reason, err := s.resolveLookups(ctx, cfg, record); err != nil {
			fail(row.RowNumber, err.Error())
			continue
		} else if reason != "" {
			fail(row.RowNumber, reason)
			continue
		}

		if !cfg.HasUpsertKey() {
			if _, err := s.records.Insert(ctx, cfg.Name, record); err != nil {
				fail(row.RowNumber, err.Error())
				continue
			}
			summary.Inserted++
			continue
		}

		key, reason := upsertKey(cfg, record)
		if reason != "" {
			fail(row.RowNumber, reason)
			continue
		}
		natural := naturalKey(cfg, key)
		if seen[natural] {
			summary.Skipped++
			continue
		}
		seen[natural] = true

		updated, err := s.upsert(ctx, cfg.Name, key, record)
		if err != nil {
			fail(row.RowNumber, err.Error())
			continue
		}
		if updated {
			summary.Updated++
		} else {
			summary.Inserted++
		}
	}

	run := &models.ImportRun{
		ID:        runID,
		Entity:    cfg.Name,
		SiteID:    req.Context.SiteID,
		CallerID:  req.Context.CallerID,
		Total:     summary.Total,
		Inserted:  summary.Inserted,
		Updated:   summary.Updated,
		Skipped:   summary.Skipped,
		Errors:    summary.Errors,
		Failures:  failures,
		CreatedAt: s.now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		log.WithError(err).Warn("Failed to record import run")
	}

	log.WithField("inserted", summary.Inserted).
		WithField("updated", summary.Updated).
		WithField("skipped", summary.Skipped).
		WithField("errors", summary.Errors).
		Info("Import finished")

	return &models.ImportResponse{
		Success: summary.Errors == 0,
		RunID:   runID,
		Summary: summary,
		Errors:  failures,
	}, nil
}

// GetRun returns a recorded import run
func (s *importService) GetRun(ctx context.Context, id string) (*models.ImportRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get import run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent import runs
func (s *importService) ListRuns(ctx context.Context, entity string, limit int) ([]*models.ImportRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	runs, err := s.runs.ListRecent(ctx, entity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	return runs, nil
}

// auditColumns are the only non-field columns an import may write
var auditColumns = []string{"site_id", "created_by", "created_by_name", "created_at"}

// prepare keeps the entity's declared fields, coerces each value through the
// field validator and applies the request context, which is authoritative over
// whatever the client put in the row. A non-empty reason is a per-row failure.
func (s *importService) prepare(cfg *models.TableConfig, in models.Record, caller models.CallerContext, rowNumber int) (models.Record, string) {
	record := make(models.Record, len(cfg.Fields)+len(auditColumns))
	for _, field := range cfg.Fields {
		v, ok := in[field.Name]
		if !ok || !present(v) {
			continue
		}
		res := fieldvalidator.Validate(cellText(v), field, rowNumber)
		if res.Error != nil {
			return nil, res.Error.Message
		}
		if res.Value != nil {
			record[field.Name] = res.Value
		}
	}

	if cfg.Requires(models.ContextSite) {
		record["site_id"] = caller.SiteID
	}
	if caller.CallerID != "" {
		record["created_by"] = caller.CallerID
		if caller.CallerName != "" {
			record["created_by_name"] = caller.CallerName
		}
	}
	record["created_at"] = s.now().UTC()
	if v, ok := in["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			record["created_at"] = t.UTC()
		}
	}
	return record, ""
}

// cellText renders a JSON-decoded value the way it would appear in a cell
func cellText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fieldvalidator.FormatNumber(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// resolveLookups swaps any lookup name that is not already an identifier.
// A non-empty reason is a per-row failure; an error is an infrastructure failure.
func (s *importService) resolveLookups(ctx context.Context, cfg *models.TableConfig, record models.Record) (string, error) {
	for _, field := range cfg.Fields {
		if field.Type != models.FieldTypeLookup {
			continue
		}
		name, ok := record[field.Name].(string)
		if !ok || name == "" {
			continue
		}
		if _, err := uuid.Parse(name); err == nil {
			continue
		}

		id, err := s.resolver.Resolve(ctx, field.LookupTable, field.LookupColumn, name)
		if err != nil {
			if isLookupMiss(err) {
				return lookupError(0, field, name, err).Message, nil
			}
			return "", err
		}
		record[field.Name] = id
	}
	return "", nil
}

func (s *importService) upsert(ctx context.Context, table string, key map[string]interface{}, record models.Record) (bool, error) {
	id, found, err := s.records.FindIDByKey(ctx, table, key)
	if err != nil {
		return false, err
	}
	if found {
		return true, s.records.Update(ctx, table, id, record)
	}
	_, err = s.records.Insert(ctx, table, record)
	return false, err
}

// upsertKey collects the natural key of a record. Missing components match NULL;
// at least one component must be present.
func upsertKey(cfg *models.TableConfig, record models.Record) (map[string]interface{}, string) {
	key := make(map[string]interface{}, len(cfg.UpsertKey))
	found := false
	for _, name := range cfg.UpsertKey {
		v := record[name]
		if present(v) {
			found = true
			key[name] = v
		} else {
			key[name] = nil
		}
	}
	if !found {
		headers := make([]string, 0, len(cfg.UpsertKey))
		for _, name := range cfg.UpsertKey {
			if f := cfg.GetField(name); f != nil {
				headers = append(headers, f.Header)
			} else {
				headers = append(headers, name)
			}
		}
		return nil, fmt.Sprintf("%s is required to match existing records", strings.Join(headers, " or "))
	}
	return key, ""
}

// naturalKey folds case on free-text components only, matching FindIDByKey
func naturalKey(cfg *models.TableConfig, key map[string]interface{}) string {
	names := make([]string, 0, len(key))
	for name := range key {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		if key[name] == nil {
			continue
		}
		part := strings.TrimSpace(fmt.Sprint(key[name]))
		if f := cfg.GetField(name); f != nil && f.Type == models.FieldTypeString {
			part = strings.ToLower(part)
		}
		parts[i] = part
	}
	return strings.Join(parts, "\x1f")
}
