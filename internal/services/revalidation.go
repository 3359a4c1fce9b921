package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/parser"
	"site-mass-upload/internal/registry"
	"site-mass-upload/internal/repositories"
)

// revalidationService implements RevalidationService
type revalidationService struct {
	logger     *logger.Logger
	registry   *registry.Registry
	resolver   ReferenceResolver
	validation *models.ValidationService
}

// NewRevalidationService creates a new revalidation service
func NewRevalidationService(
	logger *logger.Logger,
	registry *registry.Registry,
	resolver ReferenceResolver,
) RevalidationService {
	return &revalidationService{
		logger:     logger,
		registry:   registry,
		resolver:   resolver,
		validation: models.NewValidationService(),
	}
}

// Revalidate re-runs field validation on raw rows and resolves lookup names
// against live reference data
func (s *revalidationService) Revalidate(ctx context.Context, req *models.RevalidateRequest) (*models.RevalidateResponse, error) {
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

	start := time.Now()
	log := s.logger.WithEntity(cfg.Name).WithField("rows", len(req.Rows))
	log.Info("Revalidating rows")

	resp := &models.RevalidateResponse{
		Success: true,
		Rows:    make([]models.ParsedRow, 0, len(req.Rows)),
	}

	for _, raw := range req.Rows {
		row := parser.ValidateRow(raw.RowNumber, raw.Data, cfg)

		lookupErrs, err := s.resolveRow(ctx, cfg, &row)
		if err != nil {
			return nil, err
		}
		if len(lookupErrs) > 0 {
			row.Errors = append(row.Errors, lookupErrs...)
			row.Status = row.ComputeStatus()
			resp.LookupErrors = append(resp.LookupErrors, lookupErrs...)
		}

		resp.Rows = append(resp.Rows, row)
	}

	log.WithField("lookup_errors", len(resp.LookupErrors)).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Revalidation finished")

	return resp, nil
}

// resolveRow replaces lookup names in row.Values with identifiers. Names that
// do not resolve become lookup errors; infrastructure failures abort the request.
func (s *revalidationService) resolveRow(ctx context.Context, cfg *models.TableConfig, row *models.ParsedRow) ([]models.ValidationError, error) {
	var lookupErrs []models.ValidationError

	for _, field := range cfg.Fields {
		if field.Type != models.FieldTypeLookup || hasFieldError(row, field.Name) {
			continue
		}
		name, ok := row.Values[field.Name].(string)
		if !ok || name == "" {
			continue
		}

		id, err := s.resolver.Resolve(ctx, field.LookupTable, field.LookupColumn, name)
		switch {
		case err == nil:
			row.Values[field.Name] = id
		case isLookupMiss(err):
			lookupErrs = append(lookupErrs, lookupError(row.RowNumber, field, name, err))
		default:
			return nil, fmt.Errorf("failed to revalidate row %d: %w", row.RowNumber, err)
		}
	}

	return lookupErrs, nil
}

func checkContext(cfg *models.TableConfig, caller models.CallerContext) error {
	if cfg.Requires(models.ContextSite) && caller.SiteID == "" {
		return fmt.Errorf("%w: %s requires a site", ErrMissingContext, cfg.Name)
	}
	if cfg.Requires(models.ContextUser) && caller.CallerID == "" {
		return fmt.Errorf("%w: %s requires a caller", ErrMissingContext, cfg.Name)
	}
	return nil
}

func hasFieldError(row *models.ParsedRow, field string) bool {
	for _, e := range row.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

func isLookupMiss(err error) bool {
	return errors.Is(err, ErrReferenceNotFound) || errors.Is(err, repositories.ErrAmbiguousReference)
}

func lookupError(rowNumber int, field models.FieldConfig, name string, err error) models.ValidationError {
	message := fmt.Sprintf("%s %q was not found", field.Header, name)
	if errors.Is(err, repositories.ErrAmbiguousReference) {
		message = fmt.Sprintf("%s %q matches more than one record", field.Header, name)
	}
	return models.ValidationError{
		RowNumber: rowNumber,
		Field:     field.Name,
		Header:    field.Header,
		Value:     name,
		Kind:      models.ErrorKindLookup,
		Message:   message,
	}
}
